package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"blogfeed/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRetrier returns a retrier that records waits instead of sleeping
func recordingRetrier(delays *[]time.Duration) *source.Retrier {
	r := source.NewRetrier()
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return r
}

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/feed.xml")
	require.NoError(t, err)
	return data
}

func TestRssSource_Fetch(t *testing.T) {
	feed := readFixture(t)
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write(feed)
	}))
	defer srv.Close()

	src := source.NewRssSource(source.RssConfig{URL: srv.URL + "/feed", UserAgent: "test-agent/1.0"})
	payload, err := src.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, payload.Items, 2)
	assert.Equal(t, "First Post", payload.Items[0].Title)
	assert.Equal(t, "Second Post", payload.Items[1].Title)
	assert.Equal(t, 2, payload.Len())
	assert.Equal(t, "test-agent/1.0", gotUA)
	assert.Equal(t, srv.URL+"/", src.Home())
}

func TestRssSource_RetryHonorsRetryAfter(t *testing.T) {
	feed := readFixture(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write(feed)
		}
	}))
	defer srv.Close()

	var delays []time.Duration
	src := source.NewRssSource(source.RssConfig{URL: srv.URL, Retrier: recordingRetrier(&delays)})

	payload, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, delays, 2)
	assert.Equal(t, 2*time.Second, delays[0])
	assert.GreaterOrEqual(t, delays[1], 2*time.Second)
	require.Len(t, payload.Items, 2)
	assert.Equal(t, "First Post", payload.Items[0].Title)
}

func TestRssSource_ExponentialBackoffWithoutRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var delays []time.Duration
	src := source.NewRssSource(source.RssConfig{URL: srv.URL, Retrier: recordingRetrier(&delays)})

	_, err := src.Fetch(context.Background())
	require.Error(t, err)

	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)

	kind, ok := source.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, source.KindRateLimited, kind)
}

func TestRssSource_ParseErrorIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("<html><body>not a feed</body></html>"))
	}))
	defer srv.Close()

	var delays []time.Duration
	src := source.NewRssSource(source.RssConfig{URL: srv.URL, Retrier: recordingRetrier(&delays)})

	_, err := src.Fetch(context.Background())
	require.Error(t, err)

	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	kind, ok := source.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, source.KindParse, kind)
}

func TestRssSource_TransportErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	retrier := source.NewRetrier()
	retrier.MaxAttempts = 1
	src := source.NewRssSource(source.RssConfig{URL: srv.URL, Retrier: retrier})

	_, err := src.Fetch(context.Background())
	require.Error(t, err)

	var fe *source.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, source.KindTransport, fe.Kind)
	assert.Equal(t, http.StatusBadGateway, fe.Status)
	assert.False(t, source.IsContract(err))
}

func TestRssSource_InvalidURLIsNotRetried(t *testing.T) {
	var delays []time.Duration
	src := source.NewRssSource(source.RssConfig{URL: "://bad url", Retrier: recordingRetrier(&delays)})

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Empty(t, delays)
}
