package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"blogfeed/cache"
	"blogfeed/models"
	"blogfeed/normalize"
	"blogfeed/server"
	"blogfeed/service"
	"blogfeed/source"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	calls   int32
	payload *source.Payload
	err     error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Home() string { return "https://blog.example.dev/" }

func (s *stubSource) Fetch(ctx context.Context) (*source.Payload, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.payload, s.err
}

func newApp(src source.Source, ttl time.Duration) *fiber.App {
	svc := service.New(src, normalize.New(normalize.Options{}), cache.New(ttl), service.Config{})
	return server.Server(&server.ServerConfig{Service: svc, AllowOrigins: "http://localhost:3001"})
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func TestServer_Feed(t *testing.T) {
	src := &stubSource{payload: &source.Payload{
		Host: "blog.example.dev",
		Nodes: []*source.Node{
			{Title: "Hello", Brief: "World", Slug: "hello", PublishedAt: "2024-01-01T00:00:00Z"},
		},
	}}
	app := newApp(src, 30*time.Minute)

	resp, body := get(t, app, "/feed")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, s-maxage=1800, stale-while-revalidate=60", resp.Header.Get(fiber.HeaderCacheControl))
	assert.Equal(t, "upstream", resp.Header.Get(server.OriginHeader))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
	assert.JSONEq(t, `[{"title":"Hello","description":"World","url":"https://blog.example.dev/hello","date":"Jan 1, 2024"}]`, string(body))
}

func TestServer_SecondRequestServedFromCache(t *testing.T) {
	src := &stubSource{payload: &source.Payload{
		Host:  "blog.example.dev",
		Nodes: []*source.Node{{Title: "Hello", Slug: "hello"}},
	}}
	app := newApp(src, time.Hour)

	_, first := get(t, app, "/feed")
	resp, second := get(t, app, "/api/hashnode")

	assert.Equal(t, first, second)
	assert.Equal(t, "cache", resp.Header.Get(server.OriginHeader))
	assert.Equal(t, "public, s-maxage=3600, stale-while-revalidate=60", resp.Header.Get(fiber.HeaderCacheControl))
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestServer_PlaceholderOnColdFailure(t *testing.T) {
	src := &stubSource{err: &source.FetchError{Kind: source.KindTransport, Source: "stub"}}
	app := newApp(src, time.Hour)

	resp, body := get(t, app, "/feed")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fallback", resp.Header.Get(server.OriginHeader))

	var posts []models.Post
	require.NoError(t, json.Unmarshal(body, &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "https://blog.example.dev/", posts[0].Url)
	assert.Equal(t, service.DefaultFallbackTitle, posts[0].Title)
}

func TestServer_EmptyFeed(t *testing.T) {
	src := &stubSource{payload: &source.Payload{}}
	app := newApp(src, time.Hour)

	resp, body := get(t, app, "/feed")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestServer_ContractErrorIsBadGateway(t *testing.T) {
	src := &stubSource{err: &source.FetchError{
		Kind:    source.KindContract,
		Source:  "stub",
		Details: []interface{}{map[string]interface{}{"message": "Publication not found"}},
	}}
	app := newApp(src, time.Hour)

	resp, body := get(t, app, "/feed")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))
	assert.JSONEq(t, `{"error":"Upstream returned errors","details":[{"message":"Publication not found"}]}`, string(body))
}

func TestServer_ProcessingErrorIsInternal(t *testing.T) {
	src := &stubSource{err: &service.ProcessingError{Err: errors.New("normalize panicked")}}
	app := newApp(src, time.Hour)

	resp, body := get(t, app, "/feed")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var errResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "Failed to load posts", errResp.Error)
	assert.Contains(t, errResp.Details, "normalize panicked")
}

func TestServer_Healthz(t *testing.T) {
	app := newApp(&stubSource{payload: &source.Payload{}}, time.Hour)

	resp, body := get(t, app, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_Metrics(t *testing.T) {
	app := newApp(&stubSource{payload: &source.Payload{}}, time.Hour)
	get(t, app, "/feed")

	resp, body := get(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "blogfeed_feed_results_total"))
}

func TestServer_NotFound(t *testing.T) {
	app := newApp(&stubSource{payload: &source.Payload{}}, time.Hour)

	resp, body := get(t, app, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.NotEmpty(t, errResp.Error)
}

func TestServer_Cors(t *testing.T) {
	app := newApp(&stubSource{payload: &source.Payload{}}, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set(fiber.HeaderOrigin, "http://localhost:3001")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:3001", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}
