package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultGraphQLEndpoint = "https://gql.hashnode.com/"

	// The publication query asks for one post more than is ever served
	defaultPostsRequested = 10

	maxGraphQLResponseSize = 4 << 20 // 4MB
)

const publicationQuery = `
query GetPublication($host: String!, $first: Int!) {
  publication(host: $host) {
    id
    title
    posts(first: $first) {
      edges {
        node {
          title
          brief
          slug
          coverImage {
            url
          }
          publishedAt
        }
      }
    }
  }
}`

// GraphQLConfig configures a GraphQLSource
type GraphQLConfig struct {
	Endpoint string

	// Host of the publication, e.g. myname.hashnode.dev
	Host string

	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// GraphQLSource queries a Hashnode style publication API. It makes a single
// attempt per fetch.
type GraphQLSource struct {
	endpoint  string
	host      string
	userAgent string
	client    *http.Client
}

func NewGraphQLSource(config GraphQLConfig) *GraphQLSource {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = DefaultGraphQLEndpoint
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &GraphQLSource{
		endpoint:  endpoint,
		host:      config.Host,
		userAgent: userAgent,
		client:    newHTTPClient(config.Client, config.Timeout),
	}
}

func (s *GraphQLSource) Name() string { return "graphql" }

func (s *GraphQLSource) Home() string { return fmt.Sprintf("https://%s/", s.host) }

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLResponse struct {
	Data *struct {
		Publication *struct {
			Posts *struct {
				Edges json.RawMessage `json:"edges"`
			} `json:"posts"`
		} `json:"publication"`
	} `json:"data"`
	Errors []interface{} `json:"errors"`
}

type graphQLEdge struct {
	Node *Node `json:"node"`
}

// Fetch runs the publication query and returns its post nodes
func (s *GraphQLSource) Fetch(ctx context.Context) (*Payload, error) {
	start := time.Now()
	payload, err := s.fetch(ctx)
	upstreamDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	observeOutcome(s.Name(), err)
	if err != nil {
		return nil, fmt.Errorf("query publication %s: %w", s.host, err)
	}
	return payload, nil
}

func (s *GraphQLSource) fetch(ctx context.Context) (*Payload, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: publicationQuery,
		Variables: map[string]interface{}{
			"host":  s.host,
			"first": defaultPostsRequested,
		},
	})
	if err != nil {
		return nil, newError(s.Name(), KindTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newError(s.Name(), KindTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, newError(s.Name(), KindTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGraphQLResponseSize))
	if err != nil {
		fe := newError(s.Name(), KindTransport, err)
		fe.Status = resp.StatusCode
		return nil, fe
	}

	var decoded graphQLResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			fe := newError(s.Name(), KindTransport, fmt.Errorf("unexpected status %s", resp.Status))
			fe.Status = resp.StatusCode
			return nil, fe
		}
		fe := newError(s.Name(), KindParse, err)
		fe.Status = resp.StatusCode
		return nil, fe
	}

	if len(decoded.Errors) > 0 {
		log.WithFields(log.Fields{
			"host":   s.host,
			"errors": decoded.Errors,
		}).Error("GraphQL returned errors")

		fe := newError(s.Name(), KindContract, errors.New("graphql errors"))
		fe.Status = resp.StatusCode
		fe.Details = decoded.Errors
		return nil, fe
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fe := newError(s.Name(), KindTransport, fmt.Errorf("unexpected status %s", resp.Status))
		fe.Status = resp.StatusCode
		return nil, fe
	}

	edges, err := decoded.edges()
	if err != nil {
		log.WithFields(log.Fields{
			"host": s.host,
		}).Warn("GraphQL returned unexpected shape")
		return nil, newError(s.Name(), KindShape, err)
	}

	nodes := make([]*Node, 0, len(edges))
	for _, edge := range edges {
		if edge.Node != nil {
			nodes = append(nodes, edge.Node)
		}
	}

	return &Payload{Host: s.host, Nodes: nodes}, nil
}

// edges returns data.publication.posts.edges, failing when any level is
// missing or edges is not an array
func (r *graphQLResponse) edges() ([]graphQLEdge, error) {
	if r.Data == nil || r.Data.Publication == nil || r.Data.Publication.Posts == nil {
		return nil, errors.New("missing data.publication.posts")
	}

	raw := bytes.TrimSpace(r.Data.Publication.Posts.Edges)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, errors.New("posts.edges is not an array")
	}

	var edges []graphQLEdge
	if err := json.Unmarshal(raw, &edges); err != nil {
		return nil, fmt.Errorf("decode posts.edges: %w", err)
	}
	return edges, nil
}
