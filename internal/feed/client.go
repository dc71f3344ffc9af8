package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"geolayers/internal/geom"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

// Client talks to the remote feature source over HTTP.
type Client struct {
	baseURL      string
	sessionToken string
	httpClient   *http.Client
}

type ClientOption func(*Client)

// WithSessionToken sets the ambient credentials sent with private requests.
func WithSessionToken(token string) ClientOption {
	return func(c *Client) {
		c.sessionToken = token
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) FetchChunk(ctx context.Context, layerID, cursor int, access AccessContext) (geom.Chunk, error) {
	q := url.Values{}
	q.Set("chunk", strconv.Itoa(cursor))

	path := fmt.Sprintf("/api/v0/layers/%d/features", layerID)
	if access.Public {
		path = fmt.Sprintf("/api/v0/public/layers/%d/features", layerID)
		q.Set("token", access.Token)
	}

	var chunk geom.Chunk
	if err := c.get(ctx, path+"?"+q.Encode(), access, &chunk); err != nil {
		return geom.Chunk{}, fmt.Errorf("failed to fetch chunk %d of layer %d: %w", cursor, layerID, err)
	}
	return chunk, nil
}

// FetchProject returns a project definition by id, or by public hash for public access.
func (c *Client) FetchProject(ctx context.Context, idOrHash string, access AccessContext) (Project, error) {
	path := "/api/v0/projects/" + url.PathEscape(idOrHash)
	if access.Public {
		path = "/api/v0/public/projects/" + url.PathEscape(idOrHash)
	}

	var p Project
	if err := c.get(ctx, path, access, &p); err != nil {
		return Project{}, fmt.Errorf("failed to fetch project %s: %w", idOrHash, err)
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, path string, access AccessContext, v any) (err error) {
	ctx, span := tracer.Start(ctx, "feed.get", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.path", path), attribute.String("access", access.String())))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	if access.Public {
		if access.Origin != "" {
			req.Header.Set("Origin", access.Origin)
		}
	} else if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
