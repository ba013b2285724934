package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"

	"github.com/rs/zerolog/log"
)

const maxCachedBody = 16 << 20

// ErrBodyTooLarge means the upstream answered with a body the shell will not
// buffer. Serving a truncated copy would corrupt the page and the cache.
var ErrBodyTooLarge = errors.New("shell: upstream response body too large")

var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// upstream forwards requests to the web app and buffers the answer.
type upstream struct {
	base    string
	client  *http.Client
	maxBody int64
}

func newUpstream(base string, timeout time.Duration) *upstream {
	return &upstream{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: timeout},
		maxBody: maxCachedBody,
	}
}

func (u *upstream) fetch(r *http.Request) (*Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, u.base+r.URL.RequestURI(), r.Body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	if r.ContentLength > 0 {
		req.ContentLength = r.ContentLength
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > u.maxBody {
		return nil, fmt.Errorf("%w: %s over %d bytes", ErrBodyTooLarge, r.URL.RequestURI(), u.maxBody)
	}
	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	header.Del("Content-Length")
	return &Response{Status: resp.StatusCode, Header: header, Body: body}, nil
}

// get fetches a precache route.
func (u *upstream) get(ctx context.Context, path string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.fetch(req)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("upstream returned %d", resp.Status)
	}
	return resp, nil
}

// ResponseStore is the slice of the local store backing the response cache.
type ResponseStore interface {
	PutResponse(ctx context.Context, r *localdb.CachedResponse) error
	MatchResponse(ctx context.Context, cacheName, key string) (*localdb.CachedResponse, error)
	CacheNames(ctx context.Context) ([]string, error)
	DeleteCache(ctx context.Context, cacheName string) error
}

// versionedCache is the response cache for one cache name.
type versionedCache struct {
	store ResponseStore
	name  string
	now   func() time.Time
}

func (c *versionedCache) Match(ctx context.Context, key string) (*Response, bool) {
	rec, err := c.store.MatchResponse(ctx, c.name, key)
	if err != nil {
		if !errors.Is(err, localdb.ErrNotFound) {
			log.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("shell: cache lookup failed")
		}
		return nil, false
	}
	return &Response{Status: rec.Status, Header: rec.Header, Body: rec.Body}, true
}

func (c *versionedCache) Put(ctx context.Context, key string, resp *Response) {
	err := c.store.PutResponse(ctx, &localdb.CachedResponse{
		CacheName: c.name,
		Key:       key,
		Status:    resp.Status,
		Header:    resp.Header,
		Body:      resp.Body,
		StoredAt:  c.now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("shell: cache write failed")
	}
}
