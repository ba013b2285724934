package shell

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JKKN-Institutions/JKKNPOS/internal/metrics"
)

// Response is a fully buffered HTTP response, as stored in the cache.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// WriteTo copies the response to w.
func (r *Response) WriteTo(w http.ResponseWriter) {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}

// RemoteFunc performs r against the network. It fails when no usable response
// was received; HTTP error statuses are responses. ErrBodyTooLarge reports an
// answer that arrived but cannot be buffered.
type RemoteFunc func(r *http.Request) (*Response, error)

// ResponseCache is where NetworkFirst keeps copies of successful GETs.
// Failures are logged by the implementation and behave like a miss.
type ResponseCache interface {
	Match(ctx context.Context, key string) (*Response, bool)
	Put(ctx context.Context, key string, resp *Response)
}

// Source tells where a fetch was answered from.
type Source string

const (
	FromNetwork Source = metrics.SourceNetwork
	FromCache   Source = metrics.SourceCache
	FromOffline Source = metrics.SourceOffline
	FromError   Source = metrics.SourceError
)

// NetworkFirst tries the network, refreshing the cache on success, and falls
// back to the cached copy, then to the offline page for navigations, then to
// a 408.
type NetworkFirst struct {
	tryRemote   RemoteFunc
	cache       ResponseCache
	offlinePath string
}

func NewNetworkFirst(tryRemote RemoteFunc, cache ResponseCache, offlinePath string) *NetworkFirst {
	return &NetworkFirst{tryRemote: tryRemote, cache: cache, offlinePath: offlinePath}
}

// CacheKey identifies a request in the response cache.
func CacheKey(method, requestURI string) string {
	return method + " " + requestURI
}

func (s *NetworkFirst) Fetch(r *http.Request) (*Response, Source) {
	resp, err := s.tryRemote(r)

	// The network answered, so a stale copy would hide the real page.
	if errors.Is(err, ErrBodyTooLarge) {
		return &Response{
			Status: http.StatusBadGateway,
			Header: http.Header{"Content-Type": []string{"text/plain"}},
			Body:   []byte("Response too large"),
		}, FromError
	}

	// Non-GET requests are never cached nor answered from cache.
	if r.Method != http.MethodGet {
		if err != nil {
			return networkError(), FromError
		}
		return resp, FromNetwork
	}

	key := CacheKey(r.Method, r.URL.RequestURI())
	if err == nil {
		if resp.Status >= 200 && resp.Status < 300 {
			s.cache.Put(r.Context(), key, resp)
		}
		return resp, FromNetwork
	}

	if cached, ok := s.cache.Match(r.Context(), key); ok {
		return cached, FromCache
	}
	if s.offlinePath != "" && isNavigation(r) {
		if page, ok := s.cache.Match(r.Context(), CacheKey(http.MethodGet, s.offlinePath)); ok {
			return page, FromOffline
		}
	}
	return networkError(), FromError
}

func networkError() *Response {
	return &Response{
		Status: http.StatusRequestTimeout,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte("Network error"),
	}
}

// isNavigation reports whether r loads a page rather than a subresource.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
