package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	platformerrors "github.com/louisbranch/layoutcrawl/internal/platform/errors"
	"golang.org/x/net/html/charset"
)

// maxBodyBytes bounds how much of a rendered page is read into memory.
const maxBodyBytes = 8 << 20

// FetchRequest describes one outbound GET.
type FetchRequest struct {
	URL     string
	Host    string
	Headers http.Header
	Cookies []*http.Cookie
	Timeout time.Duration
}

// FetchResponse is the status and decoded body of one GET.
type FetchResponse struct {
	StatusCode int
	Body       string
}

// Fetcher performs the outbound request for a render.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// HTTPFetcher fetches pages with a net/http client. Redirects are not
// followed: a redirecting layout is not content.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client, or a fresh client when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	copied := *client
	copied.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &HTTPFetcher{client: &copied}
}

// Fetch issues the GET and returns the body decoded to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	if f == nil || f.client == nil {
		return FetchResponse{}, platformerrors.New(platformerrors.CodeInvalidArgument, "fetcher is not configured")
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return FetchResponse{}, platformerrors.Wrap(platformerrors.CodeInvalidArgument, "build layout request", err)
	}
	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if req.Host != "" {
		httpReq.Host = req.Host
	}
	for _, cookie := range req.Cookies {
		httpReq.AddCookie(cookie)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return FetchResponse{}, platformerrors.Wrap(platformerrors.CodeNetworkError, "fetch layout", err)
	}
	defer resp.Body.Close()

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return FetchResponse{StatusCode: resp.StatusCode}, platformerrors.Wrap(platformerrors.CodeNetworkError, "decode layout charset", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil && !errors.Is(err, io.EOF) {
		return FetchResponse{StatusCode: resp.StatusCode}, platformerrors.Wrap(platformerrors.CodeNetworkError, fmt.Sprintf("read layout body (status %d)", resp.StatusCode), err)
	}
	return FetchResponse{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
