package render

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	platformerrors "github.com/louisbranch/layoutcrawl/internal/platform/errors"
	"github.com/louisbranch/layoutcrawl/internal/platform/i18n/locale"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
	"golang.org/x/text/language"
)

func TestRenderReturnsBodyOnOK(t *testing.T) {
	requests := make(chan *http.Request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><div id="wrapper">Olá</div></html>`))
	}))
	defer server.Close()

	registry, err := locale.NewRegistry("en_US", "pt_BR")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	renderer := New(NewHTTPFetcher(server.Client()), resolverFor(t, server), Config{Timeout: time.Second},
		WithLocales(registry), WithLogf(t.Logf))

	layout := publishedLayout()
	body, err := renderer.Render(context.Background(), &layout, language.BrazilianPortuguese)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if body != `<html><div id="wrapper">Olá</div></html>` {
		t.Fatalf("body = %q", body)
	}

	var got *http.Request
	select {
	case got = <-requests:
	default:
		t.Fatal("expected request to reach server")
	}
	if got.Method != http.MethodGet {
		t.Fatalf("method = %s, want GET", got.Method)
	}
	if got.URL.Path != "/pt/web/guest/news" {
		t.Fatalf("path = %q, want %q", got.URL.Path, "/pt/web/guest/news")
	}
	if got.URL.Query().Get(ModeParam) != ModeSearch {
		t.Fatalf("query = %q, want %s=%s", got.URL.RawQuery, ModeParam, ModeSearch)
	}
	if got.Host != "www.example.com" {
		t.Fatalf("host = %q, want virtual hostname", got.Host)
	}
	if ua := got.Header.Get("User-Agent"); ua != DefaultUserAgent {
		t.Fatalf("user agent = %q, want %q", ua, DefaultUserAgent)
	}
	cookie, err := got.Cookie(GuestLanguageCookie)
	if err != nil {
		t.Fatalf("guest language cookie: %v", err)
	}
	if cookie.Value != "pt_BR" {
		t.Fatalf("cookie value = %q, want %q", cookie.Value, "pt_BR")
	}
	if len(got.Cookies()) != 1 {
		t.Fatalf("cookies = %d, want 1", len(got.Cookies()))
	}
}

func TestRenderNonOKStatusYieldsEmpty(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusFound, http.StatusNoContent} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if status == http.StatusFound {
				http.Redirect(w, r, "/login", status)
				return
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte("error page"))
		}))

		renderer := New(NewHTTPFetcher(server.Client()), resolverFor(t, server), Config{Timeout: time.Second}, WithLogf(t.Logf))
		layout := publishedLayout()
		body, err := renderer.Render(context.Background(), &layout, language.AmericanEnglish)
		server.Close()
		if err != nil {
			t.Fatalf("status %d: unexpected error %v", status, err)
		}
		if body != "" {
			t.Fatalf("status %d: body = %q, want empty", status, body)
		}
	}
}

func TestRenderTimeoutYieldsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	renderer := New(NewHTTPFetcher(server.Client()), resolverFor(t, server), Config{Timeout: 20 * time.Millisecond}, WithLogf(t.Logf))
	layout := publishedLayout()
	body, err := renderer.Render(context.Background(), &layout, language.AmericanEnglish)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "" {
		t.Fatalf("body = %q, want empty", body)
	}
}

func TestRenderUnresolvedServerYieldsEmptyWithoutFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := New(fetcher, StaticResolver{}, Config{}, WithLogf(t.Logf))
	layout := publishedLayout()

	body, err := renderer.Render(context.Background(), &layout, language.AmericanEnglish)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "" {
		t.Fatalf("body = %q, want empty", body)
	}
	if fetcher.calls != 0 {
		t.Fatalf("fetch calls = %d, want 0", fetcher.calls)
	}
}

func TestRenderContractViolations(t *testing.T) {
	renderer := New(&fakeFetcher{}, StaticResolver{Host: "localhost"}, Config{})
	layout := publishedLayout()
	zero := storage.Layout{}

	cases := []struct {
		name   string
		layout *storage.Layout
		tag    language.Tag
	}{
		{name: "nil layout", layout: nil, tag: language.AmericanEnglish},
		{name: "zero plid", layout: &zero, tag: language.AmericanEnglish},
		{name: "undetermined locale", layout: &layout, tag: language.Und},
	}
	for _, tc := range cases {
		_, err := renderer.Render(context.Background(), tc.layout, tc.tag)
		if !platformerrors.HasCode(err, platformerrors.CodeRenderFailure) {
			t.Fatalf("%s: err = %v, want RENDER_FAILURE", tc.name, err)
		}
	}

	var unconfigured *Renderer
	if _, err := unconfigured.Render(context.Background(), &layout, language.AmericanEnglish); !platformerrors.HasCode(err, platformerrors.CodeRenderFailure) {
		t.Fatalf("nil renderer: err = %v, want RENDER_FAILURE", err)
	}
}

func TestRenderSecureWhenEitherProtocolIsHTTPS(t *testing.T) {
	tests := []struct {
		instance, webServer string
		wantScheme          string
	}{
		{instance: "http", webServer: "http", wantScheme: "http"},
		{instance: "https", webServer: "", wantScheme: "https"},
		{instance: "", webServer: "HTTPS", wantScheme: "https"},
	}
	for _, tc := range tests {
		fetcher := &fakeFetcher{resp: FetchResponse{StatusCode: http.StatusOK, Body: "ok"}}
		renderer := New(fetcher, StaticResolver{Host: "app.internal", Ports: Ports{HTTP: 8080, HTTPS: 8443}},
			Config{InstanceProtocol: tc.instance, WebServerProtocol: tc.webServer})
		layout := publishedLayout()
		if _, err := renderer.Render(context.Background(), &layout, language.AmericanEnglish); err != nil {
			t.Fatalf("render: %v", err)
		}
		parsed, err := url.Parse(fetcher.last.URL)
		if err != nil {
			t.Fatalf("parse url %q: %v", fetcher.last.URL, err)
		}
		if parsed.Scheme != tc.wantScheme {
			t.Fatalf("scheme = %q, want %q", parsed.Scheme, tc.wantScheme)
		}
		wantPort := "8080"
		if tc.wantScheme == "https" {
			wantPort = "8443"
		}
		if parsed.Port() != wantPort {
			t.Fatalf("port = %q, want %q", parsed.Port(), wantPort)
		}
		if fetcher.last.Timeout != 100*time.Millisecond {
			t.Fatalf("timeout = %v, want default 100ms", fetcher.last.Timeout)
		}
		if fetcher.last.Cookies[0].Domain != "app.internal" {
			t.Fatalf("cookie domain = %q, want resolved host", fetcher.last.Cookies[0].Domain)
		}
	}
}

func TestLayoutFullURLPrivateAndDefaultPort(t *testing.T) {
	layout := publishedLayout()
	layout.PrivateLayout = true
	rc := newContext(layout, language.AmericanEnglish, ServerAddress{Host: "portal", Port: 443}, true, nil)
	want := "https://portal/en-US/group/guest/news?p_l_mode=search"
	if rc.URL != want {
		t.Fatalf("url = %q, want %q", rc.URL, want)
	}
	if !strings.HasPrefix(rc.Cookie.Value, "en_") {
		t.Fatalf("cookie value = %q", rc.Cookie.Value)
	}
}

func publishedLayout() storage.Layout {
	return storage.Layout{
		PLID:             42,
		CompanyID:        1,
		GroupID:          20,
		LayoutSetID:      7,
		GroupFriendlyURL: "/guest",
		FriendlyURL:      "/news",
		VirtualHostname:  "www.example.com",
	}
}

func resolverFor(t *testing.T, server *httptest.Server) StaticResolver {
	t.Helper()
	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	host, portValue, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portValue)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return StaticResolver{Host: host, Ports: Ports{HTTP: port}}
}

type fakeFetcher struct {
	calls int
	last  FetchRequest
	resp  FetchResponse
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}
