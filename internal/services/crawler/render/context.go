package render

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/louisbranch/layoutcrawl/internal/platform/i18n/locale"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
	"golang.org/x/text/language"
)

const (
	// GuestLanguageCookie pins the visitor language on the front end.
	GuestLanguageCookie = "GUEST_LANGUAGE_ID"
	// ModeParam and ModeSearch mark a request as a search crawl so the front
	// end can skip analytics and personalization.
	ModeParam  = "p_l_mode"
	ModeSearch = "search"
)

// Context is the synthetic visitor identity for one render call.
type Context struct {
	Locale      language.Tag
	LanguageID  string
	I18nPath    string
	Scheme      string
	ServerName  string
	ServerPort  int
	GroupID     int64
	LayoutSetID int64
	VirtualHost string
	URL         string
	Cookie      *http.Cookie
}

func newContext(layout storage.Layout, tag language.Tag, addr ServerAddress, secure bool, registry *locale.Registry) Context {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	rc := Context{
		Locale:      tag,
		LanguageID:  locale.LanguageID(tag),
		I18nPath:    registry.I18nPath(tag),
		Scheme:      scheme,
		ServerName:  addr.Host,
		ServerPort:  addr.Port,
		GroupID:     layout.GroupID,
		LayoutSetID: layout.LayoutSetID,
		VirtualHost: strings.TrimSpace(layout.VirtualHostname),
	}
	rc.URL = layoutFullURL(rc, layout)
	rc.Cookie = &http.Cookie{
		Name:   GuestLanguageCookie,
		Value:  rc.LanguageID,
		Domain: addr.Host,
		Path:   "/",
	}
	return rc
}

// layoutFullURL builds the canonical layout URL against the resolved server
// and appends the search crawl marker.
func layoutFullURL(rc Context, layout storage.Layout) string {
	host := rc.ServerName
	if !isDefaultPort(rc.Scheme, rc.ServerPort) {
		host = host + ":" + strconv.Itoa(rc.ServerPort)
	}

	section := "/web"
	if layout.PrivateLayout {
		section = "/group"
	}
	path := rc.I18nPath + section + normalizeSegment(layout.GroupFriendlyURL) + normalizeSegment(layout.FriendlyURL)

	query := url.Values{}
	query.Set(ModeParam, ModeSearch)
	return (&url.URL{Scheme: rc.Scheme, Host: host, Path: path, RawQuery: query.Encode()}).String()
}

func normalizeSegment(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimRight(value, "/")
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(value, "/") {
		value = "/" + value
	}
	return value
}

func isDefaultPort(scheme string, port int) bool {
	if port <= 0 {
		return true
	}
	return (scheme == "http" && port == 80) || (scheme == "https" && port == 443)
}
