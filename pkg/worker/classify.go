package worker

import (
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Class is the handling class of an intercepted request.
type Class string

const (
	// ClassAPI requests are served network-first from the API generation.
	ClassAPI Class = "api"

	// ClassStatic requests are served cache-first from the static generation.
	ClassStatic Class = "static"

	// ClassUnhandled requests pass through to the network untouched.
	ClassUnhandled Class = "unhandled"
)

// Destination is the declared resource type of a request, as carried by the
// Sec-Fetch-Dest header.
type Destination string

const (
	DestinationEmpty    Destination = "empty"
	DestinationDocument Destination = "document"
	DestinationScript   Destination = "script"
	DestinationStyle    Destination = "style"
	DestinationImage    Destination = "image"
	DestinationFont     Destination = "font"
	DestinationManifest Destination = "manifest"
)

// DestinationOf returns the declared destination of req.
func DestinationOf(req *http.Request) Destination {
	d := strings.ToLower(strings.TrimSpace(req.Header.Get("Sec-Fetch-Dest")))
	if d == "" {
		return DestinationEmpty
	}
	return Destination(d)
}

// IsNavigation reports whether req is a page navigation.
func IsNavigation(req *http.Request) bool {
	if strings.EqualFold(req.Header.Get("Sec-Fetch-Mode"), "navigate") {
		return true
	}
	return DestinationOf(req) == DestinationDocument
}

// Classify decides how req is handled. It is a pure function of the request
// method, URL and declared destination.
func Classify(cfg Config, req *http.Request) Class {
	return newClassifier(cfg).classify(req)
}

// apiMatcher matches request URLs against one configured API URL. A query
// on the configured URL must be present in the request; other request
// parameters are allowed.
type apiMatcher struct {
	scheme string
	host   string
	path   string
	query  url.Values
}

func newAPIMatcher(u *url.URL) apiMatcher {
	scheme := strings.ToLower(u.Scheme)
	p := u.Path
	if p == "" {
		p = "/"
	}
	return apiMatcher{scheme: scheme, host: canonicalHost(scheme, u.Host), path: p, query: u.Query()}
}

func (m apiMatcher) match(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	if scheme != m.scheme || canonicalHost(scheme, u.Host) != m.host {
		return false
	}
	if !m.matchPath(u.Path) {
		return false
	}
	if len(m.query) == 0 {
		return true
	}
	q := u.Query()
	for k, want := range m.query {
		for _, v := range want {
			if !slices.Contains(q[k], v) {
				return false
			}
		}
	}
	return true
}

func (m apiMatcher) matchPath(p string) bool {
	if p == "" {
		p = "/"
	}
	if p == m.path {
		return true
	}
	base := strings.TrimSuffix(m.path, "/")
	return strings.HasPrefix(p, base+"/")
}

// canonicalHost lower-cases host and drops the scheme's default port.
func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

type classifier struct {
	apis   []apiMatcher
	static map[Destination]struct{}
}

func newClassifier(cfg Config) classifier {
	c := classifier{static: make(map[Destination]struct{}, len(cfg.StaticDestinations))}
	for _, raw := range cfg.APIURLs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			continue
		}
		c.apis = append(c.apis, newAPIMatcher(u))
	}
	for _, d := range cfg.StaticDestinations {
		c.static[d] = struct{}{}
	}
	return c
}

func (c classifier) classify(req *http.Request) Class {
	if req == nil || req.URL == nil {
		return ClassUnhandled
	}
	if req.Method != "" && req.Method != http.MethodGet {
		return ClassUnhandled
	}
	for _, m := range c.apis {
		if m.match(req.URL) {
			return ClassAPI
		}
	}
	if _, ok := c.static[DestinationOf(req)]; ok {
		return ClassStatic
	}
	if _, ok := c.static[DestinationDocument]; ok && IsNavigation(req) {
		return ClassStatic
	}
	return ClassUnhandled
}
