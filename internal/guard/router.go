// ABOUTME: Portal route table with path parameters, wildcards, and static redirects
// ABOUTME: Each route carries the access requirement its guard enforces

package guard

import (
	"errors"
	"strings"

	"github.com/2389/fitportal/internal/access"
)

// ErrNoRoute means no route matches the path.
var ErrNoRoute = errors.New("no route for path")

// Route is one entry of the route table.
type Route struct {
	Name        string
	Pattern     string // "/blog/:slug", "/admin/*"
	Requirement access.Requirement
	RedirectTo  string // static redirect when set
}

// Match is a resolved route with its extracted parameters.
type Match struct {
	Route  Route
	Path   string
	Params map[string]string
}

// Router resolves paths against an ordered route table. The first
// matching route wins.
type Router struct {
	routes []Route
}

// NewRouter returns a router over routes.
func NewRouter(routes ...Route) *Router {
	return &Router{routes: append([]Route(nil), routes...)}
}

// DefaultRoutes is the portal route table.
func DefaultRoutes() []Route {
	return []Route{
		{Name: "home", Pattern: "/"},
		{Name: "login", Pattern: "/login"},
		{Name: "signup", Pattern: "/signup"},
		{Name: "admin-login", Pattern: "/admin-login"},
		{Name: "blog-post", Pattern: "/blog/:slug"},
		{Name: "category", Pattern: "/category/:category"},
		{Name: "services", Pattern: "/services", RedirectTo: "/#services"},
		{Name: "contact", Pattern: "/contact", RedirectTo: "/#contact"},
		{Name: "faq-personal-training", Pattern: "/faq/personal-training"},
		{Name: "faq-group-training", Pattern: "/faq/group-training"},
		{Name: "faq-nutrition", Pattern: "/faq/nutrition"},
		{Name: "checkout", Pattern: "/checkout/:package"},
		{Name: "dashboard", Pattern: "/dashboard", Requirement: access.RequireAuthenticated},
		{Name: "admin", Pattern: "/admin/*", Requirement: access.RequireAdmin},
	}
}

// Routes returns a copy of the route table.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Resolve finds the route for path. Query strings and fragments are ignored.
func (r *Router) Resolve(path string) (Match, error) {
	path = cleanPath(path)
	for _, route := range r.routes {
		if params, ok := matchPattern(route.Pattern, path); ok {
			return Match{Route: route, Path: path, Params: params}, nil
		}
	}
	return Match{}, ErrNoRoute
}

func cleanPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return path
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// matchPattern reports whether path matches pattern. ":name" segments
// capture one segment; a trailing "*" captures the rest (possibly empty).
func matchPattern(pattern, path string) (map[string]string, bool) {
	pat := splitPath(pattern)
	segs := splitPath(path)
	params := map[string]string{}

	for i, p := range pat {
		if p == "*" && i == len(pat)-1 {
			params["*"] = strings.Join(segs[min(i, len(segs)):], "/")
			return params, true
		}
		if i >= len(segs) {
			return nil, false
		}
		switch {
		case strings.HasPrefix(p, ":"):
			params[p[1:]] = segs[i]
		case p != segs[i]:
			return nil, false
		}
	}
	if len(segs) != len(pat) {
		return nil, false
	}
	return params, true
}
