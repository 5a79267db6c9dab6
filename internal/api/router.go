package api

import (
	"strings"

	"github.com/tepel-chen/demil/internal/engine"
)

// Route names. Match tries them in the order of routeOrder.
const (
	RouteStart          = "startMission"
	RouteLoad           = "loadMission"
	RouteDetail         = "missionDetail"
	RouteToCDetail      = "tocDetail"
	RouteMissions       = "missions"
	RouteSaveAndDisable = "saveAndDisable"
	RouteVersion        = "version"
	RouteRequests       = "requests"
	RouteStats          = "stats"

	RouteDefault  = "default"
	RouteNotFound = "notFound"
)

var routeOrder = []string{
	RouteStart,
	RouteLoad,
	RouteDetail,
	RouteToCDetail,
	RouteMissions,
	RouteSaveAndDisable,
	RouteVersion,
	RouteRequests,
	RouteStats,
}

// RouteNames lists the command routes in match order.
func RouteNames() []string {
	out := make([]string, len(routeOrder))
	copy(out, routeOrder)
	return out
}

// Match picks the route for path by substring on its first segment. A path
// without segments maps to RouteDefault and anything unknown to
// RouteNotFound.
func Match(path string) string {
	var first string
	for seg := range strings.SplitSeq(path, "/") {
		if seg != "" {
			first = seg
			break
		}
	}
	if first == "" {
		return RouteDefault
	}
	for _, name := range routeOrder {
		if strings.Contains(first, name) {
			return name
		}
	}
	return RouteNotFound
}

// Router maps paths to command handlers. It implements engine.Router.
type Router struct {
	handlers map[string]engine.Handler
}

// NewRouter binds every route to its handler on c.
func NewRouter(c *Commands) *Router {
	return &Router{handlers: map[string]engine.Handler{
		RouteStart:          c.handleStart,
		RouteLoad:           c.handleLoad,
		RouteDetail:         c.handleDetail(false),
		RouteToCDetail:      c.handleDetail(true),
		RouteMissions:       c.handleList,
		RouteSaveAndDisable: c.handleSaveAndDisable,
		RouteVersion:        c.handleVersion,
		RouteRequests:       c.handleRequests,
		RouteStats:          c.handleStats,
		RouteDefault:        c.handleDefault,
		RouteNotFound:       c.handleNotFound,
	}}
}

// Route implements engine.Router.
func (r *Router) Route(path string) (string, engine.Handler) {
	name := Match(path)
	return name, r.handlers[name]
}

var _ engine.Router = (*Router)(nil)
