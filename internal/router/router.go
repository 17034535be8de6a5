// Package router is the single-page navigation layer: it resolves locations to render
// functions, keeps the window's history in step, intercepts in-app links and tells
// subscribers about every navigation.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrMissingWindow indicates a router without a browsing context.
	ErrMissingWindow = errors.New("router: window required")
	// ErrNoRoutes indicates an empty route table.
	ErrNoRoutes = errors.New("router: at least one route required")
	// ErrMissingMount indicates a route table without a mount point.
	ErrMissingMount = errors.New("router: mount point required")
	// ErrRoutesAlreadySet indicates a second SetRoutes call.
	ErrRoutesAlreadySet = errors.New("router: routes already set")
)

const rootPath = "/"

// Mount is the area a route renders into.
type Mount interface {
	Clear()
	// ShowError replaces the content with an error panel for message.
	ShowError(message string)
}

// Render draws a route into mount. Returning Redirect(path) navigates once rendering ends.
type Render func(ctx context.Context, mount Mount) error

// Route binds a path to its render function.
type Route struct {
	Path   string
	Render Render
}

// Change is published after every route handling, whether or not rendering succeeded.
type Change struct {
	// Location is the location that was handled, including any query.
	Location string
	// Route is the path of the resolved route.
	Route string
	// Err is the render failure, if any.
	Err *RenderError
}

// RenderError wraps a failure raised while rendering a route.
type RenderError struct {
	Route string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Route, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Panel is the text of the inline error panel.
func (e *RenderError) Panel() string {
	return "Error\n" + e.Err.Error()
}

type redirectError struct {
	location string
}

func (e *redirectError) Error() string {
	return "redirect to " + e.location
}

// Redirect asks the router to navigate to location after the current render returns.
func Redirect(location string) error {
	return &redirectError{location: location}
}

// Config wires a Router.
type Config struct {
	Window  Window
	Logger  *zap.Logger
	Context context.Context
}

type subscriber struct {
	id     int
	listen func(Change)
}

// Router owns navigation for one window.
type Router struct {
	window Window
	logger *zap.Logger
	ctx    context.Context

	mu          sync.Mutex
	routes      []Route
	mount       Mount
	subscribers []subscriber
	nextID      int
	detach      []func()
}

// New attaches a router to cfg.Window. Close detaches it.
func New(cfg Config) (*Router, error) {
	if cfg.Window == nil {
		return nil, ErrMissingWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	r := &Router{window: cfg.Window, logger: logger, ctx: ctx}
	r.detach = []func(){
		cfg.Window.AddClickListener(r.interceptClick),
		cfg.Window.AddPopStateListener(func() { r.OnRoute() }),
	}
	return r, nil
}

// Close removes the window listeners.
func (r *Router) Close() {
	r.mu.Lock()
	detach := r.detach
	r.detach = nil
	r.mu.Unlock()
	for _, remove := range detach {
		remove()
	}
}

// SetRoutes registers the route table and mount point. The first route is the fallback.
func (r *Router) SetRoutes(routes []Route, mount Mount) error {
	if len(routes) == 0 {
		return ErrNoRoutes
	}
	if mount == nil {
		return ErrMissingMount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routes != nil {
		return ErrRoutesAlreadySet
	}
	r.routes = append([]Route(nil), routes...)
	r.mount = mount
	return nil
}

// Resolve picks the route for location: an exact path match, else the longest registered
// path other than the root that prefixes it, else the first route.
func (r *Router) Resolve(location string) Route {
	r.mu.Lock()
	routes := r.routes
	r.mu.Unlock()
	return resolve(routes, location)
}

func resolve(routes []Route, location string) Route {
	if len(routes) == 0 {
		return Route{}
	}
	path := pathOf(location)
	for _, route := range routes {
		if route.Path == path {
			return route
		}
	}
	best := -1
	for index, route := range routes {
		if route.Path == rootPath || route.Path == "" || !strings.HasPrefix(path, route.Path) {
			continue
		}
		if best < 0 || len(route.Path) > len(routes[best].Path) {
			best = index
		}
	}
	if best >= 0 {
		return routes[best]
	}
	return routes[0]
}

// Navigate moves to location and renders it. It does nothing when the window is already
// there unless force is set, and reports whether a render happened.
func (r *Router) Navigate(location string, force bool) bool {
	current := withoutFragment(r.window.Location())
	if current == location && !force {
		return false
	}
	if current != location {
		r.window.Push(location)
	}
	r.OnRoute()
	return true
}

// OnRoute renders the window's current location. Render failures are shown in the mount
// point and never escape.
func (r *Router) OnRoute() Change {
	location := r.window.Location()
	if legacy, ok := legacyHashPath(location); ok {
		r.window.Replace(legacy)
		location = legacy
	}
	location = withoutFragment(location)

	r.mu.Lock()
	routes := r.routes
	mount := r.mount
	r.mu.Unlock()

	change := Change{Location: location}
	var redirect *redirectError
	if len(routes) > 0 {
		route := resolve(routes, location)
		change.Route = route.Path
		mount.Clear()
		err := r.render(route, mount)
		switch {
		case err == nil:
		case errors.As(err, &redirect):
		default:
			renderErr := &RenderError{Route: route.Path, Err: err}
			r.logger.Warn("route render failed", zap.String("route", route.Path), zap.Error(err))
			mount.ShowError(renderErr.Panel())
			change.Err = renderErr
		}
	}

	r.publish(change)
	if redirect != nil {
		r.Navigate(redirect.location, false)
	}
	return change
}

// Subscribe registers listen for navigation changes until cancel is called.
func (r *Router) Subscribe(listen func(Change)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subscribers = append(r.subscribers, subscriber{id: id, listen: listen})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for index, entry := range r.subscribers {
			if entry.id == id {
				r.subscribers = append(r.subscribers[:index:index], r.subscribers[index+1:]...)
				return
			}
		}
	}
}

func (r *Router) publish(change Change) {
	r.mu.Lock()
	listeners := make([]func(Change), 0, len(r.subscribers))
	for _, entry := range r.subscribers {
		listeners = append(listeners, entry.listen)
	}
	r.mu.Unlock()
	for _, listen := range listeners {
		listen(change)
	}
}

func (r *Router) render(route Route, mount Mount) (err error) {
	if route.Render == nil {
		return nil
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return route.Render(r.ctx, mount)
}

func (r *Router) interceptClick(event *ClickEvent) {
	if event.DefaultPrevented() || event.Modified || event.Anchor == nil {
		return
	}
	anchor := event.Anchor
	if anchor.Download || (anchor.Target != "" && anchor.Target != "_self") {
		return
	}
	local, ok := SameOrigin(r.window.Origin(), anchor.Href)
	if !ok {
		return
	}
	event.PreventDefault()
	r.Navigate(local, false)
}

func legacyHashPath(location string) (string, bool) {
	index := strings.Index(location, "#/")
	if index < 0 {
		return "", false
	}
	return location[index+1:], true
}

func withoutFragment(location string) string {
	if index := strings.IndexByte(location, '#'); index >= 0 {
		return location[:index]
	}
	return location
}

func pathOf(location string) string {
	path := withoutFragment(location)
	if index := strings.IndexByte(path, '?'); index >= 0 {
		path = path[:index]
	}
	if path == "" {
		return rootPath
	}
	return path
}
