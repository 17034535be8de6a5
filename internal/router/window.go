package router

import (
	"slices"
	"strings"
	"sync"
)

// Anchor is the link element a click landed on.
type Anchor struct {
	Href   string
	Target string
	// Download marks links that save a file instead of navigating.
	Download bool
}

// ClickEvent is a click dispatched by a Window.
type ClickEvent struct {
	Anchor *Anchor
	// Modified is set when a modifier key asks the browser for a new tab or window.
	Modified  bool
	prevented bool
}

// PreventDefault stops the window from performing a full page load.
func (e *ClickEvent) PreventDefault() {
	e.prevented = true
}

// DefaultPrevented reports whether a listener claimed the click.
func (e *ClickEvent) DefaultPrevented() bool {
	return e.prevented
}

// Window is the browsing context the router drives: its location, session history and
// the click and popstate events it emits.
type Window interface {
	Origin() string
	// Location returns the current path with its query and fragment.
	Location() string
	Push(url string)
	Replace(url string)
	AddClickListener(listener func(*ClickEvent)) (remove func())
	AddPopStateListener(listener func()) (remove func())
}

// MemoryWindow is a Window whose history lives in memory.
type MemoryWindow struct {
	mu        sync.Mutex
	origin    string
	entries   []string
	index     int
	loads     []string
	nextID    int
	clicks    map[int]func(*ClickEvent)
	popStates map[int]func()
}

// NewMemoryWindow opens a window at initial, which is a path relative to origin.
func NewMemoryWindow(origin, initial string) *MemoryWindow {
	if initial == "" {
		initial = "/"
	}
	return &MemoryWindow{
		origin:    strings.TrimRight(origin, "/"),
		entries:   []string{initial},
		clicks:    make(map[int]func(*ClickEvent)),
		popStates: make(map[int]func()),
	}
}

func (w *MemoryWindow) Origin() string {
	return w.origin
}

func (w *MemoryWindow) Location() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries[w.index]
}

// Push adds an entry after the current one, dropping any forward history.
func (w *MemoryWindow) Push(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries[:w.index+1], url)
	w.index++
}

// Replace overwrites the current entry.
func (w *MemoryWindow) Replace(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[w.index] = url
}

// History returns a copy of the session history and the index of the current entry.
func (w *MemoryWindow) History() ([]string, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.entries...), w.index
}

// Loads lists the URLs the window loaded in full because no listener claimed the click.
func (w *MemoryWindow) Loads() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.loads...)
}

// Back moves one entry back and fires popstate. It reports false at the start of history.
func (w *MemoryWindow) Back() bool {
	return w.traverse(-1)
}

// Forward moves one entry forward and fires popstate.
func (w *MemoryWindow) Forward() bool {
	return w.traverse(1)
}

func (w *MemoryWindow) traverse(delta int) bool {
	w.mu.Lock()
	target := w.index + delta
	if target < 0 || target >= len(w.entries) {
		w.mu.Unlock()
		return false
	}
	w.index = target
	listeners := collect(w.popStates)
	w.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
	return true
}

// Click dispatches a click on anchor. When no listener prevents the default the window
// performs a full load: the URL is pushed and recorded in Loads without popstate.
func (w *MemoryWindow) Click(anchor Anchor, modified bool) *ClickEvent {
	event := &ClickEvent{Anchor: &anchor, Modified: modified}
	w.mu.Lock()
	listeners := collect(w.clicks)
	w.mu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
	if !event.DefaultPrevented() {
		w.mu.Lock()
		w.loads = append(w.loads, anchor.Href)
		w.mu.Unlock()
		if local, ok := SameOrigin(w.origin, anchor.Href); ok && anchor.Target == "" && !modified {
			w.Push(local)
		}
	}
	return event
}

func (w *MemoryWindow) AddClickListener(listener func(*ClickEvent)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.clicks[id] = listener
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.clicks, id)
	}
}

func (w *MemoryWindow) AddPopStateListener(listener func()) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.popStates[id] = listener
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.popStates, id)
	}
}

// Listeners reports how many click and popstate listeners are attached.
func (w *MemoryWindow) Listeners() (clicks, popStates int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clicks), len(w.popStates)
}

// collect returns listeners in registration order.
func collect[F any](listeners map[int]F) []F {
	ids := make([]int, 0, len(listeners))
	for id := range listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]F, 0, len(ids))
	for _, id := range ids {
		out = append(out, listeners[id])
	}
	return out
}

// SameOrigin returns the path form of href when it points at origin. Relative paths
// starting with a single slash are same-origin.
func SameOrigin(origin, href string) (string, bool) {
	switch {
	case strings.HasPrefix(href, "//"):
		return "", false
	case strings.HasPrefix(href, "/"):
		return href, true
	case origin != "" && (href == origin || strings.HasPrefix(href, origin+"/") || strings.HasPrefix(href, origin+"?") || strings.HasPrefix(href, origin+"#")):
		local := strings.TrimPrefix(href, origin)
		if local == "" || local[0] != '/' {
			local = "/" + local
		}
		return local, true
	default:
		return "", false
	}
}
