// Package shell is the text view layer of the trainhub client. It renders each route into
// a Screen and turns typed commands into store operations and navigations.
package shell

import (
	"fmt"
	"strings"
	"sync"
)

// Screen is a line buffer used as the router's mount point.
type Screen struct {
	mu    sync.Mutex
	lines []string
}

// Clear drops the current content.
func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
}

// ShowError replaces the content with the error panel.
func (s *Screen) ShowError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = strings.Split(message, "\n")
}

// Printf appends one formatted line.
func (s *Screen) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, fmt.Sprintf(format, args...))
}

// String returns the content, one line per row.
func (s *Screen) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return ""
	}
	return strings.Join(s.lines, "\n") + "\n"
}
