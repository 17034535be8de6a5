package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MarcoPoloResearchLab/trainhub/internal/transport"
)

const opWatch = "GET /api/events"

// Event is one change notification from the server feed.
type Event struct {
	Type      string   `json:"-"`
	IDs       []string `json:"ids"`
	Operation string   `json:"operation,omitempty"`
	Timestamp string   `json:"timestamp"`
	Source    string   `json:"source"`
}

// Watch follows the change feed and calls handle for every event until ctx ends or the
// server closes the stream. A cancelled ctx is not reported as an error; a broken
// connection or an undecodable event is a *transport.TransportError.
func (a *API) Watch(ctx context.Context, handle func(Event)) error {
	body, err := a.transport.Stream(ctx, "/api/events", nil)
	if err != nil {
		return err
	}
	defer body.Close()
	return readEvents(ctx, body, handle)
}

func readEvents(ctx context.Context, stream io.Reader, handle func(Event)) error {
	scanner := bufio.NewScanner(stream)
	var eventType string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventType != "" {
				event := Event{}
				if data.Len() > 0 {
					if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
						return &transport.TransportError{
							Kind: transport.KindMalformed,
							Op:   opWatch,
							Err:  fmt.Errorf("decode %s event: %w", eventType, err),
						}
					}
				}
				event.Type = eventType
				handle(event)
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return &transport.TransportError{Kind: transport.KindUnreachable, Op: opWatch, Err: err}
	}
	return nil
}
