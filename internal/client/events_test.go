package client

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/MarcoPoloResearchLab/trainhub/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventsDecodesFrames(t *testing.T) {
	stream := strings.NewReader("event:ready\ndata:{\"source\":\"backend\"}\n\n" +
		": comment\nevent:training-changed\ndata:{\"ids\":[\"t1\"],\"operation\":\"remove\",\"source\":\"backend\"}\n\n")

	var events []Event
	require.NoError(t, readEvents(context.Background(), stream, func(event Event) {
		events = append(events, event)
	}))
	require.Len(t, events, 2)
	assert.Equal(t, "ready", events[0].Type)
	assert.Equal(t, "training-changed", events[1].Type)
	assert.Equal(t, []string{"t1"}, events[1].IDs)
	assert.Equal(t, "remove", events[1].Operation)
}

func TestReadEventsRejectsUndecodableData(t *testing.T) {
	stream := strings.NewReader("event:inventory-changed\ndata:{\"ids\":\n\n")

	called := false
	err := readEvents(context.Background(), stream, func(Event) { called = true })
	var transportErr *transport.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, transport.KindMalformed, transportErr.Kind)
	assert.False(t, called, "a broken event must not be delivered")
	assert.Equal(t, transport.MessageMalformed, transport.UserMessage(err))
}

func TestReadEventsReportsBrokenConnection(t *testing.T) {
	broken := errors.New("connection reset by peer")
	stream := io.MultiReader(strings.NewReader("event:ready\ndata:{}\n\n"), iotest.ErrReader(broken))

	delivered := 0
	err := readEvents(context.Background(), stream, func(Event) { delivered++ })
	assert.Equal(t, 1, delivered)
	assert.True(t, transport.IsUnreachable(err))
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, transport.MessageUnreachable, transport.UserMessage(err))
}

func TestReadEventsIgnoresCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream := iotest.ErrReader(context.Canceled)

	assert.NoError(t, readEvents(ctx, stream, func(Event) {}))
}
