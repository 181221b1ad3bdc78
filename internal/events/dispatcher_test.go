package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	calls := []string{}

	d.Subscribe(EventProcessMoved, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("notification store down")
	})
	d.Subscribe(EventProcessMoved, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventProcessStarted, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventProcessMoved, ProcessID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}
