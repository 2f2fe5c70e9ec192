package playback

import (
	"context"
	"time"

	"ncmfm/logger"
	"ncmfm/model"
)

// Event describes one successful Materialize.
type Event struct {
	SlotID    string
	RawURL    string
	Ref       model.TrackRef
	Playback  model.ResolvedPlayback
	Offset    time.Duration
	PID       int
	StartedAt time.Time
}

// Listener observes playback starts. Errors are logged and never stop playback.
type Listener interface {
	OnMaterialize(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

func (f ListenerFunc) OnMaterialize(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Listeners notifies each listener in order.
type Listeners []Listener

// Notify calls every listener. Failures are logged and do not stop the others.
func (ls Listeners) Notify(ctx context.Context, ev Event) {
	for _, l := range ls {
		if err := l.OnMaterialize(ctx, ev); err != nil {
			logger.Warn("[Listeners] 播放事件处理失败",
				logger.String("slot", ev.SlotID),
				logger.String("ref", ev.Ref.String()),
				logger.ErrorField(err))
		}
	}
}
