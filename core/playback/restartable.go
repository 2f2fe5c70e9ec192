package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ncmfm/core/audio"
	"ncmfm/core/netease"
	"ncmfm/logger"
	"ncmfm/model"
)

// Resolver 解析歌曲引用。*netease.Client 实现了它。
type Resolver interface {
	ProbeMetadata(ctx context.Context, ref model.TrackRef) (*model.TrackMetadata, error)
	Resolve(ctx context.Context, ref model.TrackRef) (*model.ResolvedPlayback, error)
}

// State of a Restartable.
type State int

const (
	StateUninitialized State = iota
	StateProbed
	StateMaterialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProbed:
		return "probed"
	case StateMaterialized:
		return "materialized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Restartable.
type Option func(*Restartable)

// WithSlot tags events with the playback slot (guild, session, ...) that owns the source.
func WithSlot(slotID string) Option {
	return func(r *Restartable) {
		r.slotID = slotID
	}
}

// WithListener adds a listener notified after every successful Materialize.
func WithListener(l Listener) Option {
	return func(r *Restartable) {
		if l != nil {
			r.listeners = append(r.listeners, l)
		}
	}
}

// Restartable 可重启的音源：播放地址会过期，所以每次 Materialize 都从头解析、重新拉起解码进程。
//
// Materialize 由调用方串行调用；mu 只保护当前解码进程和状态。
type Restartable struct {
	rawURL    string
	ref       model.TrackRef
	resolver  Resolver
	decoder   audio.Decoder
	slotID    string
	listeners Listeners

	mu       sync.Mutex
	state    State
	metadata *model.TrackMetadata
	stream   *audio.PCMStream
	restarts int
}

// NewRestartable parses rawURL and returns an unresolved source. No request is made.
func NewRestartable(rawURL string, resolver Resolver, decoder audio.Decoder, opts ...Option) (*Restartable, error) {
	ref, err := netease.ParseTrackRef(rawURL)
	if err != nil {
		return nil, err
	}

	r := &Restartable{
		rawURL:   rawURL,
		ref:      ref,
		resolver: resolver,
		decoder:  decoder,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Probe fetches metadata only. Every call queries the vendor again.
func (r *Restartable) Probe(ctx context.Context) (*model.TrackMetadata, error) {
	md, err := r.resolver.ProbeMetadata(ctx, r.ref)
	if err != nil {
		logger.Warn("[Restartable] 获取元数据失败",
			logger.String("ref", r.ref.String()),
			logger.ErrorField(err))
		return nil, err
	}
	probed := r.withSource(*md)

	r.mu.Lock()
	r.metadata = &probed
	if r.state == StateUninitialized {
		r.state = StateProbed
	}
	r.mu.Unlock()

	return &probed, nil
}

// Materialize resolves a fresh stream URL and starts decoding at offset.
// Any pipeline from an earlier call is terminated first, including when this
// call fails.
func (r *Restartable) Materialize(ctx context.Context, offset time.Duration) (*audio.Input, error) {
	r.terminate()

	start := time.Now()
	pb, err := r.resolver.Resolve(ctx, r.ref)
	if err != nil {
		return nil, err
	}
	md := r.withSource(pb.Metadata)
	pb.Metadata = md

	stream, err := r.decoder.Decode(pb.StreamURL, offset)
	if err != nil {
		logger.Error("[Restartable] 启动解码失败",
			logger.String("ref", r.ref.String()),
			logger.ErrorField(err))
		return nil, err
	}

	r.mu.Lock()
	r.stream = stream
	r.metadata = &md
	r.state = StateMaterialized
	r.restarts++
	restarts := r.restarts
	r.mu.Unlock()

	logger.Info("[Restartable] 音源已就绪",
		logger.String("slot", r.slotID),
		logger.String("ref", r.ref.String()),
		logger.Uint64("trackId", uint64(pb.TrackID)),
		logger.String("title", md.DisplayName()),
		logger.String("offset", audio.FormatDuration(offset)),
		logger.Int("pid", stream.PID()),
		logger.Int("restarts", restarts),
		logger.Duration("elapsed", time.Since(start)))

	r.listeners.Notify(ctx, Event{
		SlotID:    r.slotID,
		RawURL:    r.rawURL,
		Ref:       r.ref,
		Playback:  *pb,
		Offset:    offset,
		PID:       stream.PID(),
		StartedAt: start,
	})

	inputMetadata := md
	return audio.NewInput(true, stream, audio.FloatPCM, audio.Raw, &inputMetadata), nil
}

// Close terminates the attached pipeline, if any.
func (r *Restartable) Close() error {
	r.terminate()
	return nil
}

func (r *Restartable) terminate() {
	r.mu.Lock()
	stream := r.stream
	r.stream = nil
	if r.state == StateMaterialized {
		r.state = StateProbed
	}
	r.mu.Unlock()

	if stream == nil {
		return
	}
	_ = stream.Close()
	logger.Debug("[Restartable] 已终止旧的解码进程",
		logger.String("ref", r.ref.String()),
		logger.Int("pid", stream.PID()))
}

func (r *Restartable) withSource(md model.TrackMetadata) model.TrackMetadata {
	if md.SourceURL == "" {
		md.SourceURL = r.rawURL
	}
	return md
}

// State reports the current lifecycle state.
func (r *Restartable) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Metadata returns the last fetched metadata, or nil before the first Probe or Materialize.
func (r *Restartable) Metadata() *model.TrackMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.metadata == nil {
		return nil
	}
	md := *r.metadata
	return &md
}

// PID of the running decoder, 0 if none.
func (r *Restartable) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return 0
	}
	return r.stream.PID()
}

func (r *Restartable) Ref() model.TrackRef { return r.ref }

func (r *Restartable) RawURL() string { return r.rawURL }

func (r *Restartable) SlotID() string { return r.slotID }
