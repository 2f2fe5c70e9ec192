package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncmfm/core/audio"
	"ncmfm/core/netease"
	"ncmfm/model"
)

const songURL = "https://music.163.com/#/song?id=26209670"

var _ Resolver = (*netease.Client)(nil)

type fakeResolver struct {
	mu           sync.Mutex
	probeCalls   int
	resolveCalls int
	resolveErr   error
	probeErr     error
}

func (f *fakeResolver) ProbeMetadata(_ context.Context, ref model.TrackRef) (*model.TrackMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls++
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	md := model.NewTrackMetadata(fmt.Sprintf("probe-%d", f.probeCalls), []string{"Adele"}, 295000)
	return &md, nil
}

func (f *fakeResolver) Resolve(_ context.Context, ref model.TrackRef) (*model.ResolvedPlayback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &model.ResolvedPlayback{
		TrackID:   ref.ID,
		StreamURL: fmt.Sprintf("http://cdn/%d/url-%d.mp3", ref.ID, f.resolveCalls),
		Metadata:  model.NewTrackMetadata(fmt.Sprintf("resolve-%d", f.resolveCalls), []string{"Adele"}, 295000),
	}, nil
}

func (f *fakeResolver) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeCalls, f.resolveCalls
}

// recordingDecoder remembers every URL and stream it was asked for.
type recordingDecoder struct {
	inner audio.Decoder
	err   error

	mu      sync.Mutex
	urls    []string
	offsets []time.Duration
	streams []*audio.PCMStream
}

func (d *recordingDecoder) Decode(url string, offset time.Duration) (*audio.PCMStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	d.offsets = append(d.offsets, offset)
	if d.err != nil {
		return nil, d.err
	}
	s, err := d.inner.Decode(url, offset)
	if err == nil {
		d.streams = append(d.streams, s)
	}
	return s, err
}

func newLongRunningDecoder(t *testing.T) *recordingDecoder {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs /bin/sh")
	}

	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nprintf 'pcm'\nexec sleep 30\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return &recordingDecoder{inner: audio.NewFFmpegDecoder(path)}
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func TestNewRestartable_InvalidURL(t *testing.T) {
	r, err := NewRestartable("https://music.163.com/#/song", &fakeResolver{}, &recordingDecoder{})
	assert.Nil(t, r)
	assert.ErrorIs(t, err, netease.ErrInvalidURL)
}

func TestNewRestartable_DoesNotResolve(t *testing.T) {
	resolver := &fakeResolver{}
	r, err := NewRestartable("https://music.163.com/#/program?id=2061034798", resolver, &recordingDecoder{}, WithSlot("guild-1"))
	require.NoError(t, err)

	assert.Equal(t, StateUninitialized, r.State())
	assert.Equal(t, model.TrackRef{Kind: model.Program, ID: 2061034798}, r.Ref())
	assert.Equal(t, "guild-1", r.SlotID())
	assert.Nil(t, r.Metadata())

	probes, resolves := resolver.counts()
	assert.Zero(t, probes)
	assert.Zero(t, resolves)
}

func TestRestartable_Probe(t *testing.T) {
	resolver := &fakeResolver{}
	r, err := NewRestartable(songURL, resolver, &recordingDecoder{})
	require.NoError(t, err)

	md, err := r.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "probe-1", md.Title)
	assert.Equal(t, songURL, md.SourceURL)
	assert.Equal(t, StateProbed, r.State())

	// probing again queries again
	md, err = r.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "probe-2", md.Title)

	_, resolves := resolver.counts()
	assert.Zero(t, resolves)
	assert.Zero(t, r.PID())
}

func TestRestartable_ProbeError(t *testing.T) {
	resolver := &fakeResolver{probeErr: netease.ErrTrackNotFound}
	r, err := NewRestartable(songURL, resolver, &recordingDecoder{})
	require.NoError(t, err)

	_, err = r.Probe(context.Background())
	assert.ErrorIs(t, err, netease.ErrTrackNotFound)
	assert.Equal(t, StateUninitialized, r.State())
}

func TestRestartable_MaterializeTwice(t *testing.T) {
	resolver := &fakeResolver{}
	decoder := newLongRunningDecoder(t)

	r, err := NewRestartable(songURL, resolver, decoder)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Materialize(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StateMaterialized, r.State())
	assert.Equal(t, "resolve-1", first.Metadata.Title)
	assert.True(t, first.Stereo)
	assert.Equal(t, audio.FloatPCM, first.Codec)
	assert.Equal(t, audio.Raw, first.Container)

	buf := make([]byte, 3)
	_, err = io.ReadFull(first, buf)
	require.NoError(t, err)
	assert.Equal(t, "pcm", string(buf))

	firstPID := r.PID()
	require.True(t, processAlive(firstPID))

	second, err := r.Materialize(context.Background(), 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "resolve-2", second.Metadata.Title)

	_, resolves := resolver.counts()
	assert.Equal(t, 2, resolves)

	require.Len(t, decoder.urls, 2)
	assert.NotEqual(t, decoder.urls[0], decoder.urls[1])
	assert.Equal(t, []time.Duration{0, 90 * time.Second}, decoder.offsets)

	secondPID := r.PID()
	assert.NotEqual(t, firstPID, secondPID)
	assert.False(t, processAlive(firstPID))
	assert.True(t, decoder.streams[0].Exited())
	assert.True(t, processAlive(secondPID))

	require.NoError(t, r.Close())
	assert.False(t, processAlive(secondPID))
	assert.Equal(t, StateProbed, r.State())
	assert.Zero(t, r.PID())
}

func TestRestartable_MaterializeFailureStillTerminates(t *testing.T) {
	tests := []struct {
		name    string
		breakIt func(*fakeResolver, *recordingDecoder)
		wantErr error
	}{
		{
			name:    "resolve fails",
			breakIt: func(r *fakeResolver, _ *recordingDecoder) { r.resolveErr = netease.ErrNoURLAvailable },
			wantErr: netease.ErrNoURLAvailable,
		},
		{
			name:    "spawn fails",
			breakIt: func(_ *fakeResolver, d *recordingDecoder) { d.err = audio.ErrSpawn },
			wantErr: audio.ErrSpawn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{}
			decoder := newLongRunningDecoder(t)

			r, err := NewRestartable(songURL, resolver, decoder)
			require.NoError(t, err)
			defer r.Close()

			_, err = r.Materialize(context.Background(), 0)
			require.NoError(t, err)
			pid := r.PID()

			resolver.mu.Lock()
			decoder.mu.Lock()
			tt.breakIt(resolver, decoder)
			decoder.mu.Unlock()
			resolver.mu.Unlock()

			in, err := r.Materialize(context.Background(), 10*time.Second)
			assert.Nil(t, in)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.False(t, processAlive(pid))
			assert.Zero(t, r.PID())
			assert.Equal(t, StateProbed, r.State())
		})
	}
}

func TestRestartable_Listeners(t *testing.T) {
	decoder := newLongRunningDecoder(t)

	var events []Event
	record := ListenerFunc(func(_ context.Context, ev Event) error {
		events = append(events, ev)
		return nil
	})
	failing := ListenerFunc(func(context.Context, Event) error {
		return errors.New("redis down")
	})

	r, err := NewRestartable(songURL, &fakeResolver{}, decoder,
		WithSlot("guild-1"),
		WithListener(failing),
		WithListener(record),
		WithListener(nil))
	require.NoError(t, err)
	defer r.Close()

	in, err := r.Materialize(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, in)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "guild-1", ev.SlotID)
	assert.Equal(t, songURL, ev.RawURL)
	assert.Equal(t, model.TrackID(26209670), ev.Playback.TrackID)
	assert.Equal(t, 5*time.Second, ev.Offset)
	assert.Equal(t, r.PID(), ev.PID)
	assert.Equal(t, songURL, ev.Playback.Metadata.SourceURL)
}

func TestListeners_Notify(t *testing.T) {
	var order []string
	named := func(name string, err error) Listener {
		return ListenerFunc(func(context.Context, Event) error {
			order = append(order, name)
			return err
		})
	}

	Listeners{
		named("metrics", nil),
		named("redis", errors.New("redis down")),
		named("history", nil),
	}.Notify(context.Background(), Event{SlotID: "guild-1"})

	assert.Equal(t, []string{"metrics", "redis", "history"}, order)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "probed", StateProbed.String())
	assert.Equal(t, "materialized", StateMaterialized.String())
	assert.Equal(t, "State(9)", State(9).String())
}
