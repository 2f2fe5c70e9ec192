package cmd

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncmfm/config"
	"ncmfm/core/audio"
	"ncmfm/core/playback"
	"ncmfm/model"
)

func TestPCMDuration(t *testing.T) {
	md := model.NewTrackMetadata("t", nil, 0)
	input := audio.NewInput(true, io.NopCloser(strings.NewReader("")), audio.FloatPCM, audio.Raw, &md)

	// 48000 帧 * 8 字节 = 1 秒
	assert.Equal(t, time.Second, pcmDuration(384000, input))
	assert.Equal(t, 500*time.Millisecond, pcmDuration(192000, input))
	assert.Equal(t, time.Duration(0), pcmDuration(0, input))
}

func TestSetupListeners_NothingConfigured(t *testing.T) {
	listeners, cleanup := setupListeners(&config.Config{})
	defer cleanup()
	assert.Empty(t, listeners)
}

func TestListenerOptions(t *testing.T) {
	l := playback.ListenerFunc(func(context.Context, playback.Event) error {
		return nil
	})

	opts := listenerOptions(playback.Listeners{l, l})
	assert.Len(t, opts, 2)
}

func TestNewPluginManager(t *testing.T) {
	plugins := newPluginManager(&config.Config{FFmpegPath: "ffmpeg"})
	assert.Equal(t, []string{"netease"}, plugins.Sources())

	src, err := plugins.Resolve("https://music.163.com/#/song?id=26209670")
	require.NoError(t, err)
	assert.Equal(t, "song:26209670", src.Ref().String())

	_, err = plugins.Resolve("https://example.com/a.mp3")
	assert.Error(t, err)
}
