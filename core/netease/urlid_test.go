package netease

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncmfm/model"
)

func TestParseTrackRef(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want model.TrackRef
	}{
		{
			name: "song with fragment marker",
			url:  "https://music.163.com/#/song?id=26209670",
			want: model.TrackRef{Kind: model.Standalone, ID: 26209670},
		},
		{
			name: "song without fragment",
			url:  "https://music.163.com/song?id=26209670&userid=1",
			want: model.TrackRef{Kind: model.Standalone, ID: 26209670},
		},
		{
			name: "program",
			url:  "https://music.163.com/#/program?id=2061034798",
			want: model.TrackRef{Kind: model.Program, ID: 2061034798},
		},
		{
			name: "dj program path",
			url:  "https://music.163.com/#/dj/program?id=1",
			want: model.TrackRef{Kind: model.Program, ID: 1},
		},
		{
			name: "program substring anywhere",
			url:  "https://music.163.com/song?id=5&from=program",
			want: model.TrackRef{Kind: model.Program, ID: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrackRef(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTrackRef_Invalid(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"no id", "https://music.163.com/#/song"},
		{"empty id", "https://music.163.com/#/song?id="},
		{"non numeric", "https://music.163.com/#/song?id=abc"},
		{"negative", "https://music.163.com/#/song?id=-3"},
		{"overflow", "https://music.163.com/#/song?id=99999999999999999999999"},
		{"bad escape", "https://music.163.com/song?id=%zz"},
		{"not a url", "://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTrackRef(tt.url)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestIsNeteaseURL(t *testing.T) {
	assert.True(t, IsNeteaseURL("https://music.163.com/#/song?id=1"))
	assert.True(t, IsNeteaseURL("http://y.music.163.com/m/song?id=1"))
	assert.True(t, IsNeteaseURL("https://MUSIC.163.com/song?id=1"))
	assert.False(t, IsNeteaseURL("https://example.com/song.mp3"))
	assert.False(t, IsNeteaseURL("https://notmusic.163.com.evil.org/song?id=1"))
	assert.False(t, IsNeteaseURL("/local/file.flac"))
}
