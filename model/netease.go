package model

import (
	"strconv"
	"strings"
	"time"
)

const (
	// SampleRate 解码输出采样率
	SampleRate = 48000
	// ChannelCount 解码输出声道数
	ChannelCount = 2
)

// TrackID 网易云歌曲ID
type TrackID uint64

func (id TrackID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// RefKind 引用类型：普通歌曲或电台节目
type RefKind int

const (
	Standalone RefKind = iota
	Program
)

func (k RefKind) String() string {
	if k == Program {
		return "program"
	}
	return "song"
}

// TrackRef 从URL解析出的歌曲引用。Program 需要先解包出内部歌曲才能播放。
type TrackRef struct {
	Kind RefKind `json:"kind"`
	ID   TrackID `json:"id"`
}

func (r TrackRef) String() string {
	return r.Kind.String() + ":" + r.ID.String()
}

// TrackMetadata 播放元数据。Title 为空或 Duration 为 0 表示未知。
type TrackMetadata struct {
	Title      string        `json:"title,omitempty"`
	Artists    []string      `json:"artists"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	SourceURL  string        `json:"sourceUrl,omitempty"`
}

// NewTrackMetadata 构造固定采样格式的元数据
func NewTrackMetadata(title string, artists []string, durationMillis uint64) TrackMetadata {
	return TrackMetadata{
		Title:      title,
		Artists:    artists,
		Duration:   time.Duration(durationMillis) * time.Millisecond,
		SampleRate: SampleRate,
		Channels:   ChannelCount,
	}
}

// Artist 以 ", " 连接的艺术家名称
func (m TrackMetadata) Artist() string {
	return strings.Join(m.Artists, ", ")
}

// DisplayName 标题，缺失时依次退回来源URL和 "song"
func (m TrackMetadata) DisplayName() string {
	switch {
	case m.Title != "":
		return m.Title
	case m.SourceURL != "":
		return m.SourceURL
	default:
		return "song"
	}
}

// ResolvedPlayback 一次完整解析的结果，每次重启都会重新计算
type ResolvedPlayback struct {
	TrackID   TrackID
	StreamURL string
	Metadata  TrackMetadata
}
