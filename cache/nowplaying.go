package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ncmfm/core/audio"
	"ncmfm/core/playback"
	"ncmfm/logger"
)

const (
	// NowPlayingChannel 播放事件的发布频道
	NowPlayingChannel = "ncmfm:nowplaying"

	nowPlayingKeyPrefix = "ncmfm:nowplaying:"
	defaultSlot         = "default"
)

// NowPlaying 发布到频道、写入槽位哈希的内容
type NowPlaying struct {
	SlotID     string `json:"slotId"`
	Ref        string `json:"ref"`
	TrackID    uint64 `json:"trackId"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	DurationMs int64  `json:"durationMs"`
	OffsetMs   int64  `json:"offsetMs"`
	Position   string `json:"position"`
	Length     string `json:"length"`
	StartedAt  int64  `json:"startedAt"`
}

// NewNowPlaying 把播放事件转换成对外发布的结构
func NewNowPlaying(ev playback.Event) NowPlaying {
	md := ev.Playback.Metadata
	slot := ev.SlotID
	if slot == "" {
		slot = defaultSlot
	}
	return NowPlaying{
		SlotID:     slot,
		Ref:        ev.Ref.String(),
		TrackID:    uint64(ev.Playback.TrackID),
		Title:      md.DisplayName(),
		Artist:     md.Artist(),
		DurationMs: md.Duration.Milliseconds(),
		OffsetMs:   ev.Offset.Milliseconds(),
		Position:   audio.FormatDuration(ev.Offset),
		Length:     audio.FormatDuration(md.Duration),
		StartedAt:  ev.StartedAt.UnixMilli(),
	}
}

// NowPlayingKey 槽位对应的哈希键
func NowPlayingKey(slotID string) string {
	if slotID == "" {
		slotID = defaultSlot
	}
	return nowPlayingKeyPrefix + slotID
}

// NowPlayingPublisher 把每次播放开始写入 Redis：槽位哈希（带过期）+ 频道广播。
// 只写不读，解析永远不经过这里。
type NowPlayingPublisher struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewNowPlayingPublisher(client redis.Cmdable, ttl time.Duration) *NowPlayingPublisher {
	return &NowPlayingPublisher{client: client, ttl: ttl}
}

func (p *NowPlayingPublisher) OnMaterialize(ctx context.Context, ev playback.Event) error {
	np := NewNowPlaying(ev)
	payload, err := json.Marshal(np)
	if err != nil {
		return fmt.Errorf("marshal now playing: %w", err)
	}

	key := NowPlayingKey(np.SlotID)
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key,
		"ref", np.Ref,
		"trackId", np.TrackID,
		"title", np.Title,
		"artist", np.Artist,
		"durationMs", np.DurationMs,
		"offsetMs", np.OffsetMs,
		"startedAt", np.StartedAt,
	)
	if p.ttl > 0 {
		pipe.Expire(ctx, key, p.ttl)
	}
	pipe.Publish(ctx, NowPlayingChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish now playing: %w", err)
	}

	logger.Debug("[NowPlaying] 已发布",
		logger.String("slot", np.SlotID),
		logger.String("title", np.Title),
		logger.String("position", np.Position))
	return nil
}
