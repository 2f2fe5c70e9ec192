package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"ncmfm/core/playback"
	"ncmfm/logger"
	"ncmfm/model"
)

// PlayHistoryRepository 播放历史数据访问接口。只写，不参与解析。
type PlayHistoryRepository interface {
	Record(ctx context.Context, rec *model.PlayRecord) error
}

// gormPlayHistoryRepository GORM 实现
type gormPlayHistoryRepository struct {
	db *gorm.DB
}

// NewGormPlayHistoryRepository 创建 GORM 播放历史仓库
func NewGormPlayHistoryRepository(db *gorm.DB) PlayHistoryRepository {
	return &gormPlayHistoryRepository{db: db}
}

// Record 写入一条播放记录
func (r *gormPlayHistoryRepository) Record(ctx context.Context, rec *model.PlayRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert play record: %w", err)
	}
	return nil
}

// NewPlayRecord 把一次播放事件转成数据库记录
func NewPlayRecord(ev playback.Event) *model.PlayRecord {
	md := ev.Playback.Metadata
	return &model.PlayRecord{
		SlotID:     ev.SlotID,
		RefKind:    ev.Ref.Kind.String(),
		RefID:      uint64(ev.Ref.ID),
		TrackID:    uint64(ev.Playback.TrackID),
		Title:      truncateRunes(md.DisplayName(), 255),
		Artist:     truncateRunes(md.Artist(), 255),
		DurationMs: md.Duration.Milliseconds(),
		OffsetMs:   ev.Offset.Milliseconds(),
		PlayedAt:   ev.StartedAt,
	}
}

// PlayHistoryListener 在每次播放开始时写入历史
type PlayHistoryListener struct {
	repo PlayHistoryRepository
}

func NewPlayHistoryListener(repo PlayHistoryRepository) *PlayHistoryListener {
	return &PlayHistoryListener{repo: repo}
}

func (l *PlayHistoryListener) OnMaterialize(ctx context.Context, ev playback.Event) error {
	rec := NewPlayRecord(ev)
	if err := l.repo.Record(ctx, rec); err != nil {
		return err
	}
	logger.Debug("[PlayHistory] 已记录播放",
		logger.String("slot", rec.SlotID),
		logger.Uint64("trackId", rec.TrackID),
		logger.Int64("recordId", rec.ID))
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
