package model

import "time"

// PlayRecord 播放历史，每次 Materialize 成功写入一条。只写不读，不参与解析。
type PlayRecord struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SlotID     string    `json:"slotId" gorm:"size:64;index"`
	RefKind    string    `json:"refKind" gorm:"size:16"`
	RefID      uint64    `json:"refId" gorm:"index;not null"`
	TrackID    uint64    `json:"trackId" gorm:"index;not null"`
	Title      string    `json:"title" gorm:"size:255"`
	Artist     string    `json:"artist" gorm:"size:255"`
	DurationMs int64     `json:"durationMs"`
	OffsetMs   int64     `json:"offsetMs"`
	PlayedAt   time.Time `json:"playedAt" gorm:"index"`
}

func (PlayRecord) TableName() string {
	return "play_history"
}
