package netease

import (
	"context"
	"errors"
	"fmt"

	"ncmfm/logger"
	"ncmfm/model"
)

const programDetailPath = "/dj/program/detail"

type programDetailResult struct {
	Code    int `json:"code"`
	Program *struct {
		ID       int64       `json:"id"`
		Name     string      `json:"name"`
		MainSong *songDetail `json:"mainSong"`
	} `json:"program"`
}

func (r *programDetailResult) empty() bool {
	return r.Program == nil || r.Program.MainSong == nil || r.Program.MainSong.ID <= 0
}

// GetProgramTrack 解包电台节目，返回内部歌曲ID和它的元数据。
// 元数据直接取自节目详情里的 mainSong，不再额外请求歌曲详情。
func (c *Client) GetProgramTrack(ctx context.Context, programID model.TrackID) (model.TrackID, *model.TrackMetadata, error) {
	var result programDetailResult
	err := c.post(ctx, programDetailPath, map[string]any{
		"id": programID.String(),
	}, &result)
	if errors.Is(err, ErrEmptyResult) || errors.Is(err, ErrDecode) {
		return 0, nil, fmt.Errorf("%w: program %s: %w", ErrProgramHasNoTrack, programID, err)
	}
	if err != nil {
		return 0, nil, err
	}

	song := result.Program.MainSong
	metadata := song.metadata()
	trackID := model.TrackID(song.ID)

	logger.Debug("[GetProgramTrack] 节目解包成功",
		logger.Uint64("programId", uint64(programID)),
		logger.Uint64("trackId", uint64(trackID)),
		logger.String("title", metadata.Title))
	return trackID, &metadata, nil
}
