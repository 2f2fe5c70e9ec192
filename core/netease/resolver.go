package netease

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ncmfm/logger"
	"ncmfm/model"
)

// ProbeMetadata 只获取元数据，不请求播放地址。节目会先解包。
func (c *Client) ProbeMetadata(ctx context.Context, ref model.TrackRef) (*model.TrackMetadata, error) {
	if ref.Kind == model.Program {
		_, metadata, err := c.GetProgramTrack(ctx, ref.ID)
		return metadata, err
	}
	return c.GetSongMetadata(ctx, []model.TrackID{ref.ID})
}

// Resolve 完整解析：播放地址 + 元数据。每次调用都重新签名、重新请求。
func (c *Client) Resolve(ctx context.Context, ref model.TrackRef) (*model.ResolvedPlayback, error) {
	start := time.Now()

	var (
		playback *model.ResolvedPlayback
		err      error
	)
	if ref.Kind == model.Program {
		playback, err = c.resolveProgram(ctx, ref.ID)
	} else {
		playback, err = c.resolveSong(ctx, ref.ID)
	}
	if err != nil {
		logger.Warn("[Resolve] 解析失败", logger.String("ref", ref.String()), logger.ErrorField(err))
		return nil, err
	}

	logger.Info("[Resolve] 解析完成",
		logger.String("ref", ref.String()),
		logger.Uint64("trackId", uint64(playback.TrackID)),
		logger.String("title", playback.Metadata.Title),
		logger.Duration("elapsed", time.Since(start)))
	return playback, nil
}

func (c *Client) resolveSong(ctx context.Context, id model.TrackID) (*model.ResolvedPlayback, error) {
	ids := []model.TrackID{id}

	var (
		urls     []string
		metadata *model.TrackMetadata
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		urls, err = c.GetSongURLs(gCtx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		metadata, err = c.GetSongMetadata(gCtx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.ResolvedPlayback{
		TrackID:   id,
		StreamURL: urls[0],
		Metadata:  *metadata,
	}, nil
}

func (c *Client) resolveProgram(ctx context.Context, programID model.TrackID) (*model.ResolvedPlayback, error) {
	trackID, metadata, err := c.GetProgramTrack(ctx, programID)
	if err != nil {
		return nil, err
	}

	urls, err := c.GetSongURLs(ctx, []model.TrackID{trackID})
	if err != nil {
		return nil, err
	}

	return &model.ResolvedPlayback{
		TrackID:   trackID,
		StreamURL: urls[0],
		Metadata:  *metadata,
	}, nil
}
