package netease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ncmfm/logger"
	"ncmfm/model"
)

const (
	songURLPath    = "/song/enhance/player/url/"
	songDetailPath = "/song/detail"

	// 请求 320kbps，服务端会按实际可用音质降级
	preferredBitrate = "320000"
)

type songURLResult struct {
	Code int `json:"code"`
	Data []struct {
		ID  int64  `json:"id"`
		URL string `json:"url"`
		BR  int    `json:"br"`
	} `json:"data"`
}

func (r *songURLResult) empty() bool { return len(r.Data) == 0 }

type songArtist struct {
	Name string `json:"name"`
}

// songDetail 旧版接口用 artists/duration，新版用 ar/dt，两者都接受
type songDetail struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Artists  []songArtist `json:"artists"`
	Ar       []songArtist `json:"ar"`
	Duration uint64       `json:"duration"`
	Dt       uint64       `json:"dt"`
}

func (s songDetail) metadata() model.TrackMetadata {
	artists := s.Artists
	if len(artists) == 0 {
		artists = s.Ar
	}
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	duration := s.Duration
	if duration == 0 {
		duration = s.Dt
	}
	return model.NewTrackMetadata(s.Name, names, duration)
}

type songDetailResult struct {
	Code  int          `json:"code"`
	Songs []songDetail `json:"songs"`
}

func (r *songDetailResult) empty() bool { return len(r.Songs) == 0 }

func idStrings(ids []model.TrackID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return string(b), nil
}

// GetSongURLs 获取歌曲播放地址，顺序与返回数据一致。空地址（版权限制）会被跳过。
func (c *Client) GetSongURLs(ctx context.Context, ids []model.TrackID) ([]string, error) {
	idsJSON, err := jsonString(idStrings(ids))
	if err != nil {
		return nil, err
	}

	var result songURLResult
	err = c.post(ctx, songURLPath, map[string]any{
		"ids": idsJSON,
		"br":  preferredBitrate,
	}, &result)
	if errors.Is(err, ErrEmptyResult) {
		return nil, fmt.Errorf("%w: ids %v: %w", ErrNoURLAvailable, ids, err)
	}
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(result.Data))
	for _, d := range result.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	if len(urls) == 0 {
		logger.Warn("[GetSongURLs] 歌曲URL为空，可能是版权限制", logger.Any("ids", ids))
		return nil, fmt.Errorf("%w: ids %v: all entries empty", ErrNoURLAvailable, ids)
	}

	logger.Debug("[GetSongURLs] 成功获取歌曲URL", logger.Any("ids", ids), logger.Int("count", len(urls)))
	return urls, nil
}

// GetSongMetadata 获取第一首匹配歌曲的元数据
func (c *Client) GetSongMetadata(ctx context.Context, ids []model.TrackID) (*model.TrackMetadata, error) {
	strs := idStrings(ids)
	type cEntry struct {
		ID string `json:"id"`
	}
	entries := make([]cEntry, len(strs))
	for i, s := range strs {
		entries[i] = cEntry{ID: s}
	}

	cJSON, err := jsonString(entries)
	if err != nil {
		return nil, err
	}
	idsJSON, err := jsonString(strs)
	if err != nil {
		return nil, err
	}

	var result songDetailResult
	err = c.post(ctx, songDetailPath, map[string]any{
		"c":   cJSON,
		"ids": idsJSON,
	}, &result)
	if errors.Is(err, ErrEmptyResult) {
		return nil, fmt.Errorf("%w: ids %v: %w", ErrTrackNotFound, ids, err)
	}
	if err != nil {
		return nil, err
	}

	metadata := result.Songs[0].metadata()
	logger.Debug("[GetSongMetadata] 成功获取歌曲详情",
		logger.Any("ids", ids),
		logger.String("title", metadata.Title))
	return &metadata, nil
}
