package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ncmfm/core/audio"
	"ncmfm/core/netease"
	"ncmfm/core/playback"
	"ncmfm/core/plugin"
	"ncmfm/logger"
	"ncmfm/model"
)

const streamBufferSize = 32 * 1024

var errBadOffset = errors.New("offset must be a non-negative number of seconds")

// trackResponse 解析接口返回的数据
type trackResponse struct {
	SlotID     string   `json:"slotId,omitempty"`
	Ref        string   `json:"ref"`
	Kind       string   `json:"kind"`
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Artist     string   `json:"artist"`
	DurationMs int64    `json:"durationMs"`
	Duration   string   `json:"duration"`
	OffsetMs   int64    `json:"offsetMs"`
	SampleRate int      `json:"sampleRate"`
	Channels   int      `json:"channels"`
	SourceURL  string   `json:"sourceUrl"`
}

func newTrackResponse(src *playback.Restartable, md *model.TrackMetadata, offset time.Duration) trackResponse {
	artists := md.Artists
	if artists == nil {
		artists = []string{}
	}
	return trackResponse{
		SlotID:     src.SlotID(),
		Ref:        src.Ref().String(),
		Kind:       src.Ref().Kind.String(),
		ID:         src.Ref().ID.String(),
		Title:      md.DisplayName(),
		Artists:    artists,
		Artist:     md.Artist(),
		DurationMs: md.Duration.Milliseconds(),
		Duration:   audio.FormatDuration(md.Duration),
		OffsetMs:   offset.Milliseconds(),
		SampleRate: md.SampleRate,
		Channels:   md.Channels,
		SourceURL:  md.SourceURL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[Server] 写入响应失败", logger.ErrorField(err))
	}
}

// errorStatus 把领域错误映射到 HTTP 状态码和错误类型
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errBadOffset):
		return http.StatusBadRequest, "bad_offset"
	case errors.Is(err, netease.ErrInvalidURL):
		return http.StatusBadRequest, "invalid_url"
	case errors.Is(err, plugin.ErrUnsupportedSource):
		return http.StatusBadRequest, "unsupported_source"
	case errors.Is(err, netease.ErrTrackNotFound):
		return http.StatusNotFound, "track_not_found"
	case errors.Is(err, netease.ErrNoURLAvailable):
		return http.StatusNotFound, "no_url_available"
	case errors.Is(err, netease.ErrProgramHasNoTrack):
		return http.StatusNotFound, "program_has_no_track"
	case errors.Is(err, netease.ErrNetwork):
		return http.StatusBadGateway, "network"
	case errors.Is(err, netease.ErrDecode):
		return http.StatusBadGateway, "decode"
	case errors.Is(err, audio.ErrSpawn):
		return http.StatusInternalServerError, "spawn"
	case errors.Is(err, audio.ErrDecoderExit):
		return http.StatusBadGateway, "decoder_exit"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, err error) {
	status, kind := errorStatus(err)
	s.metrics.ErrorsTotal.WithLabelValues(endpoint, kind).Inc()
	writeJSON(w, status, map[string]any{
		"success": false,
		"kind":    kind,
		"error":   err.Error(),
	})
}

// openSource 为请求创建新的音源，每个请求一个独立槽位
func (s *Server) openSource(rawURL string) (*playback.Restartable, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: url parameter is required", netease.ErrInvalidURL)
	}

	opts := []playback.Option{playback.WithSlot(uuid.NewString())}
	for _, l := range s.listeners {
		opts = append(opts, playback.WithListener(l))
	}
	return s.plugins.Resolve(rawURL, opts...)
}

func parseOffset(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errBadOffset, raw)
	}
	return secondsToOffset(secs)
}

func secondsToOffset(secs float64) (time.Duration, error) {
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) || secs > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("%w: %v", errBadOffset, secs)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// handleResolve 只获取元数据，不拉起解码进程
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	src, err := s.openSource(r.URL.Query().Get("url"))
	if err != nil {
		s.writeError(w, "resolve", err)
		return
	}

	start := time.Now()
	md, err := src.Probe(r.Context())
	s.metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ProbesTotal.WithLabelValues("error").Inc()
		s.writeError(w, "resolve", err)
		return
	}
	s.metrics.ProbesTotal.WithLabelValues("ok").Inc()

	resp := newTrackResponse(src, md, 0)
	resp.SlotID = ""
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    resp,
	})
}

// handleStream 以原始 PCM 推流，客户端断开时终止解码进程
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	offset, err := parseOffset(r.URL.Query().Get("offset"))
	if err != nil {
		s.writeError(w, "stream", err)
		return
	}

	src, err := s.openSource(r.URL.Query().Get("url"))
	if err != nil {
		s.writeError(w, "stream", err)
		return
	}
	defer src.Close()

	input, err := src.Materialize(r.Context(), offset)
	if err != nil {
		s.writeError(w, "stream", err)
		return
	}
	defer input.Close()

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Slot-Id", src.SlotID())
	w.Header().Set("X-Sample-Rate", strconv.Itoa(input.Metadata.SampleRate))
	w.Header().Set("X-Channels", strconv.Itoa(input.Channels()))
	w.Header().Set("X-Codec", input.Codec.String())
	w.Header().Set("X-Track-Title", url.PathEscape(input.Metadata.DisplayName()))
	w.WriteHeader(http.StatusOK)

	n, err := io.CopyBuffer(flushWriter{w: w, rc: http.NewResponseController(w)}, input, make([]byte, streamBufferSize))
	s.metrics.BytesStreamed.Add(float64(n))
	if errors.Is(err, audio.ErrDecoderExit) {
		_, kind := errorStatus(err)
		s.metrics.ErrorsTotal.WithLabelValues("stream", kind).Inc()
		logger.Warn("[Server] 解码失败，中止推流",
			logger.String("slot", src.SlotID()),
			logger.Int64("bytes", n),
			logger.ErrorField(err))
		// 状态码已发出，只能断开连接让客户端看到截断
		panic(http.ErrAbortHandler)
	}
	if err != nil {
		logger.Debug("[Server] 推流中断",
			logger.String("slot", src.SlotID()),
			logger.Int64("bytes", n),
			logger.ErrorField(err))
		return
	}
	logger.Info("[Server] 推流结束",
		logger.String("slot", src.SlotID()),
		logger.String("title", input.Metadata.DisplayName()),
		logger.Int64("bytes", n))
}

// flushWriter 每次写入后立即 flush，避免 PCM 积压在缓冲里
type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := f.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}
