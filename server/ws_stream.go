package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ncmfm/core/audio"
	"ncmfm/core/playback"
	"ncmfm/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsReadLimit    = 4096
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsControl 客户端发来的控制消息，如 {"seek": 12.5} 或 {"type": "ping"}
type wsControl struct {
	Type string   `json:"type"`
	Seek *float64 `json:"seek"`
}

// wsEvent 服务端发出的文本消息
type wsEvent struct {
	Type  string         `json:"type"`
	Track *trackResponse `json:"track,omitempty"`
	Error string         `json:"error,omitempty"`
	Bytes int64          `json:"bytes,omitempty"`
}

type wsChunk struct {
	gen  int
	data []byte
	end  bool
	err  error
}

type controlMsg struct {
	ping bool
	seek time.Duration
	err  error
}

// handleStreamWS 以二进制帧推送 PCM，收到 seek 后从新位置重新解析并重启解码
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	offset, err := parseOffset(r.URL.Query().Get("offset"))
	if err != nil {
		s.writeError(w, "ws", err)
		return
	}

	src, err := s.openSource(r.URL.Query().Get("url"))
	if err != nil {
		s.writeError(w, "ws", err)
		return
	}
	defer src.Close()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[WS] websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	logger.Info("[WS] 推流会话开始",
		logger.String("slot", src.SlotID()),
		logger.String("ref", src.Ref().String()))

	sess := &wsSession{
		conn:    conn,
		src:     src,
		metrics: s.metrics,
		chunks:  make(chan wsChunk, 8),
	}
	sess.run(context.Background(), offset)

	logger.Info("[WS] 推流会话结束",
		logger.String("slot", src.SlotID()),
		logger.Int64("bytes", sess.bytes))
}

// wsSession 只有 run 所在的协程写连接
type wsSession struct {
	conn    *websocket.Conn
	src     *playback.Restartable
	metrics *Metrics
	chunks  chan wsChunk

	gen   int
	bytes int64
}

func (s *wsSession) run(ctx context.Context, offset time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	controls := make(chan controlMsg)
	go s.readControl(ctx, cancel, controls)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	if !s.start(ctx, offset) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case c := <-controls:
			if c.ping {
				if !s.send(wsEvent{Type: "pong"}) {
					return
				}
				continue
			}
			if c.err != nil {
				if !s.send(wsEvent{Type: "error", Error: c.err.Error()}) {
					return
				}
				continue
			}
			s.metrics.SeeksTotal.Inc()
			if !s.start(ctx, c.seek) {
				return
			}

		case c := <-s.chunks:
			if c.gen != s.gen {
				// 来自已被替换的解码进程
				continue
			}
			if len(c.data) > 0 {
				if err := s.write(websocket.BinaryMessage, c.data); err != nil {
					logger.Debug("[WS] 写入失败", logger.ErrorField(err))
					return
				}
				s.bytes += int64(len(c.data))
				s.metrics.BytesStreamed.Add(float64(len(c.data)))
			}
			if c.end {
				ev := wsEvent{Type: "end", Bytes: s.bytes}
				if c.err != nil {
					ev = wsEvent{Type: "error", Error: c.err.Error()}
				}
				if !s.send(ev) {
					return
				}
			}
		}
	}
}

// start 重新物化音源。返回 false 表示连接已不可写。
func (s *wsSession) start(ctx context.Context, offset time.Duration) bool {
	input, err := s.src.Materialize(ctx, offset)
	if err != nil {
		_, kind := errorStatus(err)
		s.metrics.ErrorsTotal.WithLabelValues("ws", kind).Inc()
		return s.send(wsEvent{Type: "error", Error: err.Error()})
	}

	s.gen++
	track := newTrackResponse(s.src, input.Metadata, offset)
	if !s.send(wsEvent{Type: "track", Track: &track}) {
		return false
	}

	go s.pump(ctx, s.gen, input)
	return true
}

// pump 读取一个解码进程的输出，直到 EOF 或进程被终止
func (s *wsSession) pump(ctx context.Context, gen int, input *audio.Input) {
	buf := make([]byte, streamBufferSize)
	for {
		n, err := input.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case s.chunks <- wsChunk{gen: gen, data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			end := wsChunk{gen: gen, end: true}
			if err != io.EOF {
				end.err = err
			}
			select {
			case s.chunks <- end:
			case <-ctx.Done():
			}
			return
		}
	}
}

// readControl 解析客户端消息，连接断开时取消会话
func (s *wsSession) readControl(ctx context.Context, cancel context.CancelFunc, out chan<- controlMsg) {
	defer cancel()

	s.conn.SetReadLimit(wsReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("[WS] 连接异常断开", logger.ErrorField(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		var msg controlMsg
		var ctl wsControl
		switch {
		case json.Unmarshal(data, &ctl) != nil:
			msg.err = fmt.Errorf("invalid control message: %q", truncate(string(data), 64))
		case ctl.Type == "ping":
			msg.ping = true
		case ctl.Seek == nil:
			msg.err = fmt.Errorf("unknown control message: %q", truncate(string(data), 64))
		default:
			msg.seek, msg.err = secondsToOffset(*ctl.Seek)
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *wsSession) send(ev wsEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	if err := s.write(websocket.TextMessage, data); err != nil {
		logger.Debug("[WS] 写入失败", logger.ErrorField(err))
		return false
	}
	return true
}

func (s *wsSession) write(messageType int, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(messageType, data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
