package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ncmfm/logger"
	"ncmfm/model"
)

// DefaultFFmpegPath resolves ffmpeg from PATH.
const DefaultFFmpegPath = "ffmpeg"

const (
	// 保留的 ffmpeg stderr 尾部长度
	maxStderrBytes = 4096
	// 进程退出后等待输出管道关闭的上限
	waitDelay = 2 * time.Second
)

var (
	ErrSpawn             = errors.New("audio: failed to spawn decoder")
	ErrMissingDependency = errors.New("audio: missing dependency")
	// ErrDecoderExit 解码进程非正常退出，输出可能被截断
	ErrDecoderExit = errors.New("audio: decoder exited abnormally")
)

// FFmpegDecoder implements Decoder by spawning one ffmpeg process per stream.
type FFmpegDecoder struct {
	ffmpegPath string
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
func NewFFmpegDecoder(ffmpegPath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = DefaultFFmpegPath
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath}
}

// decodeArgs 注意：编码器是 pcm_f32le，容器却标成 s16le，下游按 32 位浮点读取
func decodeArgs(url string, offset time.Duration) []string {
	if offset < 0 {
		offset = 0
	}
	return []string{
		"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
		"-i", url,
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(model.ChannelCount),
		"-ar", strconv.Itoa(model.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Decode starts ffmpeg reading url from offset and returns its stdout as a
// PCM stream. The caller owns the stream and must Close it.
func (d *FFmpegDecoder) Decode(url string, offset time.Duration) (*PCMStream, error) {
	args := decodeArgs(url, offset)

	cmd := exec.Command(d.ffmpegPath, args...)
	cmd.WaitDelay = waitDelay
	stderr := &tailBuffer{max: maxStderrBytes}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		logger.Error("[FFmpegDecoder] 启动 ffmpeg 失败",
			logger.String("ffmpeg", d.ffmpegPath),
			logger.ErrorField(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, d.ffmpegPath, err)
	}

	logger.Debug("[FFmpegDecoder] ffmpeg 已启动",
		logger.Int("pid", cmd.Process.Pid),
		logger.String("args", strings.Join(args, " ")))

	return &PCMStream{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		offset: offset,
	}, nil
}

// PCMStream is the stdout of a running decoder process.
//
// Close kills and reaps the process; reading to EOF reaps it as well. Both are
// safe to combine and to repeat.
type PCMStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	offset time.Duration

	killed    atomic.Bool
	exited    atomic.Bool
	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error
	bytesRead atomic.Int64
}

// Read returns io.EOF only when the decoder exited cleanly. An abnormal exit
// surfaces as ErrDecoderExit carrying the stderr tail.
func (s *PCMStream) Read(p []byte) (int, error) {
	if s.exited.Load() {
		return 0, s.endErr()
	}
	n, err := s.stdout.Read(p)
	s.bytesRead.Add(int64(n))
	if err == io.EOF {
		s.reap()
		err = s.endErr()
	}
	return n, err
}

func (s *PCMStream) endErr() error {
	if werr := s.Err(); werr != nil {
		return fmt.Errorf("%w: %v: %s", ErrDecoderExit, werr, s.stderr.String())
	}
	return io.EOF
}

// Close terminates the decoder process and waits for it to exit.
func (s *PCMStream) Close() error {
	s.closeOnce.Do(func() {
		s.killed.Store(true)
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Debug("[PCMStream] kill 失败", logger.Int("pid", s.PID()), logger.ErrorField(err))
		}
	})
	s.reap()
	return nil
}

// PID of the decoder process.
func (s *PCMStream) PID() int {
	return s.cmd.Process.Pid
}

// Offset the stream was started at.
func (s *PCMStream) Offset() time.Duration {
	return s.offset
}

// BytesRead counts PCM bytes delivered to readers so far.
func (s *PCMStream) BytesRead() int64 {
	return s.bytesRead.Load()
}

// Exited reports whether the process has been reaped.
func (s *PCMStream) Exited() bool {
	return s.exited.Load()
}

// Err returns the process exit error once reaped. A killed stream reports nil.
func (s *PCMStream) Err() error {
	if !s.exited.Load() || s.killed.Load() {
		return nil
	}
	return s.waitErr
}

func (s *PCMStream) reap() {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		s.exited.Store(true)
		if s.waitErr != nil && !s.killed.Load() {
			logger.Warn("[PCMStream] ffmpeg 异常退出",
				logger.Int("pid", s.PID()),
				logger.ErrorField(s.waitErr),
				logger.String("stderr", s.stderr.String()))
			return
		}
		logger.Debug("[PCMStream] ffmpeg 已退出",
			logger.Int("pid", s.PID()),
			logger.Int64("bytes", s.bytesRead.Load()),
			logger.Bool("killed", s.killed.Load()))
	})
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}

// FFprobePath derives the ffprobe binary that ships next to ffmpegPath.
func FFprobePath(ffmpegPath string) string {
	if ffmpegPath == "" {
		ffmpegPath = DefaultFFmpegPath
	}
	dir, base := filepath.Split(ffmpegPath)
	return dir + strings.Replace(base, "ffmpeg", "ffprobe", 1)
}

// CheckDependencies verifies that every named binary can be executed.
func CheckDependencies(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			logger.Warn("[CheckDependencies] 依赖不可用", logger.String("name", name), logger.ErrorField(err))
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}
	return nil
}

// FormatDuration renders d as HH:MM:SS, truncating to whole seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}
