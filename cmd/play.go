package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ncmfm/core/audio"
	"ncmfm/core/playback"
	"ncmfm/logger"
)

var (
	playOffset float64
	playOutput string
	playSlot   string
)

var playCmd = &cobra.Command{
	Use:   "play <url>",
	Short: "解码网易云音源并输出原始 PCM",
	Long: `解析链接、拉起 ffmpeg，把 48kHz 双声道 32 位浮点 PCM 写到标准输出或文件。
例如：ncmfm play "https://music.163.com/#/song?id=26209670" | ffplay -f f32le -ar 48000 -ac 2 -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if playOffset < 0 {
			return fmt.Errorf("offset must be non-negative, got %v", playOffset)
		}
		if playSlot == "" {
			playSlot = uuid.NewString()
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		listeners, cleanup := setupListeners(cfg)
		defer cleanup()

		plugins := newPluginManager(cfg)
		src, err := plugins.Resolve(args[0], append(listenerOptions(listeners), playback.WithSlot(playSlot))...)
		if err != nil {
			return err
		}
		defer src.Close()

		offset := time.Duration(playOffset * float64(time.Second))
		input, err := src.Materialize(ctx, offset)
		if err != nil {
			return err
		}
		defer input.Close()

		var out io.Writer = os.Stdout
		if playOutput != "" && playOutput != "-" {
			f, err := os.Create(playOutput)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			out = f
		}

		fmt.Fprintf(os.Stderr, "正在播放: %s - %s [%s / %s]\n",
			input.Metadata.DisplayName(),
			input.Metadata.Artist(),
			audio.FormatDuration(offset),
			audio.FormatDuration(input.Metadata.Duration))

		// 收到信号时终止解码，io.Copy 随之返回
		go func() {
			<-ctx.Done()
			_ = src.Close()
		}()

		n, err := io.Copy(out, input)
		logger.Info("[play] 播放结束",
			logger.String("slot", playSlot),
			logger.Int64("bytes", n),
			logger.String("played", audio.FormatDuration(pcmDuration(n, input))))
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// pcmDuration 根据字节数换算播放时长
func pcmDuration(n int64, input *audio.Input) time.Duration {
	bytesPerSecond := int64(input.FrameSize() * input.Metadata.SampleRate)
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Float64VarP(&playOffset, "offset", "s", 0, "起始位置（秒）")
	playCmd.Flags().StringVarP(&playOutput, "output", "o", "-", "输出文件，- 为标准输出")
	playCmd.Flags().StringVar(&playSlot, "slot", "", "播放槽位ID，默认随机生成")
}
