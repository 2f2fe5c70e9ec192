package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ncmfm/config"
	"ncmfm/logger"
)

var (
	cfg      *config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ncmfm",
	Short: "ncmfm 把网易云音乐分享链接解析为可重启的 PCM 音源",
	Long: `ncmfm 解析网易云音乐的歌曲和电台节目链接，获取元数据与播放地址，
并通过 ffmpeg 解码为 48kHz 双声道浮点 PCM。每次播放或跳转都会重新解析。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		lc := cfg.LoggerConfig()
		// play 可能把 PCM 写到 stdout
		lc.Stderr = cmd == playCmd
		logger.InitLogger(lc)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)，覆盖 LOG_LEVEL")
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
