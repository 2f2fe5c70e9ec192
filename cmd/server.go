package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ncmfm/core/audio"
	"ncmfm/logger"
	"ncmfm/server"
)

var serverAddr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动推流服务器",
	Long: `启动 HTTP 服务器，提供解析、PCM 推流和 WebSocket 跳转接口，
并在 /metrics 暴露 Prometheus 指标。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serverAddr != "" {
			cfg.HTTPAddr = serverAddr
		}

		if err := audio.CheckDependencies(cfg.FFmpegPath); err != nil {
			logger.Warn("[server] ffmpeg 不可用，推流请求将失败", logger.ErrorField(err))
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		listeners, cleanup := setupListeners(cfg)
		defer cleanup()

		srv := server.New(cfg, newPluginManager(cfg), server.NewMetrics(), listeners...)
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverAddr, "addr", "", "监听地址，覆盖 HTTP_ADDR")
}
