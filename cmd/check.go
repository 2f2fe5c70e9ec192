package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ncmfm/cache"
	"ncmfm/core/audio"
	"ncmfm/db"
	"ncmfm/storage"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "检查外部依赖",
	Long:  `检查 ffmpeg / ffprobe 是否可执行，并测试已配置的 Redis、MySQL、MinIO 连接。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		failed := 0
		report := func(name string, err error) {
			if err != nil {
				failed++
				fmt.Printf("✗ %-8s %v\n", name, err)
				return
			}
			fmt.Printf("✓ %-8s ok\n", name)
		}

		report("ffmpeg", audio.CheckDependencies(cfg.FFmpegPath))
		report("ffprobe", audio.CheckDependencies(audio.FFprobePath(cfg.FFmpegPath)))

		if cfg.RedisEnabled() {
			err := cache.ConnectRedis(cfg)
			if err == nil {
				err = cache.CloseRedis()
			}
			report("redis", err)
		}

		if cfg.DatabaseEnabled() {
			err := db.ConnectGormDB(cfg)
			if err == nil {
				err = db.CloseGormDB()
			}
			report("mysql", err)
		}

		if cfg.MinioEnabled() {
			_, err := storage.InitMinio(ctx, cfg)
			report("minio", err)
		}

		if failed > 0 {
			return fmt.Errorf("%d 项检查失败", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
