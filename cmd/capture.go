package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ncmfm/model"
	"ncmfm/storage"
)

var (
	captureOffset   float64
	captureDuration time.Duration
	captureList     bool
)

var captureCmd = &cobra.Command{
	Use:   "capture <url>",
	Short: "截取一段 PCM 并上传到 MinIO",
	Long: `从指定位置解码一段音频，上传到 MINIO_BUCKET 下的 captures/ 目录。
使用 --list [前缀] 列出已上传的片段。`,
	Args: func(cmd *cobra.Command, args []string) error {
		if captureList {
			return cobra.MaximumNArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.MinioEnabled() {
			return errors.New("MinIO 未配置，请设置 MINIO_ENDPOINT")
		}

		ctx := cmd.Context()
		store, err := storage.InitMinio(ctx, cfg)
		if err != nil {
			return err
		}

		if captureList {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return listCaptures(ctx, store, prefix)
		}
		return runCapture(ctx, store, args[0])
	},
}

func runCapture(ctx context.Context, store *storage.CaptureStore, rawURL string) error {
	if captureOffset < 0 {
		return fmt.Errorf("offset must be non-negative, got %v", captureOffset)
	}
	if captureDuration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", captureDuration)
	}

	src, err := newPluginManager(cfg).Resolve(rawURL)
	if err != nil {
		return err
	}
	defer src.Close()

	offset := time.Duration(captureOffset * float64(time.Second))
	input, err := src.Materialize(ctx, offset)
	if err != nil {
		return err
	}
	defer input.Close()

	frames := int64(captureDuration.Seconds() * model.SampleRate)
	want := frames * int64(input.FrameSize())

	var buf bytes.Buffer
	n, err := io.CopyN(&buf, input, want)
	if err != nil && err != io.EOF {
		return fmt.Errorf("读取 PCM 失败: %w", err)
	}
	if n == 0 {
		return errors.New("解码器没有输出任何数据")
	}

	name := storage.CaptureObjectName(src.Ref(), offset, time.Now())
	info, err := store.Upload(ctx, name, &buf, n, input.Metadata)
	if err != nil {
		return err
	}

	fmt.Printf("已上传: %s (%s)\n", info.Key, storage.FormatSize(info.Size))
	return nil
}

func listCaptures(ctx context.Context, store *storage.CaptureStore, prefix string) error {
	objects, stats, err := store.List(ctx, prefix)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		fmt.Printf("%-70s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format(time.DateTime))
	}
	fmt.Printf("\n共 %d 个对象，%s\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
	return nil
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().Float64VarP(&captureOffset, "offset", "s", 0, "起始位置（秒）")
	captureCmd.Flags().DurationVarP(&captureDuration, "duration", "d", 10*time.Second, "截取时长")
	captureCmd.Flags().BoolVar(&captureList, "list", false, "列出已上传的片段")
}
