package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ncmfm/core/audio"
	"ncmfm/core/netease"
)

var (
	resolveStreamURL bool
	resolveJSON      bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "解析网易云链接并显示元数据",
	Long: `解析网易云音乐歌曲或电台节目链接，显示标题、艺术家和时长。
加上 --stream-url 会同时获取播放地址（地址有时效，仅用于调试）。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL := args[0]
		ref, err := netease.ParseTrackRef(rawURL)
		if err != nil {
			return err
		}

		client := netease.NewClientFromConfig(cfg)
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		out := map[string]any{
			"ref":  ref.String(),
			"kind": ref.Kind.String(),
			"id":   ref.ID.String(),
		}

		if resolveStreamURL {
			pb, err := client.Resolve(ctx, ref)
			if err != nil {
				return err
			}
			out["trackId"] = pb.TrackID.String()
			out["streamUrl"] = pb.StreamURL
			out["title"] = pb.Metadata.DisplayName()
			out["artists"] = pb.Metadata.Artists
			out["duration"] = audio.FormatDuration(pb.Metadata.Duration)
		} else {
			md, err := client.ProbeMetadata(ctx, ref)
			if err != nil {
				return err
			}
			out["title"] = md.DisplayName()
			out["artists"] = md.Artists
			out["duration"] = audio.FormatDuration(md.Duration)
		}

		if resolveJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Printf("类型: %s (ID: %s)\n", out["kind"], out["id"])
		fmt.Printf("歌曲: %s\n", out["title"])
		if artists, _ := out["artists"].([]string); len(artists) > 0 {
			fmt.Printf("艺术家: %s\n", strings.Join(artists, ", "))
		}
		fmt.Printf("时长: %s\n", out["duration"])
		if u, ok := out["streamUrl"]; ok {
			fmt.Printf("歌曲ID: %s\n", out["trackId"])
			fmt.Printf("播放地址: %s\n", u)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().BoolVar(&resolveStreamURL, "stream-url", false, "同时获取播放地址")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "以 JSON 输出")
}
