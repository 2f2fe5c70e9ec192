package plugin

import (
	"ncmfm/core/audio"
	"ncmfm/core/netease"
	"ncmfm/core/playback"
	"ncmfm/logger"
)

// NeteaseSource 网易云插件来源标识
const NeteaseSource = "netease"

// NeteasePlugin 网易云音乐插件实现
type NeteasePlugin struct {
	client  *netease.Client
	decoder audio.Decoder
	opts    []playback.Option
}

// NewNeteasePlugin 创建网易云音乐插件。opts 会附加到它打开的每个音源上。
func NewNeteasePlugin(client *netease.Client, decoder audio.Decoder, opts ...playback.Option) *NeteasePlugin {
	return &NeteasePlugin{
		client:  client,
		decoder: decoder,
		opts:    opts,
	}
}

// GetSource 返回插件来源标识
func (p *NeteasePlugin) GetSource() string {
	return NeteaseSource
}

// Match 只认领 music.163.com 的链接
func (p *NeteasePlugin) Match(rawURL string) bool {
	return netease.IsNeteaseURL(rawURL)
}

// Open 解析链接中的ID并创建可重启音源
func (p *NeteasePlugin) Open(rawURL string, opts ...playback.Option) (*playback.Restartable, error) {
	all := append(append([]playback.Option{}, p.opts...), opts...)

	r, err := playback.NewRestartable(rawURL, p.client, p.decoder, all...)
	if err != nil {
		logger.Warn("[NeteasePlugin] 无法解析链接", logger.String("url", rawURL), logger.ErrorField(err))
		return nil, err
	}

	logger.Debug("[NeteasePlugin] 已创建音源",
		logger.String("url", rawURL),
		logger.String("ref", r.Ref().String()))
	return r, nil
}
