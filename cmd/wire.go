package cmd

import (
	"ncmfm/cache"
	"ncmfm/config"
	"ncmfm/core/audio"
	"ncmfm/core/netease"
	"ncmfm/core/playback"
	"ncmfm/core/plugin"
	"ncmfm/db"
	"ncmfm/logger"
	"ncmfm/repository"
)

func newPluginManager(cfg *config.Config, opts ...playback.Option) *plugin.MusicPluginManager {
	client := netease.NewClientFromConfig(cfg)
	decoder := audio.NewFFmpegDecoder(cfg.FFmpegPath)

	plugins := plugin.NewMusicPluginManager()
	plugins.Register(plugin.NewNeteasePlugin(client, decoder, opts...))
	return plugins
}

// setupListeners 连接已配置的 Redis / MySQL，返回对应的播放事件监听器。
// 连接失败只记录警告，播放不依赖它们。
func setupListeners(cfg *config.Config) (playback.Listeners, func()) {
	var (
		listeners playback.Listeners
		closers   []func() error
	)

	if cfg.RedisEnabled() {
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Warn("[setup] Redis 不可用，跳过正在播放广播", logger.ErrorField(err))
		} else {
			listeners = append(listeners, cache.NewNowPlayingPublisher(cache.RedisClient, cfg.NowPlayingTTL))
			closers = append(closers, cache.CloseRedis)
		}
	}

	if cfg.DatabaseEnabled() {
		if err := db.ConnectGormDB(cfg); err != nil {
			logger.Warn("[setup] 数据库不可用，跳过播放历史", logger.ErrorField(err))
		} else if err := db.AutoMigrate(); err != nil {
			logger.Warn("[setup] 数据表迁移失败，跳过播放历史", logger.ErrorField(err))
			_ = db.CloseGormDB()
		} else {
			repo := repository.NewGormPlayHistoryRepository(db.GormDB)
			listeners = append(listeners, repository.NewPlayHistoryListener(repo))
			closers = append(closers, db.CloseGormDB)
		}
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("[setup] 关闭连接失败", logger.ErrorField(err))
			}
		}
	}
	return listeners, cleanup
}

func listenerOptions(listeners playback.Listeners) []playback.Option {
	opts := make([]playback.Option, 0, len(listeners))
	for _, l := range listeners {
		opts = append(opts, playback.WithListener(l))
	}
	return opts
}
