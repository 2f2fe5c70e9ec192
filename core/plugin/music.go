package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"ncmfm/core/playback"
	"ncmfm/logger"
)

// ErrUnsupportedSource 没有插件认领该链接
var ErrUnsupportedSource = errors.New("plugin: unsupported source")

// MusicPlugin 音源插件接口
// 每个插件认领一类链接，并为其创建可重启的音源
type MusicPlugin interface {
	// GetSource 获取插件来源标识
	GetSource() string

	// Match 判断链接是否归该插件处理
	Match(rawURL string) bool

	// Open 为链接创建音源，不发起网络请求
	Open(rawURL string, opts ...playback.Option) (*playback.Restartable, error)
}

// MusicPluginManager 音乐插件管理器
type MusicPluginManager struct {
	mu      sync.RWMutex
	plugins map[string]MusicPlugin
}

// NewMusicPluginManager 创建插件管理器
func NewMusicPluginManager() *MusicPluginManager {
	return &MusicPluginManager{
		plugins: make(map[string]MusicPlugin),
	}
}

// Register 注册插件，同名插件会被替换
func (m *MusicPluginManager) Register(plugin MusicPlugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins[plugin.GetSource()] = plugin
	logger.Info("[MusicPluginManager] 注册插件", logger.String("source", plugin.GetSource()))
}

// Get 获取指定来源的插件
func (m *MusicPluginManager) Get(source string) MusicPlugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plugins[source]
}

// Sources 已注册的来源，按名称排序
func (m *MusicPluginManager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sources := make([]string, 0, len(m.plugins))
	for s := range m.plugins {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}

// Match 找到认领链接的插件
func (m *MusicPluginManager) Match(rawURL string) (MusicPlugin, error) {
	for _, source := range m.Sources() {
		p := m.Get(source)
		if p != nil && p.Match(rawURL) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, rawURL)
}

// Resolve 按链接分派到对应插件并创建音源
func (m *MusicPluginManager) Resolve(rawURL string, opts ...playback.Option) (*playback.Restartable, error) {
	p, err := m.Match(rawURL)
	if err != nil {
		logger.Warn("[MusicPluginManager] 无插件认领该链接", logger.String("url", rawURL))
		return nil, err
	}
	return p.Open(rawURL, opts...)
}
