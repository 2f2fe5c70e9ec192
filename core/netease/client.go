package netease

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ncmfm/config"
	"ncmfm/logger"
)

const (
	DefaultBaseURL = "https://music.163.com/weapi"
	// 模拟 iPhone Safari，网页端接口会检查 UA
	DefaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 9_1 like Mac OS X) AppleWebKit/601.1.46 (KHTML, like Gecko) Version/9.0 Mobile/13B143 Safari/601.1"
	DefaultTimeout   = 10 * time.Second

	referer = "https://music.163.com"
	// 错误信息里最多带上的响应体长度
	maxErrorBody = 256
)

// Client 网易云 weapi 客户端，只实现播放需要的接口。并发安全，不缓存任何结果。
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	signer     *Signer
}

// NewClient 创建新的API客户端
func NewClient() *Client {
	return &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		signer: NewSigner(nil),
	}
}

// NewClientFromConfig 按配置创建客户端
func NewClientFromConfig(cfg *config.Config) *Client {
	c := NewClient()
	if cfg.NeteaseBaseURL != "" {
		c.SetBaseURL(cfg.NeteaseBaseURL)
	}
	if cfg.NeteaseTimeout > 0 {
		c.SetTimeout(cfg.NeteaseTimeout)
	}
	if cfg.NeteaseUserAgent != "" {
		c.SetUserAgent(cfg.NeteaseUserAgent)
	}
	return c
}

// SetBaseURL 设置API基础URL
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

func (c *Client) SetUserAgent(ua string) {
	c.userAgent = ua
}

// SetSigner 替换签名器，测试中用于注入固定随机源
func (c *Client) SetSigner(s *Signer) {
	c.signer = s
}

// envelope 网易云接口通用的返回码
type envelope struct {
	Code *int `json:"code"`
}

// emptier 由响应结构实现，用于识别“成功但无数据”
type emptier interface {
	empty() bool
}

// post 签名参数后以 POST 发送，并把 JSON 响应解析到 out。不做重试。
func (c *Client) post(ctx context.Context, path string, params map[string]any, out any) error {
	signed, err := c.signer.Sign(params)
	if err != nil {
		logger.Error("[netease/post] 签名失败", logger.String("path", path), logger.ErrorField(err))
		return err
	}

	endpoint := c.baseURL + path + "?" + signed.Values().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("[netease/post] 请求失败", logger.String("path", path), logger.ErrorField(err))
		return fmt.Errorf("%w: %s: %v", ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrNetwork, path, err)
	}

	logger.Debug("[netease/post] 收到响应",
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)),
		logger.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned status %d: %s", ErrNetwork, path, resp.StatusCode, truncate(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	if env.Code != nil && *env.Code != http.StatusOK {
		return fmt.Errorf("%w: %s returned code %d", ErrNetwork, path, *env.Code)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	if e, ok := out.(emptier); ok && e.empty() {
		return fmt.Errorf("%w: %s", ErrEmptyResult, path)
	}
	return nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
