package netease

import "errors"

var (
	ErrInvalidURL = errors.New("netease: invalid url")
	ErrSigning    = errors.New("netease: signing failed")
	// ErrRandomness 随机源不可用，属于配置错误，不重试
	ErrRandomness = errors.New("netease: randomness source exhausted")
	ErrNetwork    = errors.New("netease: network error")
	ErrDecode     = errors.New("netease: unexpected response shape")
	// ErrEmptyResult 接口成功返回但没有数据（下架、版权或地区限制）
	ErrEmptyResult = errors.New("netease: empty result")

	ErrTrackNotFound     = errors.New("netease: track not found")
	ErrNoURLAvailable    = errors.New("netease: no stream url available")
	ErrProgramHasNoTrack = errors.New("netease: program has no track")
)
