package netease

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"ncmfm/model"
)

const (
	// 网页版把参数放在 "/#" 之后，标准解析器会当成 fragment
	fragmentMarker = "/#"
	programMarker  = "program"
	neteaseHost    = "music.163.com"
)

// ParseTrackRef 从分享链接中提取歌曲或电台节目ID
//
//	https://music.163.com/#/song?id=26209670    -> song:26209670
//	https://music.163.com/#/program?id=2061034798 -> program:2061034798
//
// 节目的判断只是子串匹配，歌曲链接里碰巧出现 "program" 也会被当成节目。
func ParseTrackRef(rawURL string) (model.TrackRef, error) {
	cleaned := strings.ReplaceAll(rawURL, fragmentMarker, "")

	u, err := url.Parse(cleaned)
	if err != nil {
		return model.TrackRef{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	raw := u.Query().Get("id")
	if raw == "" {
		return model.TrackRef{}, fmt.Errorf("%w: missing id parameter in %q", ErrInvalidURL, rawURL)
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return model.TrackRef{}, fmt.Errorf("%w: id %q: %v", ErrInvalidURL, raw, err)
	}

	kind := model.Standalone
	if strings.Contains(cleaned, programMarker) {
		kind = model.Program
	}

	return model.TrackRef{Kind: kind, ID: model.TrackID(id)}, nil
}

// IsNeteaseURL 判断链接是否归网易云解析
func IsNeteaseURL(rawURL string) bool {
	u, err := url.Parse(strings.ReplaceAll(rawURL, fragmentMarker, ""))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == neteaseHost || strings.HasSuffix(host, "."+neteaseHost)
}
