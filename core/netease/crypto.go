package netease

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"strings"
)

// weapi 固定参数，来自网页版前端，公开且由服务端校验
const (
	presetKey     = "0CoJUm6Qyw8W8jud"
	weapiIV       = "0102030405060708"
	rsaExponent   = 65537
	keyAlphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	secretKeyLen  = 16
	rsaModulusHex = "00e0b509f6259df8642dbc35662901477df22677ec152b5ff68ace615bb7b725152b3ab17a876aea8a5aa76d2e417629ec4ee341f56135fccf695280104e0312ecbda92557c93870114af6c9d05c4f7f0c3685b7a46bee255932575cce10b424d813cfe4875d3e82047b97ddef52741d546b8e289dc6935b3ece0462db0a22b8e7"

	// 大于等于该值的随机字节丢弃，保证字母表上均匀分布
	unbiasedLimit = 256 - 256%len(keyAlphabet)
)

var (
	weapiModulus   = mustParseModulus(rsaModulusHex)
	encSecKeyWidth = 2 * len(weapiModulus.Bytes())
)

func mustParseModulus(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("netease: malformed weapi modulus")
	}
	return n
}

// SignedRequest weapi 请求参数。一次性使用，不要记录日志或缓存。
type SignedRequest struct {
	Params    string
	EncSecKey string
}

// Values 按服务端约定的字段名编码
func (r SignedRequest) Values() url.Values {
	v := url.Values{}
	v.Set("params", r.Params)
	v.Set("encSecKey", r.EncSecKey)
	return v
}

// Signer 生成 weapi 签名。rand 会被并发读取，需要是并发安全的随机源。
type Signer struct {
	rand io.Reader
}

// NewSigner r 为 nil 时使用 crypto/rand
func NewSigner(r io.Reader) *Signer {
	if r == nil {
		r = rand.Reader
	}
	return &Signer{rand: r}
}

// Sign 为每次请求生成新的随机密钥并签名
func (s *Signer) Sign(params any) (SignedRequest, error) {
	key, err := s.secretKey()
	if err != nil {
		return SignedRequest{}, err
	}
	return SignWithKey(params, key)
}

func (s *Signer) secretKey() ([]byte, error) {
	key := make([]byte, 0, secretKeyLen)
	buf := make([]byte, secretKeyLen)
	for len(key) < secretKeyLen {
		if _, err := io.ReadFull(s.rand, buf); err != nil {
			return nil, fmt.Errorf("%w: %w: %v", ErrSigning, ErrRandomness, err)
		}
		for _, b := range buf {
			if int(b) >= unbiasedLimit {
				continue
			}
			key = append(key, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(key) == secretKeyLen {
				break
			}
		}
	}
	return key, nil
}

// SignWithKey 使用给定的16字节密钥签名，结果可复现
//
//	params    = base64(AES(base64(AES(json, presetKey)), secretKey))
//	encSecKey = hex(reverse(secretKey)^e mod n)，左侧补零到 256 位
func SignWithKey(params any, secretKey []byte) (SignedRequest, error) {
	if len(secretKey) != secretKeyLen {
		return SignedRequest{}, fmt.Errorf("%w: secret key must be %d bytes, got %d", ErrSigning, secretKeyLen, len(secretKey))
	}

	plain, err := marshalParams(params)
	if err != nil {
		return SignedRequest{}, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	first, err := aesEncryptBase64(plain, []byte(presetKey))
	if err != nil {
		return SignedRequest{}, err
	}
	second, err := aesEncryptBase64([]byte(first), secretKey)
	if err != nil {
		return SignedRequest{}, err
	}

	return SignedRequest{
		Params:    second,
		EncSecKey: rsaEncryptHex(secretKey),
	}, nil
}

// marshalParams 不转义 HTML 字符，与网页端 JSON.stringify 保持一致
func marshalParams(params any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func aesEncryptBase64(plain, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}

	padded := pkcs7Pad(plain, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(weapiIV)).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func rsaEncryptHex(secretKey []byte) string {
	reversed := make([]byte, len(secretKey))
	for i, b := range secretKey {
		reversed[len(secretKey)-1-i] = b
	}

	m := new(big.Int).SetBytes(reversed)
	c := new(big.Int).Exp(m, big.NewInt(rsaExponent), weapiModulus)

	h := c.Text(16)
	if len(h) < encSecKeyWidth {
		h = strings.Repeat("0", encSecKeyWidth-len(h)) + h
	}
	return h
}
