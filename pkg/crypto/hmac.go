package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// HashAlgorithm HMAC 哈希算法类型
type HashAlgorithm string

const (
	// SHA256 使用 SHA-256 算法
	SHA256 HashAlgorithm = "sha256"
	// SHA512 使用 SHA-512 算法
	SHA512 HashAlgorithm = "sha512"
)

// HMACHasher 提供 HMAC 签名功能
type HMACHasher struct {
	key       []byte
	algorithm HashAlgorithm
}

// HMACOption HMAC 配置选项
type HMACOption func(*HMACHasher)

// WithHashAlgorithm 设置哈希算法
func WithHashAlgorithm(algo HashAlgorithm) HMACOption {
	return func(h *HMACHasher) {
		h.algorithm = algo
	}
}

// NewHMACHasher 创建 HMAC 哈希器，默认 SHA-256
func NewHMACHasher(key []byte, opts ...HMACOption) *HMACHasher {
	h := &HMACHasher{
		key:       key,
		algorithm: SHA256,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Algorithm 返回当前算法名
func (h *HMACHasher) Algorithm() HashAlgorithm {
	return h.algorithm
}

func (h *HMACHasher) hashFunc() func() hash.Hash {
	if h.algorithm == SHA512 {
		return sha512.New
	}
	return sha256.New
}

// SignBytes 生成 HMAC 签名（原始字节）
func (h *HMACHasher) SignBytes(data []byte) []byte {
	mac := hmac.New(h.hashFunc(), h.key)
	mac.Write(data)
	return mac.Sum(nil)
}

// Sign 生成 HMAC 签名（十六进制字符串）
func (h *HMACHasher) Sign(data []byte) string {
	return hex.EncodeToString(h.SignBytes(data))
}

// Verify 验证十六进制格式的 HMAC 签名，使用常量时间比较
func (h *HMACHasher) Verify(data []byte, signature string) (bool, error) {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature format: %w", err)
	}
	return hmac.Equal(got, h.SignBytes(data)), nil
}

// SignatureHeader 生成 "<algo>=<hex>" 形式的签名头，例如 sha256=9f86d0...
func (h *HMACHasher) SignatureHeader(body []byte) string {
	return string(h.algorithm) + "=" + h.Sign(body)
}

// VerifySignatureHeader 校验 SignatureHeader 生成的签名头
func (h *HMACHasher) VerifySignatureHeader(body []byte, header string) (bool, error) {
	algo, sig, ok := strings.Cut(header, "=")
	if !ok {
		return false, fmt.Errorf("invalid signature header: %q", header)
	}
	if HashAlgorithm(algo) != h.algorithm {
		return false, fmt.Errorf("unexpected signature algorithm: %s", algo)
	}
	return h.Verify(body, sig)
}

// HMACSign 使用 SHA-256 生成 HMAC 签名
func HMACSign(key, data []byte) string {
	return NewHMACHasher(key).Sign(data)
}

// HMACVerify 使用 SHA-256 验证 HMAC 签名
func HMACVerify(key, data []byte, signature string) (bool, error) {
	return NewHMACHasher(key).Verify(data, signature)
}
