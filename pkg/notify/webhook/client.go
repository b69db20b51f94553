package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lk2023060901/brokerwatch/pkg/config"
	"github.com/lk2023060901/brokerwatch/pkg/crypto"
	"github.com/lk2023060901/brokerwatch/pkg/notify"
)

var _ notify.Sender = (*Client)(nil)

// Client 出站 Webhook 客户端
type Client struct {
	config *Config
	client *http.Client
	now    func() time.Time
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client（Timeout 会被配置覆盖）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient 创建 Webhook 客户端
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: newCfg,
		client: &http.Client{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client.Timeout = newCfg.Timeout
	return c, nil
}

// Send 投递一次请求
func (c *Client) Send(ctx context.Context, req *notify.Request) (*notify.Response, error) {
	if err := checkURL(req.URL); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", notify.ErrInvalidURL, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	if req.Secret != "" {
		ts := strconv.FormatInt(c.now().Unix(), 10)
		hasher := crypto.NewHMACHasher([]byte(req.Secret))
		httpReq.Header.Set(c.config.SignatureHeader, hasher.SignatureHeader(SignedContent(ts, req.Body)))
		httpReq.Header.Set(c.config.TimestampHeader, ts)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", notify.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes))
	out := &notify.Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Duration:   time.Since(start),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
			Body:       truncate(string(body), 256),
		}
	}
	return out, nil
}

// SignedContent 返回参与签名的内容："<timestamp>.<body>"
// 接收方用时间戳头与请求体原文重新拼接后校验，时间戳被篡改时签名失效
func SignedContent(timestamp string, body []byte) []byte {
	out := make([]byte, 0, len(timestamp)+1+len(body))
	out = append(out, timestamp...)
	out = append(out, '.')
	return append(out, body...)
}

func checkURL(raw string) error {
	if raw == "" {
		return notify.ErrWebhookEmpty
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", notify.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", notify.ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", notify.ErrInvalidURL)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
