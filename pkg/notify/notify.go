package notify

import "context"

// Sender 出站通知发送接口（核心抽象）
type Sender interface {
	// Send 投递一次请求，非 2xx 响应以错误形式返回
	Send(ctx context.Context, req *Request) (*Response, error)
}
