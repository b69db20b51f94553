package dispatcher

import (
	"context"
	"sync"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"golang.org/x/time/rate"
)

// job 一次待投递任务
type job struct {
	ctx    context.Context
	sink   model.NotificationSink
	body   []byte
	result chan model.DeliveryAttempt
}

// lane 单个 sink 的 FIFO 投递队列
// 同一时刻最多一个 drain 任务在协程池中运行，保证同一 sink 不会并发投递
type lane struct {
	mu      sync.Mutex
	queue   []*job
	running bool
	limiter *rate.Limiter
}

// push 入队，返回是否需要启动 drain
func (l *lane) push(j *job) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, j)
	if l.running {
		return false
	}
	l.running = true
	return true
}

// pop 取出队首，队列为空时结束 drain
func (l *lane) pop() (*job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		l.running = false
		return nil, false
	}
	j := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return j, true
}

// abandon 协程池不可用时清空队列
func (l *lane) abandon() []*job {
	l.mu.Lock()
	defer l.mu.Unlock()
	jobs := l.queue
	l.queue = nil
	l.running = false
	return jobs
}
