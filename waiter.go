package coap

import (
	"sync"
	"time"
)

type responseWaiter struct {
	messageID uint16
	once      sync.Once
	done      chan struct{}
	resp      *Response
	err       error
}

func newResponseWaiter(messageID uint16) *responseWaiter {
	return &responseWaiter{
		messageID: messageID,
		done:      make(chan struct{}),
	}
}

// Done 结束等待, 只有第一次调用生效
func (w *responseWaiter) Done(resp *Response, err error) {
	w.once.Do(func() {
		w.resp = resp
		w.err = err
		close(w.done)
	})
}

// Wait 等待响应, 超时返回ErrTimeout
func (w *responseWaiter) Wait(timeout time.Duration) (*Response, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
		return w.resp, w.err
	case <-t.C:
		w.Done(nil, ErrTimeout)
		return w.resp, w.err
	}
}
