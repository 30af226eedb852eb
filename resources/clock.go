package resources

import (
	"time"

	coap "github.com/ironzhang/go-mcoap"
)

// TimeLayout yyyy-MM-dd HH:mm:ss
const TimeLayout = "2006-01-02 15:04:05"

// Clock 只读的时间资源, 每次GET返回当前时间.
type Clock struct {
	path  string
	title string
	now   func() time.Time
}

// NewClock 创建时间资源, now为nil时使用time.Now.
func NewClock(path, title string, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{path: path, title: title, now: now}
}

func (c *Clock) Path() string {
	return c.path
}

func (c *Clock) Title() string {
	return c.title
}

func (c *Clock) Get() coap.Result {
	return coap.Result{Code: coap.Content, Payload: []byte(c.now().Format(TimeLayout))}
}
