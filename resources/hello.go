package resources

import (
	"fmt"

	coap "github.com/ironzhang/go-mcoap"
)

// Hello 只读的问候资源, 多个服务端通过id区分.
type Hello struct {
	id int
}

// NewHello 创建问候资源. id<0时响应中不带id.
func NewHello(id int) *Hello {
	return &Hello{id: id}
}

func (h *Hello) Path() string {
	return "helloWorld"
}

func (h *Hello) Title() string {
	return "Hello-World Resource"
}

func (h *Hello) Get() coap.Result {
	payload := "Hello World!"
	if h.id >= 0 {
		payload = fmt.Sprintf("Hello World! %d", h.id)
	}
	return coap.Result{Code: coap.Content, Payload: []byte(payload)}
}
