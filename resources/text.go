package resources

import (
	"log"
	"sync"
	"unicode/utf8"

	coap "github.com/ironzhang/go-mcoap"
)

// Text 文本资源, 支持GET与PUT, 不可删除.
type Text struct {
	path  string
	title string

	mu    sync.RWMutex
	value string
}

func NewText(path, title, initial string) *Text {
	return &Text{path: path, title: title, value: initial}
}

func (t *Text) Path() string {
	return t.path
}

func (t *Text) Title() string {
	return t.title
}

func (t *Text) Get() coap.Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return coap.Result{Code: coap.Content, Payload: []byte(t.value)}
}

func (t *Text) Put(payload []byte) coap.Result {
	if !utf8.Valid(payload) {
		err := &coap.ParseError{Type: "text", Input: string(payload)}
		return coap.Result{Code: coap.BadRequest, Payload: []byte(err.Error())}
	}

	v := string(payload)
	t.mu.Lock()
	old := t.value
	t.value = v
	t.mu.Unlock()
	if coap.Verbose >= 1 {
		log.Printf("%s: %q -> %q", t.path, old, v)
	}
	return coap.Result{Code: coap.Changed, Payload: []byte(v)}
}
