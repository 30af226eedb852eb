package resources

import (
	"log"
	"strconv"
	"strings"
	"sync"

	coap "github.com/ironzhang/go-mcoap"
)

// State 可写资源的生命周期状态
type State int

const (
	Initialized State = iota
	Updated
	Deleted
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Toggle 布尔值资源, 支持GET, PUT和DELETE.
type Toggle struct {
	path  string
	title string

	mu    sync.Mutex
	value bool
	state State
}

func NewToggle(path, title string, initial bool) *Toggle {
	return &Toggle{path: path, title: title, value: initial}
}

func (t *Toggle) Path() string {
	return t.path
}

func (t *Toggle) Title() string {
	return t.title
}

// Value 返回当前值与状态.
func (t *Toggle) Value() (bool, State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.state
}

func (t *Toggle) Get() coap.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Deleted {
		return coap.Result{Code: coap.NotFound}
	}
	return coap.Result{Code: coap.Content, Payload: []byte(strconv.FormatBool(t.value))}
}

func (t *Toggle) Put(payload []byte) coap.Result {
	t.mu.Lock()
	if t.state == Deleted {
		t.mu.Unlock()
		return coap.Result{Code: coap.NotFound}
	}
	v, err := ParseBool(payload)
	if err != nil {
		t.mu.Unlock()
		return coap.Result{Code: coap.BadRequest, Payload: []byte(err.Error())}
	}
	old := t.value
	t.value = v
	t.state = Updated
	t.mu.Unlock()

	if coap.Verbose >= 1 {
		log.Printf("%s: %t -> %t", t.path, old, v)
	}
	return coap.Result{Code: coap.Changed, Payload: []byte(strconv.FormatBool(v))}
}

func (t *Toggle) Delete() coap.Result {
	t.mu.Lock()
	old := t.state
	if old == Deleted {
		t.mu.Unlock()
		return coap.Result{Code: coap.NotFound}
	}
	t.state = Deleted
	t.mu.Unlock()

	if coap.Verbose >= 1 {
		log.Printf("%s: %s -> %s", t.path, old, Deleted)
	}
	return coap.Result{Code: coap.Deleted}
}

// ParseBool 解析"true"或"false", 忽略大小写与首尾空白.
func ParseBool(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, &coap.ParseError{Type: "bool", Input: string(payload)}
}
