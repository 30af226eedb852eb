// Package dedup 按消息ID过滤同一对端重复发送的请求.
package dedup

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrStateNotFound = errors.New("not found message state")
	ErrAckNonMessage = errors.New("non message not need ack")
	ErrMessageSaved  = errors.New("message already saved")
)

// Verdict 对收到消息的判定
type Verdict int

const (
	// New 首次收到, 应交给上层处理
	New Verdict = iota
	// Duplicate 重复消息, 忽略
	Duplicate
	// Replay 重复的CON消息, 重发保存的响应
	Replay
	// Conflict 同一消息ID先收到NON后收到CON, 回复RST
	Conflict
)

func (v Verdict) String() string {
	switch v {
	case New:
		return "new"
	case Duplicate:
		return "duplicate"
	case Replay:
		return "replay"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

type state struct {
	time        time.Time
	confirmable bool
	saved       bool
	reply       []byte
}

// Filter 单个对端的去重状态
type Filter struct {
	NonLifetime      time.Duration
	ExchangeLifetime time.Duration

	mu        sync.Mutex
	lastRecv  time.Time
	lastPrune time.Time
	states    map[uint16]*state
}

func NewFilter(nonLifetime, exchangeLifetime time.Duration) *Filter {
	return &Filter{
		NonLifetime:      nonLifetime,
		ExchangeLifetime: exchangeLifetime,
		lastRecv:         time.Now(),
		lastPrune:        time.Now(),
		states:           make(map[uint16]*state),
	}
}

// Recv 登记收到的消息, 返回判定结果; 判定为Replay时同时返回保存的响应.
func (f *Filter) Recv(id uint16, confirmable bool) (Verdict, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	f.lastRecv = now
	if now.Sub(f.lastPrune) > f.NonLifetime {
		f.prune(now)
	}
	s, ok := f.getState(id, now)
	if !ok {
		f.states[id] = &state{time: now, confirmable: confirmable}
		return New, nil
	}

	switch {
	case !s.confirmable && !confirmable:
		return Duplicate, nil
	case s.confirmable && confirmable:
		if s.saved {
			return Replay, s.reply
		}
		// 仍在处理中
		return Duplicate, nil
	case !s.confirmable && confirmable:
		return Conflict, nil
	default:
		return Duplicate, nil
	}
}

// Save 保存对CON消息的响应, 用于回复之后重复到达的同一消息.
func (f *Filter) Save(id uint16, reply []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.getState(id, time.Now())
	if !ok {
		return ErrStateNotFound
	}
	if !s.confirmable {
		return ErrAckNonMessage
	}
	if s.saved {
		return ErrMessageSaved
	}
	s.saved = true
	s.reply = reply
	return nil
}

// prune 清理过期的消息状态, 由Recv每隔NonLifetime调用一次
func (f *Filter) prune(now time.Time) {
	for id, s := range f.states {
		if f.timeout(s, now) {
			delete(f.states, id)
		}
	}
	f.lastPrune = now
}

// CanGC 对端在ExchangeLifetime内没有发来任何消息时可被回收.
func (f *Filter) CanGC(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return now.Sub(f.lastRecv) > f.ExchangeLifetime
}

func (f *Filter) getState(id uint16, now time.Time) (*state, bool) {
	s, ok := f.states[id]
	if !ok {
		return nil, false
	}
	if f.timeout(s, now) {
		delete(f.states, id)
		return nil, false
	}
	return s, true
}

func (f *Filter) timeout(s *state, now time.Time) bool {
	if s.confirmable {
		return now.Sub(s.time) > f.ExchangeLifetime
	}
	return now.Sub(s.time) > f.NonLifetime
}
