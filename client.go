package coap

import (
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	gocoap "github.com/dustin/go-coap"
	"github.com/pkg/errors"
)

// DefaultClient 默认客户端
var DefaultClient = &Client{}

// Client COAP客户端, 零值可用.
type Client struct {
	// Timeout 单播请求等待响应的时间, 为0时使用ResponseTimeout
	Timeout time.Duration

	// MulticastBaseMID 组播请求消息ID的起始值, 为0时使用MulticastBaseMID
	MulticastBaseMID uint16

	// MaxCollect 组播收集的总时长上限, 为0时不限制
	MaxCollect time.Duration

	// Rand 用于生成消息ID与令牌, 为nil时使用时间种子
	Rand *rand.Rand

	once  sync.Once
	ids   *idSource
	mu    sync.Mutex
	conns map[string]*clientConn
}

// Send 以CON方式发送单播请求, 阻塞直到收到响应或传输失败.
//
// 传输失败统一返回*TransportError, 客户端不做自动重试.
func (c *Client) Send(req *Request) (*Response, error) {
	if req.URL == nil {
		return nil, errors.New("nil Request.URL")
	}
	if len(req.URL.Host) <= 0 {
		return nil, errors.New("invalid Request.URL.Host")
	}

	addr, err := net.ResolveUDPAddr("udp", req.URL.Host)
	if err != nil {
		return nil, &TransportError{Op: "resolve", Addr: req.URL.Host, Err: err}
	}
	conn, err := c.addConn(addr)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.Timeout
	}
	if timeout <= 0 {
		timeout = ResponseTimeout
	}

	ids := c.idSource()
	m := req.message(ids.MessageID(), ids.Token())
	m.Type = gocoap.Confirmable
	return conn.roundTrip(m, timeout)
}

// SendRequest 同Send.
func (c *Client) SendRequest(req *Request) (*Response, error) {
	return c.Send(req)
}

// Close 关闭所有连接.
func (c *Client) Close() error {
	c.mu.Lock()
	conns := c.conns
	c.conns = nil
	c.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
	return nil
}

func (c *Client) idSource() *idSource {
	c.once.Do(func() {
		r := c.Rand
		if r == nil {
			r = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		base := c.MulticastBaseMID
		if base == 0 {
			base = MulticastBaseMID
		}
		c.ids = newIDSource(r, base)
	})
	return c.ids
}

func (c *Client) addConn(addr *net.UDPAddr) (*clientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns == nil {
		c.conns = make(map[string]*clientConn)
	}
	conn, ok := c.conns[addr.String()]
	if !ok {
		var err error
		if conn, err = dialConn(addr); err != nil {
			return nil, err
		}
		c.conns[addr.String()] = conn
	}
	return conn, nil
}

// idSource 生成消息ID与令牌. 单播消息ID取值[0, base), 组播消息ID取值[base, 65535].
type idSource struct {
	mu        sync.Mutex
	rand      *rand.Rand
	base      uint16
	seq       uint16
	multicast uint16
}

func newIDSource(r *rand.Rand, base uint16) *idSource {
	s := &idSource{rand: r, base: base}
	s.seq = uint16(r.Intn(int(base)))
	s.multicast = base + uint16(r.Intn(65536-int(base)))
	return s
}

func (s *idSource) MessageID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.seq >= s.base {
		s.seq = 0
	}
	return s.seq
}

func (s *idSource) MulticastID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.multicast == 65535 {
		s.multicast = s.base
	} else {
		s.multicast++
	}
	return s.multicast
}

func (s *idSource) Token() string {
	b := make([]byte, 8)
	s.mu.Lock()
	s.rand.Read(b)
	s.mu.Unlock()
	return string(b)
}

// clientConn 到单个对端的连接, 读协程按令牌将响应分发给等待者
type clientConn struct {
	conn *net.UDPConn
	addr *net.UDPAddr

	mu          sync.Mutex
	closed      bool
	waiters     map[string]*responseWaiter
	readStopped chan struct{}
}

func dialConn(addr *net.UDPAddr) (*clientConn, error) {
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: addr.String(), Err: err}
	}
	c := &clientConn{
		conn:        conn,
		addr:        addr,
		waiters:     make(map[string]*responseWaiter),
		readStopped: make(chan struct{}),
	}
	go c.reading()
	return c, nil
}

func (c *clientConn) roundTrip(m gocoap.Message, timeout time.Duration) (*Response, error) {
	token := string(m.Token)
	w := newResponseWaiter(m.MessageID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &TransportError{Op: "send", Addr: c.addr.String(), Err: ErrClosed}
	}
	if _, ok := c.waiters[token]; ok {
		c.mu.Unlock()
		return nil, errors.Errorf("token(%x) duplicate", token)
	}
	c.waiters[token] = w
	c.mu.Unlock()
	defer c.removeWaiter(token)

	if Verbose >= 2 {
		log.Printf("send: %s", messageString(m))
	}
	if err := gocoap.Transmit(c.conn, nil, m); err != nil {
		return nil, &TransportError{Op: "send", Addr: c.addr.String(), Err: err}
	}

	resp, err := w.Wait(timeout)
	if err != nil {
		return nil, &TransportError{Op: "wait", Addr: c.addr.String(), Err: err}
	}
	return resp, nil
}

func (c *clientConn) removeWaiter(token string) {
	c.mu.Lock()
	delete(c.waiters, token)
	c.mu.Unlock()
}

func (c *clientConn) reading() {
	defer close(c.readStopped)
	buf := make([]byte, MaxPacketSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if c.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			// 例如对端端口不可达, 所有等待中的请求失败
			c.failAll(err)
			time.Sleep(5 * time.Millisecond)
			continue
		}
		data := make([]byte, n)
		copy(data, buf)
		m, err := gocoap.ParseMessage(data)
		if err != nil {
			log.Printf("message unmarshal from %v: %v", c.addr, err)
			continue
		}
		c.recvMessage(m)
	}
}

func (c *clientConn) recvMessage(m gocoap.Message) {
	if Verbose >= 2 {
		log.Printf("recv: %s", messageString(m))
	}

	switch m.Type {
	case gocoap.Reset:
		c.finishByMessageID(m.MessageID, nil, ErrReset)
		return
	case gocoap.Confirmable:
		// 单独响应, 回复ACK
		ack := gocoap.Message{Type: gocoap.Acknowledgement, MessageID: m.MessageID}
		if err := gocoap.Transmit(c.conn, nil, ack); err != nil {
			log.Printf("send ack: %v", err)
		}
	}
	if m.Code == 0 {
		// 空ACK, 等待单独响应
		return
	}

	c.mu.Lock()
	w, ok := c.waiters[string(m.Token)]
	c.mu.Unlock()
	if !ok {
		if Verbose >= 1 {
			log.Printf("unexpected response %s from %v", messageString(m), c.addr)
		}
		return
	}
	w.Done(responseFromMessage(m, c.addr), nil)
}

func (c *clientConn) finishByMessageID(id uint16, resp *Response, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.waiters {
		if w.messageID == id {
			w.Done(resp, err)
			return
		}
	}
}

func (c *clientConn) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.waiters {
		w.Done(nil, err)
	}
}

func (c *clientConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *clientConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, w := range c.waiters {
		w.Done(nil, ErrClosed)
	}
	c.mu.Unlock()

	err := c.conn.Close()
	<-c.readStopped
	return err
}
