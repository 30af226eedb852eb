package coap

import (
	"log"
	"net"
	"sync"
	"time"

	gocoap "github.com/dustin/go-coap"
	"go.uber.org/atomic"
)

// Multicast 以NON方式向组播地址发送请求, 收集所有响应直到window内不再有新的响应.
//
// window<=0时使用DefaultWindow. 没有任何响应时返回空切片, 不是错误.
func (c *Client) Multicast(req *Request, window time.Duration) ([]*Response, error) {
	mc, err := c.StartMulticast(req, window)
	if err != nil {
		return nil, err
	}
	return mc.Wait(), nil
}

// StartMulticast 发送组播请求并立即返回收集器, 响应可通过Next逐个读取.
func (c *Client) StartMulticast(req *Request, window time.Duration) (*MulticastCollector, error) {
	if req.URL == nil {
		return nil, &TransportError{Op: "resolve", Err: ErrInvalidScheme}
	}
	if window <= 0 {
		window = DefaultWindow
	}
	gaddr, err := net.ResolveUDPAddr("udp", req.URL.Host)
	if err != nil {
		return nil, &TransportError{Op: "resolve", Addr: req.URL.Host, Err: err}
	}
	network := "udp6"
	if gaddr.IP.To4() != nil {
		network = "udp4"
	}
	// 响应来自各个对端的单播地址, 所以不能使用connected socket
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, &TransportError{Op: "listen", Addr: network, Err: err}
	}

	ids := c.idSource()
	m := req.message(ids.MulticastID(), ids.Token())
	m.Type = gocoap.NonConfirmable

	mc := newMulticastCollector(conn, string(m.Token), window, c.MaxCollect)
	go mc.reading()
	if Verbose >= 2 {
		log.Printf("send: %s to %v", messageString(m), gaddr)
	}
	if err := gocoap.Transmit(conn, gaddr, m); err != nil {
		mc.shutdown()
		return nil, &TransportError{Op: "send", Addr: gaddr.String(), Err: err}
	}
	go mc.collect()
	return mc, nil
}

// MulticastCollector 收集一次组播请求的响应.
//
// 每收到一个响应, 等待窗口重新计时; 窗口内没有新的响应时收集结束,
// 底层连接随即关闭, 之后到达的响应被丢弃.
type MulticastCollector struct {
	conn       *net.UDPConn
	token      string
	window     time.Duration
	maxCollect time.Duration

	arrivals chan *Response
	stopc    chan struct{}
	stopOnce sync.Once
	donec    chan struct{}
	closed   atomic.Bool

	mu        sync.Mutex
	responses []*Response
	cursor    int
	finished  bool
	wake      chan struct{}
}

func newMulticastCollector(conn *net.UDPConn, token string, window, maxCollect time.Duration) *MulticastCollector {
	return &MulticastCollector{
		conn:       conn,
		token:      token,
		window:     window,
		maxCollect: maxCollect,
		arrivals:   make(chan *Response),
		stopc:      make(chan struct{}),
		donec:      make(chan struct{}),
		wake:       make(chan struct{}),
	}
}

// Next 返回下一个响应, 必要时等待; 收集结束且响应已读完时返回false.
func (mc *MulticastCollector) Next() (*Response, bool) {
	for {
		mc.mu.Lock()
		if mc.cursor < len(mc.responses) {
			r := mc.responses[mc.cursor]
			mc.cursor++
			mc.mu.Unlock()
			return r, true
		}
		if mc.finished {
			mc.mu.Unlock()
			return nil, false
		}
		wake := mc.wake
		mc.mu.Unlock()
		<-wake
	}
}

// Wait 等待收集结束, 按到达顺序返回所有响应.
func (mc *MulticastCollector) Wait() []*Response {
	<-mc.donec
	mc.mu.Lock()
	defer mc.mu.Unlock()
	responses := make([]*Response, len(mc.responses))
	copy(responses, mc.responses)
	return responses
}

// Done 返回在收集结束时关闭的channel.
func (mc *MulticastCollector) Done() <-chan struct{} {
	return mc.donec
}

// Close 提前结束收集并关闭底层连接, 之后到达的响应被丢弃.
func (mc *MulticastCollector) Close() error {
	mc.stopOnce.Do(func() { close(mc.stopc) })
	<-mc.donec
	return nil
}

func (mc *MulticastCollector) collect() {
	defer mc.shutdown()
	collectArrivals(mc.arrivals, mc.window, mc.maxCollect, mc.stopc, mc.add)
}

// collectArrivals 从arrivals接收响应直到window内没有新的到达, 或者总时长超过maxCollect,
// 或者stop被关闭.
func collectArrivals(arrivals <-chan *Response, window, maxCollect time.Duration, stop <-chan struct{}, add func(*Response)) {
	timer := time.NewTimer(window)
	defer timer.Stop()

	var deadline <-chan time.Time
	if maxCollect > 0 {
		t := time.NewTimer(maxCollect)
		defer t.Stop()
		deadline = t.C
	}

	for {
		select {
		case r := <-arrivals:
			add(r)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(window)
		case <-timer.C:
			return
		case <-deadline:
			return
		case <-stop:
			return
		}
	}
}

func (mc *MulticastCollector) add(r *Response) {
	mc.mu.Lock()
	mc.responses = append(mc.responses, r)
	close(mc.wake)
	mc.wake = make(chan struct{})
	mc.mu.Unlock()
}

func (mc *MulticastCollector) shutdown() {
	if !mc.closed.CompareAndSwap(false, true) {
		return
	}
	mc.conn.Close()

	mc.mu.Lock()
	mc.finished = true
	close(mc.wake)
	mc.mu.Unlock()
	close(mc.donec)
}

func (mc *MulticastCollector) reading() {
	buf := make([]byte, MaxPacketSize)
	for {
		n, addr, err := mc.conn.ReadFromUDP(buf)
		if err != nil {
			if mc.closed.Load() {
				return
			}
			log.Printf("multicast read from: %v", err)
			time.Sleep(5 * time.Millisecond)
			continue
		}
		data := make([]byte, n)
		copy(data, buf)
		m, err := gocoap.ParseMessage(data)
		if err != nil {
			log.Printf("message unmarshal from %v: %v", addr, err)
			continue
		}
		if Verbose >= 2 {
			log.Printf("recv: %s from %v", messageString(m), addr)
		}
		if string(m.Token) != mc.token {
			continue
		}
		if m.Type == gocoap.Confirmable {
			ack := gocoap.Message{Type: gocoap.Acknowledgement, MessageID: m.MessageID}
			if err := gocoap.Transmit(mc.conn, addr, ack); err != nil {
				log.Printf("send ack to %v: %v", addr, err)
			}
		}
		if m.Code == 0 {
			continue
		}

		select {
		case mc.arrivals <- responseFromMessage(m, addr):
		case <-mc.donec:
			return
		}
	}
}
