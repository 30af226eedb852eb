package coap

import (
	"log"
	"net"
	"sync"
	"time"

	gocoap "github.com/dustin/go-coap"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/ironzhang/go-mcoap/internal/dedup"
	"github.com/ironzhang/go-mcoap/internal/gctable"
)

// ListenAndServe 在指定地址端口监听并提供COAP服务.
func ListenAndServe(network, address string, h Handler) error {
	return (&Server{Handler: h}).ListenAndServe(network, address)
}

// Server 定义了运行一个COAP Server的参数
type Server struct {
	Handler Handler // 请求响应接口

	mu     sync.Mutex
	conns  map[*net.UDPConn]struct{}
	peers  gctable.Table[*dedup.Filter]
	seq    atomic.Uint32
	closed atomic.Bool
	wg     sync.WaitGroup
}

// ListenAndServe 在指定地址端口监听并提供COAP服务.
func (s *Server) ListenAndServe(network, address string) error {
	ln, err := ListenUDP(network, address)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// ListenAndServeMulticast 加入组播组group并提供COAP服务, 同一端口的单播请求也会被处理.
//
// ifname为空时由系统选择网络接口.
func (s *Server) ListenAndServeMulticast(group, ifname string) error {
	ln, err := ListenMulticastUDP(group, ifname)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// ListenUDP 绑定单播地址, 返回的连接可交给Server.Serve.
func ListenUDP(network, address string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, errors.Wrap(err, "resolve listen address")
	}
	ln, err := net.ListenUDP(network, addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	return ln, nil
}

// ListenMulticastUDP 加入IPv4组播组group, 返回的连接可交给Server.Serve.
func ListenMulticastUDP(group, ifname string) (*net.UDPConn, error) {
	gaddr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, errors.Wrap(err, "resolve multicast group")
	}
	if !gaddr.IP.IsMulticast() {
		return nil, errors.Errorf("%s is not a multicast address", gaddr.IP)
	}
	var ifi *net.Interface
	if ifname != "" {
		if ifi, err = net.InterfaceByName(ifname); err != nil {
			return nil, errors.Wrapf(err, "interface %q", ifname)
		}
	}
	ln, err := net.ListenMulticastUDP("udp4", ifi, gaddr)
	if err != nil {
		return nil, errors.Wrap(err, "join multicast group")
	}
	return ln, nil
}

// Serve 在conn上提供COAP服务, 直到Close被调用. conn由Server负责关闭.
func (s *Server) Serve(conn *net.UDPConn) error {
	if !s.track(conn) {
		conn.Close()
		return ErrClosed
	}
	defer s.untrack(conn)

	buf := make([]byte, MaxPacketSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			log.Printf("listener(%s) read from: %v", conn.LocalAddr(), err)
			if e, ok := err.(net.Error); ok && e.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}
		data := make([]byte, n)
		copy(data, buf)

		if !s.begin() {
			return nil
		}
		go func() {
			defer s.wg.Done()
			s.servePacket(conn, addr, data)
		}()
	}
}

// Close 关闭所有监听, 并等待正在处理的请求结束.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if Verbose >= 1 {
		log.Printf("server closed, %d peers tracked", s.peers.Len())
	}
	return nil
}

func (s *Server) track(conn *net.UDPConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[*net.UDPConn]struct{})
	}
	s.conns[conn] = struct{}{}
	return true
}

// begin 登记一个待处理的请求, Server已关闭时返回false
func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *net.UDPConn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) servePacket(conn *net.UDPConn, addr *net.UDPAddr, data []byte) {
	m, err := gocoap.ParseMessage(data)
	if err != nil {
		log.Printf("message unmarshal from %v: %v", addr, err)
		return
	}
	if Verbose >= 2 {
		log.Printf("recv: %s", messageString(m))
	}

	switch m.Type {
	case gocoap.Confirmable, gocoap.NonConfirmable:
	default:
		// 服务端不发起请求, 忽略ACK与RST
		return
	}
	if m.Code == 0 {
		// 空的CON消息为CoAP ping
		if m.Type == gocoap.Confirmable {
			s.reply(conn, addr, gocoap.Message{Type: gocoap.Reset, MessageID: m.MessageID})
		}
		return
	}
	if Code(m.Code).Class() != 0 {
		log.Printf("ignore response %s from %v", messageString(m), addr)
		return
	}

	peer := s.peers.Load(addr.String(), func() *dedup.Filter {
		return dedup.NewFilter(NON_LIFETIME, EXCHANGE_LIFETIME)
	})
	verdict, saved := peer.Recv(m.MessageID, m.Type == gocoap.Confirmable)
	switch verdict {
	case dedup.Duplicate:
		return
	case dedup.Replay:
		if Verbose >= 1 {
			log.Printf("ack saved response for duplicate %s from %v", messageString(m), addr)
		}
		s.write(conn, addr, saved)
		return
	case dedup.Conflict:
		s.reply(conn, addr, gocoap.Message{Type: gocoap.Reset, MessageID: m.MessageID})
		return
	}

	if s.Handler == nil {
		log.Printf("handler is nil")
		s.reply(conn, addr, gocoap.Message{Type: gocoap.Reset, MessageID: m.MessageID})
		return
	}

	req := requestFromMessage(m, conn.LocalAddr(), addr)
	resp := s.serveRequest(req)

	out := resp.message(m, uint16(s.seq.Inc()))
	reply, err := out.MarshalBinary()
	if err != nil {
		log.Printf("message marshal: %v", err)
		return
	}
	if m.Type == gocoap.Confirmable {
		if err := peer.Save(m.MessageID, reply); err != nil {
			log.Printf("save response: %v", err)
		}
	}
	if Verbose >= 2 {
		log.Printf("send: %s", messageString(out))
	}
	s.write(conn, addr, reply)
}

// serveRequest 调用Handler处理请求, Handler中的panic被恢复为InternalServerError响应
func (s *Server) serveRequest(req *Request) (resp *response) {
	resp = newResponse()
	defer func() {
		if p := recover(); p != nil {
			log.Printf("serve %s %q from %v: panic: %v", req.Method, req.Path(), req.RemoteAddr, p)
			resp = newResponse()
			resp.WriteCode(InternalServerError)
		}
	}()
	s.Handler.ServeCOAP(resp, req)
	return resp
}

func (s *Server) reply(conn *net.UDPConn, addr *net.UDPAddr, m gocoap.Message) {
	if err := gocoap.Transmit(conn, addr, m); err != nil {
		log.Printf("send %s to %v: %v", messageString(m), addr, err)
	}
}

func (s *Server) write(conn *net.UDPConn, addr *net.UDPAddr, data []byte) {
	if _, err := conn.WriteToUDP(data, addr); err != nil {
		log.Printf("send response to %v: %v", addr, err)
	}
}
