package coap_test

import (
	"net"
	"sync"
	"testing"
	"time"

	gocoap "github.com/dustin/go-coap"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	coap "github.com/ironzhang/go-mcoap"
	"github.com/ironzhang/go-mcoap/resources"
)

// startServer 在本地回环地址的随机端口上启动服务端
func startServer(t *testing.T, h coap.Handler) (*coap.Server, string) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	srv := &coap.Server{Handler: h}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(conn); err != nil && err != coap.ErrClosed {
			t.Errorf("serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		srv.Close()
		wg.Wait()
	})
	return srv, conn.LocalAddr().String()
}

func newTestRegistry(t *testing.T) *coap.Registry {
	r := coap.NewRegistry()
	require.NoError(t, r.Register(resources.NewHello(3)))
	require.NoError(t, r.Register(resources.NewToggle("toggle", "Toggle", false)))
	return r
}

func TestServerUnicast(t *testing.T) {
	_, addr := startServer(t, newTestRegistry(t))
	c := &coap.Client{}
	defer c.Close()

	tests := []struct {
		method  coap.Code
		path    string
		payload string
		status  coap.Code
		body    string
	}{
		{method: coap.GET, path: "/helloWorld", status: coap.Content, body: "Hello World! 3"},
		{method: coap.GET, path: "/toggle", status: coap.Content, body: "false"},
		{method: coap.PUT, path: "/toggle", payload: "true", status: coap.Changed, body: "true"},
		{method: coap.GET, path: "/toggle", status: coap.Content, body: "true"},
		{method: coap.PUT, path: "/toggle", payload: "bogus", status: coap.BadRequest},
		{method: coap.POST, path: "/toggle", status: coap.MethodNotAllowed},
		{method: coap.DELETE, path: "/toggle", status: coap.Deleted},
		{method: coap.GET, path: "/toggle", status: coap.NotFound},
		{method: coap.GET, path: "/nothing", status: coap.NotFound},
	}
	for i, tt := range tests {
		req, err := coap.NewRequest(true, tt.method, "coap://"+addr+tt.path, []byte(tt.payload))
		require.NoError(t, err, "case%d", i)
		resp, err := c.Send(req)
		require.NoError(t, err, "case%d", i)
		require.True(t, resp.Ack, "case%d: piggybacked response", i)
		require.Equal(t, tt.status, resp.Status, "case%d", i)
		if tt.body != "" {
			require.Equal(t, tt.body, string(resp.Payload), "case%d", i)
		}
	}
}

func TestServerConcurrentRequests(t *testing.T) {
	_, addr := startServer(t, newTestRegistry(t))
	c := &coap.Client{}
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := coap.NewRequest(true, coap.GET, "coap://"+addr+"/helloWorld", nil)
			if err != nil {
				t.Errorf("new request: %v", err)
				return
			}
			resp, err := c.Send(req)
			if err != nil {
				t.Errorf("send: %v", err)
				return
			}
			if got, want := string(resp.Payload), "Hello World! 3"; got != want {
				t.Errorf("payload: %q != %q", got, want)
			}
		}()
	}
	wg.Wait()
}

func TestServerDuplicate(t *testing.T) {
	var calls atomic.Int32
	h := coap.HandlerFunc(func(w coap.ResponseWriter, r *coap.Request) {
		calls.Inc()
		w.Write([]byte("once"))
	})
	_, addr := startServer(t, h)

	raddr, err := net.ResolveUDPAddr("udp4", addr)
	require.NoError(t, err)
	conn, err := net.DialUDP("udp4", nil, raddr)
	require.NoError(t, err)
	defer conn.Close()

	m := gocoap.Message{
		Type:      gocoap.Confirmable,
		Code:      gocoap.GET,
		MessageID: 1234,
		Token:     []byte("tok"),
	}
	m.SetPathString("dup")

	buf := make([]byte, coap.MaxPacketSize)
	for i := 0; i < 3; i++ {
		require.NoError(t, gocoap.Transmit(conn, nil, m))
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		require.NoError(t, err, "case%d", i)
		resp, err := gocoap.ParseMessage(buf[:n])
		require.NoError(t, err, "case%d", i)
		require.Equal(t, gocoap.Acknowledgement, resp.Type, "case%d", i)
		require.Equal(t, uint16(1234), resp.MessageID, "case%d", i)
		require.Equal(t, "once", string(resp.Payload), "case%d", i)
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestServerPing(t *testing.T) {
	_, addr := startServer(t, newTestRegistry(t))
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	require.NoError(t, err)
	conn, err := net.DialUDP("udp4", nil, raddr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, gocoap.Transmit(conn, nil, gocoap.Message{Type: gocoap.Confirmable, MessageID: 77}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, coap.MaxPacketSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	resp, err := gocoap.ParseMessage(buf[:n])
	require.NoError(t, err)
	require.Equal(t, gocoap.Reset, resp.Type)
	require.Equal(t, uint16(77), resp.MessageID)
}

func TestServerNonConfirmable(t *testing.T) {
	_, addr := startServer(t, newTestRegistry(t))
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	require.NoError(t, err)
	conn, err := net.DialUDP("udp4", nil, raddr)
	require.NoError(t, err)
	defer conn.Close()

	m := gocoap.Message{Type: gocoap.NonConfirmable, Code: gocoap.GET, MessageID: 5, Token: []byte("n")}
	m.SetPathString("helloWorld")
	require.NoError(t, gocoap.Transmit(conn, nil, m))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, coap.MaxPacketSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	resp, err := gocoap.ParseMessage(buf[:n])
	require.NoError(t, err)
	require.Equal(t, gocoap.NonConfirmable, resp.Type)
	require.Equal(t, []byte("n"), resp.Token)
	require.Equal(t, "Hello World! 3", string(resp.Payload))
}

func TestServerClose(t *testing.T) {
	srv, _ := startServer(t, newTestRegistry(t))
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	require.ErrorIs(t, srv.Serve(conn), coap.ErrClosed)
}

func TestClientUnreachable(t *testing.T) {
	// 绑定后立即关闭, 得到一个没有监听者的端口
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	conn.Close()

	c := &coap.Client{Timeout: 300 * time.Millisecond}
	defer c.Close()
	req, err := coap.NewRequest(true, coap.GET, "coap://"+addr+"/helloWorld", nil)
	require.NoError(t, err)

	start := time.Now()
	resp, err := c.Send(req)
	require.Nil(t, resp)
	require.Error(t, err)
	require.True(t, coap.IsTransportError(err), "%T: %v", err, err)
	require.True(t, time.Since(start) < 2*time.Second, "elapsed %v", time.Since(start))
}

func TestClientReset(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	go func() {
		buf := make([]byte, coap.MaxPacketSize)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		m, err := gocoap.ParseMessage(buf[:n])
		if err != nil {
			return
		}
		gocoap.Transmit(conn, addr, gocoap.Message{Type: gocoap.Reset, MessageID: m.MessageID})
	}()

	c := &coap.Client{}
	defer c.Close()
	req, err := coap.NewRequest(true, coap.GET, "coap://"+conn.LocalAddr().String()+"/x", nil)
	require.NoError(t, err)
	_, err = c.Send(req)
	require.True(t, coap.IsTransportError(err))
	require.ErrorIs(t, err, coap.ErrReset)
}

func TestMulticastEndToEnd(t *testing.T) {
	_, addr := startServer(t, newTestRegistry(t))

	req, err := coap.NewRequest(false, coap.GET, "coap://"+addr+"/helloWorld", nil)
	require.NoError(t, err)
	responses, err := (&coap.Client{}).Multicast(req, 200*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.Equal(t, coap.Content, responses[0].Status)
	require.Equal(t, "Hello World! 3", string(responses[0].Payload))
	require.Equal(t, addr, responses[0].RemoteAddr.String())
}

func TestServerHandlerPanic(t *testing.T) {
	var calls atomic.Int32
	h := coap.HandlerFunc(func(w coap.ResponseWriter, r *coap.Request) {
		if calls.Inc() == 1 {
			w.Write([]byte("partial"))
			panic("boom")
		}
		w.Write([]byte("alive"))
	})
	_, addr := startServer(t, h)
	c := &coap.Client{}
	defer c.Close()

	tests := []struct {
		status coap.Code
		body   string
	}{
		{status: coap.InternalServerError, body: ""},
		{status: coap.Content, body: "alive"},
	}
	for i, tt := range tests {
		req, err := coap.NewRequest(true, coap.GET, "coap://"+addr+"/panic", nil)
		require.NoError(t, err, "case%d", i)
		resp, err := c.Send(req)
		require.NoError(t, err, "case%d", i)
		require.Equal(t, tt.status, resp.Status, "case%d", i)
		require.Equal(t, tt.body, string(resp.Payload), "case%d", i)
	}
}
