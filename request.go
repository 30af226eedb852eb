package coap

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocoap "github.com/dustin/go-coap"
	"github.com/pkg/errors"
)

// Request COAP请求
type Request struct {
	// 是否为可靠消息
	Confirmable bool

	// 请求方法
	Method Code

	// 目标url
	URL *url.URL

	// 消息令牌, 消息接收端使用, 发送端不应该使用该字段
	Token string

	// 消息负载
	Payload []byte

	// 远端地址, 消息接收端使用, 发送端不应该使用该字段
	RemoteAddr net.Addr

	// 请求超时时间, 消息发送端使用
	Timeout time.Duration
}

// NewRequest 构造COAP请求.
func NewRequest(confirmable bool, method Code, urlstr string, payload []byte) (*Request, error) {
	u, err := url.Parse(urlstr)
	if err != nil {
		return nil, errors.Wrap(err, "parse url")
	}
	if u.Scheme != "coap" {
		return nil, errors.Wrapf(ErrInvalidScheme, "%q", u.Scheme)
	}
	if u.Fragment != "" {
		return nil, errors.New("unsupport fragment")
	}
	host, port, err := splitHostPort(u.Host)
	if err != nil {
		return nil, err
	}
	if len(host) <= 0 {
		return nil, errors.New("invalid host")
	}
	if port == 0 {
		u.Host = net.JoinHostPort(host, strconv.Itoa(DefaultPort))
	}
	r := &Request{
		Confirmable: confirmable,
		Method:      method,
		URL:         u,
		Payload:     payload,
	}
	return r, nil
}

// Path 返回资源路径, 不含首尾的'/'
func (r *Request) Path() string {
	if r.URL == nil {
		return ""
	}
	return strings.Trim(r.URL.Path, "/")
}

func (r *Request) message(messageID uint16, token string) gocoap.Message {
	m := gocoap.Message{
		Type:      gocoap.NonConfirmable,
		Code:      gocoap.COAPCode(r.Method),
		MessageID: messageID,
		Token:     []byte(token),
		Payload:   r.Payload,
	}
	if r.Confirmable {
		m.Type = gocoap.Confirmable
	}
	if path := r.Path(); path != "" {
		m.SetPathString(path)
	}
	if r.URL != nil && r.URL.RawQuery != "" {
		for _, q := range strings.Split(r.URL.RawQuery, "&") {
			m.AddOption(gocoap.URIQuery, q)
		}
	}
	return m
}

func requestFromMessage(m gocoap.Message, local, remote net.Addr) *Request {
	u := &url.URL{
		Scheme: "coap",
		Host:   local.String(),
		Path:   "/" + m.PathString(),
	}
	var query []string
	for _, v := range m.Options(gocoap.URIQuery) {
		if s, ok := v.(string); ok {
			query = append(query, s)
		}
	}
	u.RawQuery = strings.Join(query, "&")
	return &Request{
		Confirmable: m.IsConfirmable(),
		Method:      Code(m.Code),
		URL:         u,
		Token:       string(m.Token),
		Payload:     m.Payload,
		RemoteAddr:  remote,
	}
}

func splitHostPort(hostport string) (string, uint16, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		// 未指定端口
		return strings.Trim(hostport, "[]"), 0, nil
	}
	if len(host) <= 0 {
		return "", 0, errors.New("invalid host")
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid port %q", port)
	}
	return host, uint16(n), nil
}
