package coap

import (
	"bytes"

	gocoap "github.com/dustin/go-coap"
)

// Handler 响应COAP请求的接口
type Handler interface {
	ServeCOAP(ResponseWriter, *Request)
}

// HandlerFunc 将普通函数适配为Handler
type HandlerFunc func(ResponseWriter, *Request)

func (f HandlerFunc) ServeCOAP(w ResponseWriter, r *Request) {
	f(w, r)
}

// ResponseWriter 用于构造COAP响应
type ResponseWriter interface {
	// WriteCode 写入响应状态码, 默认为Content
	WriteCode(Code)

	// SetContentFormat 设置payload的格式, 写入payload时默认为TextPlain
	SetContentFormat(MediaType)

	// Write 写入payload
	Write([]byte) (int, error)
}

// response 实现了ResponseWriter接口
type response struct {
	code      Code
	format    MediaType
	hasFormat bool
	buffer    bytes.Buffer
}

func newResponse() *response {
	return &response{code: Content}
}

func (r *response) WriteCode(code Code) {
	r.code = code
}

func (r *response) SetContentFormat(f MediaType) {
	r.format = f
	r.hasFormat = true
}

func (r *response) Write(p []byte) (int, error) {
	return r.buffer.Write(p)
}

// message 构造请求req对应的响应消息: CON请求回复附带响应的ACK, NON请求回复NON
func (r *response) message(req gocoap.Message, messageID uint16) gocoap.Message {
	m := gocoap.Message{
		Type:      gocoap.Acknowledgement,
		Code:      gocoap.COAPCode(r.code),
		MessageID: req.MessageID,
		Token:     req.Token,
		Payload:   r.buffer.Bytes(),
	}
	if !req.IsConfirmable() {
		m.Type = gocoap.NonConfirmable
		m.MessageID = messageID
	}
	if r.hasFormat || r.buffer.Len() > 0 {
		m.SetOption(gocoap.ContentFormat, gocoap.MediaType(r.format))
	}
	return m
}
