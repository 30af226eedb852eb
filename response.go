package coap

import (
	"net"

	gocoap "github.com/dustin/go-coap"
)

type Response struct {
	Ack        bool
	Status     Code
	MessageID  uint16
	Token      string
	Payload    []byte
	RemoteAddr net.Addr
}

func responseFromMessage(m gocoap.Message, addr net.Addr) *Response {
	return &Response{
		Ack:        m.Type == gocoap.Acknowledgement,
		Status:     Code(m.Code),
		MessageID:  m.MessageID,
		Token:      string(m.Token),
		Payload:    m.Payload,
		RemoteAddr: addr,
	}
}
