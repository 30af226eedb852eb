package coap

import (
	"fmt"
	"strings"

	gocoap "github.com/dustin/go-coap"
)

// Code CoAP请求方法或响应码
type Code uint8

// Request Codes
const (
	GET    = Code(gocoap.GET)
	POST   = Code(gocoap.POST)
	PUT    = Code(gocoap.PUT)
	DELETE = Code(gocoap.DELETE)
)

// Responses Codes
const (
	Created               = Code(gocoap.Created)
	Deleted               = Code(gocoap.Deleted)
	Valid                 = Code(gocoap.Valid)
	Changed               = Code(gocoap.Changed)
	Content               = Code(gocoap.Content)
	BadRequest            = Code(gocoap.BadRequest)
	Unauthorized          = Code(gocoap.Unauthorized)
	BadOption             = Code(gocoap.BadOption)
	Forbidden             = Code(gocoap.Forbidden)
	NotFound              = Code(gocoap.NotFound)
	MethodNotAllowed      = Code(gocoap.MethodNotAllowed)
	NotAcceptable         = Code(gocoap.NotAcceptable)
	PreconditionFailed    = Code(gocoap.PreconditionFailed)
	RequestEntityTooLarge = Code(gocoap.RequestEntityTooLarge)
	UnsupportedMediaType  = Code(gocoap.UnsupportedMediaType)
	InternalServerError   = Code(gocoap.InternalServerError)
	NotImplemented        = Code(gocoap.NotImplemented)
	BadGateway            = Code(gocoap.BadGateway)
	ServiceUnavailable    = Code(gocoap.ServiceUnavailable)
	GatewayTimeout        = Code(gocoap.GatewayTimeout)
	ProxyingNotSupported  = Code(gocoap.ProxyingNotSupported)
)

func (c Code) String() string {
	return gocoap.COAPCode(c).String()
}

// Class 返回码的类别: 0 请求, 2 成功, 4 客户端错误, 5 服务端错误
func (c Code) Class() uint8 {
	return uint8(c) >> 5
}

// Detail returns the code formatted as class.detail, e.g. 2.05.
func (c Code) Detail() string {
	return fmt.Sprintf("%d.%02d", c.Class(), uint8(c)&0x1f)
}

// ParseMethod parses a request method name.
func ParseMethod(s string) (Code, error) {
	switch strings.ToUpper(s) {
	case "GET":
		return GET, nil
	case "POST":
		return POST, nil
	case "PUT":
		return PUT, nil
	case "DELETE":
		return DELETE, nil
	default:
		return 0, fmt.Errorf("unknown coap method: %v", s)
	}
}

// MediaType Content-Format选项的取值
type MediaType uint16

const (
	TextPlain     = MediaType(gocoap.TextPlain)
	AppLinkFormat = MediaType(gocoap.AppLinkFormat)
	AppJSON       = MediaType(gocoap.AppJSON)
)
