// Package coaptest provides utilities for testing COAP handlers.
package coaptest

import (
	"bytes"

	coap "github.com/ironzhang/go-mcoap"
)

// ResponseRecorder 记录Handler写入的响应, 用于测试.
type ResponseRecorder struct {
	Code      coap.Code
	Format    coap.MediaType
	HasFormat bool
	Body      bytes.Buffer
}

func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{
		Code: coap.Content,
	}
}

func (rw *ResponseRecorder) WriteCode(code coap.Code) {
	rw.Code = code
}

func (rw *ResponseRecorder) SetContentFormat(f coap.MediaType) {
	rw.Format = f
	rw.HasFormat = true
}

func (rw *ResponseRecorder) Write(buf []byte) (int, error) {
	return rw.Body.Write(buf)
}
