package coap

import (
	"bytes"
	"net"
	"strings"
	"testing"
)

func TestPrintResponse(t *testing.T) {
	r := &Response{
		Ack:        true,
		Status:     Content,
		MessageID:  12,
		Token:      "\x01\x02",
		Payload:    []byte("Hello World! 1"),
		RemoteAddr: &net.UDPAddr{IP: net.IPv4(192, 168, 1, 2), Port: 5683},
	}
	var buf bytes.Buffer
	PrintResponse(&buf, r, true)
	out := buf.String()
	for i, want := range []string{
		"Peer   : 192.168.1.2:5683",
		"MID    : 12",
		"Token  : 0102",
		"ACK    : true",
		"Status : 2.05 - CONTENT",
		"Payload: 14 Bytes",
		"Hello World! 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("case%d: %q not in output:\n%s", i, want, out)
		}
	}

	buf.Reset()
	r.Payload = []byte{0xff, 0x00}
	PrintResponse(&buf, r, true)
	if !strings.Contains(buf.String(), "ff00") {
		t.Errorf("binary payload not printed as hex:\n%s", buf.String())
	}
}
