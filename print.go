package coap

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	gocoap "github.com/dustin/go-coap"
)

func PrintRequest(w io.Writer, r *Request, body bool) {
	fmt.Fprintf(w, "CON[%t] %s %s\n", r.Confirmable, r.Method, r.URL.String())
	if body && len(r.Payload) > 0 {
		fmt.Fprintf(w, "\n%s\n", r.Payload)
	}
}

// PrintResponse 以可读格式输出响应
func PrintResponse(w io.Writer, r *Response, body bool) {
	fmt.Fprintln(w, "==[ CoAP Response ]============================================")
	if r.RemoteAddr != nil {
		fmt.Fprintf(w, "Peer   : %s\n", r.RemoteAddr)
	}
	fmt.Fprintf(w, "MID    : %d\n", r.MessageID)
	fmt.Fprintf(w, "Token  : %x\n", r.Token)
	fmt.Fprintf(w, "ACK    : %t\n", r.Ack)
	fmt.Fprintf(w, "Status : %s - %s\n", r.Status.Detail(), strings.ToUpper(r.Status.String()))
	fmt.Fprintf(w, "Payload: %d Bytes\n", len(r.Payload))
	if body && len(r.Payload) > 0 {
		fmt.Fprintln(w, "---------------------------------------------------------------")
		if utf8.Valid(r.Payload) {
			fmt.Fprintf(w, "%s\n", r.Payload)
		} else {
			fmt.Fprintf(w, "%x\n", r.Payload)
		}
	}
	fmt.Fprintln(w, "===============================================================")
}

func messageString(m gocoap.Message) string {
	if len(m.Token) <= 0 {
		return fmt.Sprintf("%s,%s,%d", m.Type, m.Code, m.MessageID)
	}
	return fmt.Sprintf("%s,%s,%d,%x", m.Type, m.Code, m.MessageID, m.Token)
}
