package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	gocoap "github.com/dustin/go-coap"

	coap "github.com/ironzhang/go-mcoap"
	"github.com/ironzhang/go-mcoap/tools/coaputil"
)

type Args struct {
	Addr      string
	Type      int
	Code      int
	MessageID int
	Token     string
	Path      string
	Queries   coaputil.StringsValue
	Format    int
	Payload   string
	Read      bool
	Timeout   time.Duration
}

func (p *Args) Parse(fs *flag.FlagSet, args []string) error {
	fs.StringVar(&p.Addr, "addr", "localhost:5683", "address")
	fs.IntVar(&p.Type, "type", 0, "message type, 0 CON, 1 NON, 2 ACK, 3 RST")
	fs.IntVar(&p.Code, "code", 0, "message code")
	fs.IntVar(&p.MessageID, "id", 0, "message id")
	fs.StringVar(&p.Token, "token", "", "")
	fs.StringVar(&p.Path, "path", "", "uri path")
	fs.Var(&p.Queries, "query", "uri query")
	fs.IntVar(&p.Format, "format", -1, "content format, -1 to omit")
	fs.StringVar(&p.Payload, "payload", "", "message payload")
	fs.BoolVar(&p.Read, "read", false, "read message")
	fs.DurationVar(&p.Timeout, "timeout", coap.ResponseTimeout, "read timeout")
	return fs.Parse(args)
}

func MakeMessage(a *Args) (gocoap.Message, error) {
	if a.Type < 0 || a.Type > 3 {
		return gocoap.Message{}, fmt.Errorf("invalid message type %d", a.Type)
	}
	if a.Code < 0 || a.Code > 255 {
		return gocoap.Message{}, fmt.Errorf("invalid message code %d", a.Code)
	}
	if a.MessageID < 0 || a.MessageID > 65535 {
		return gocoap.Message{}, fmt.Errorf("invalid message id %d", a.MessageID)
	}
	m := gocoap.Message{
		Type:      gocoap.COAPType(a.Type),
		Code:      gocoap.COAPCode(a.Code),
		MessageID: uint16(a.MessageID),
		Token:     []byte(a.Token),
		Payload:   []byte(a.Payload),
	}
	if a.Path != "" && a.Path != "/" {
		m.SetPathString(a.Path)
	}
	for _, q := range a.Queries {
		m.AddOption(gocoap.URIQuery, q)
	}
	if a.Format >= 0 {
		m.SetOption(gocoap.ContentFormat, gocoap.MediaType(a.Format))
	}
	return m, nil
}

func WriteMessage(w io.Writer, m gocoap.Message) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err = w.Write(data); err != nil {
		return err
	}
	return nil
}

func ReadMessage(r io.Reader) (gocoap.Message, error) {
	buf := make([]byte, coap.MaxPacketSize)
	n, err := r.Read(buf)
	if err != nil {
		return gocoap.Message{}, err
	}
	return gocoap.ParseMessage(buf[:n])
}

func PrintMessage(w io.Writer, m gocoap.Message) {
	fmt.Fprintf(w, "%s %s MID=%d Token=%x\n", m.Type, coap.Code(m.Code).Detail(), m.MessageID, m.Token)
	if path := m.PathString(); path != "" {
		fmt.Fprintf(w, "Path: /%s\n", path)
	}
	for _, q := range m.Options(gocoap.URIQuery) {
		fmt.Fprintf(w, "Query: %v\n", q)
	}
	if len(m.Payload) > 0 {
		fmt.Fprintf(w, "\n%s\n", m.Payload)
	}
}

func main() {
	var args Args
	if err := args.Parse(flag.CommandLine, os.Args[1:]); err != nil {
		fmt.Printf("parse args: %v\n", err)
		return
	}

	conn, err := net.Dial("udp", args.Addr)
	if err != nil {
		fmt.Printf("dial: %v\n", err)
		return
	}
	defer conn.Close()

	msg, err := MakeMessage(&args)
	if err != nil {
		fmt.Printf("make message: %v\n", err)
		return
	}

	fmt.Printf("coap server: %v\n", args.Addr)
	PrintMessage(os.Stdout, msg)
	if err = WriteMessage(conn, msg); err != nil {
		fmt.Printf("write message: %v\n", err)
		return
	}

	if args.Read {
		conn.SetReadDeadline(time.Now().Add(args.Timeout))
		rmsg, err := ReadMessage(conn)
		if err != nil {
			fmt.Printf("read message: %v\n", err)
			return
		}
		PrintMessage(os.Stdout, rmsg)
	}
}
