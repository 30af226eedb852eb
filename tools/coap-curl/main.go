package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	coap "github.com/ironzhang/go-mcoap"
	"github.com/ironzhang/go-mcoap/tools/coaputil"
)

type Options struct {
	Confirmable bool
	Multicast   bool
	Window      time.Duration
	Timeout     time.Duration
	Queries     coaputil.StringsValue
	Data        string
	InFile      string
	OutFile     string
	Method      coap.Code
	URL         string
}

// usage
// coap-curl -X PUT -con --data 'true' coap://localhost/toggle
// coap-curl -multicast -window 3s coap://224.0.1.187/helloWorld
func (a *Options) Parse(fs *flag.FlagSet, args []string) error {
	var err error
	var method string

	fs.BoolVar(&a.Confirmable, "con", false, "confirmable")
	fs.BoolVar(&a.Multicast, "multicast", false, "send a NON request to a multicast group and collect every response")
	fs.DurationVar(&a.Window, "window", coap.DefaultWindow, "multicast collect window")
	fs.DurationVar(&a.Timeout, "timeout", coap.ResponseTimeout, "unicast response timeout")
	fs.Var(&a.Queries, "query", "uri query, key=value")
	fs.StringVar(&a.Data, "data", "", "data")
	fs.StringVar(&a.InFile, "in-file", "", "in file")
	fs.StringVar(&a.OutFile, "out-file", "", "out file")
	fs.StringVar(&method, "X", "GET", "method")
	fs.IntVar(&coap.Verbose, "verbose", 0, "verbose")
	if err = fs.Parse(args); err != nil {
		return err
	}

	a.Method, err = coap.ParseMethod(method)
	if err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("no url")
	}
	a.URL = fs.Arg(0)

	return nil
}

func MakePayload(data string, infile string) (payload []byte, err error) {
	if data != "" {
		return []byte(data), nil
	} else if infile != "" {
		payload, err = os.ReadFile(infile)
		if err != nil {
			return nil, err
		}
		return payload, nil
	}
	return nil, nil
}

func MakeRequest(a *Options) (*coap.Request, error) {
	payload, err := MakePayload(a.Data, a.InFile)
	if err != nil {
		return nil, err
	}
	urlstr, err := coaputil.AppendQuery(a.URL, a.Queries)
	if err != nil {
		return nil, err
	}
	req, err := coap.NewRequest(a.Confirmable && !a.Multicast, a.Method, urlstr, payload)
	if err != nil {
		return nil, err
	}
	req.Timeout = a.Timeout
	return req, nil
}

func multicast(req *coap.Request, window time.Duration) {
	mc, err := coap.DefaultClient.StartMulticast(req, window)
	if err != nil {
		fmt.Printf("start multicast: %v\n", err)
		return
	}
	n := 0
	for {
		resp, ok := mc.Next()
		if !ok {
			break
		}
		n++
		coap.PrintResponse(os.Stdout, resp, true)
	}
	fmt.Printf("%d responses\n", n)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var opts Options
	err := opts.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Printf("parse options: %v\n", err)
		flag.Usage()
		return
	}

	req, err := MakeRequest(&opts)
	if err != nil {
		fmt.Printf("make request: %v\n", err)
		return
	}
	coap.PrintRequest(os.Stdout, req, true)

	if opts.Multicast {
		multicast(req, opts.Window)
		return
	}

	resp, err := coap.DefaultClient.SendRequest(req)
	if err != nil {
		fmt.Printf("send request: %v\n", err)
		return
	}
	coap.PrintResponse(os.Stdout, resp, true)

	if opts.OutFile != "" {
		if err = os.WriteFile(opts.OutFile, resp.Payload, 0664); err != nil {
			fmt.Printf("write file: %v\n", err)
		}
	}
}
