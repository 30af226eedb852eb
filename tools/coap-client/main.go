package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	coap "github.com/ironzhang/go-mcoap"
	"github.com/ironzhang/go-mcoap/internal/config"
)

type Options struct {
	ConfigFile string
	Unicast    string
	Multicast  string
	Window     time.Duration
	Timeout    time.Duration
}

func (o *Options) Parse(fs *flag.FlagSet, args []string) error {
	fs.StringVar(&o.ConfigFile, "config", "", "yaml config file")
	fs.StringVar(&o.Unicast, "unicast", "", "unicast request url, \"-\" to skip")
	fs.StringVar(&o.Multicast, "multicast", "", "multicast request url, \"-\" to skip")
	fs.DurationVar(&o.Window, "window", 0, "multicast collect window")
	fs.DurationVar(&o.Timeout, "timeout", 0, "unicast response timeout")
	fs.IntVar(&coap.Verbose, "verbose", 0, "verbose")
	return fs.Parse(args)
}

// Apply 用命令行参数覆盖配置文件中的取值
func (o *Options) Apply(c *config.Client) {
	if o.Unicast != "" {
		c.Unicast = o.Unicast
	}
	if o.Multicast != "" {
		c.Multicast = o.Multicast
	}
	if o.Window > 0 {
		c.Window = o.Window
	}
	if o.Timeout > 0 {
		c.ResponseTimeout = o.Timeout
	}
}

// Unicast 发送CON GET请求并输出响应
func Unicast(w io.Writer, c *coap.Client, urlstr string) error {
	req, err := coap.NewRequest(true, coap.GET, urlstr, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "unicast GET %s\n", req.URL)
	resp, err := c.Send(req)
	if err != nil {
		fmt.Fprintln(w, "No response received.")
		return err
	}
	coap.PrintResponse(w, resp, true)
	return nil
}

// Multicast 发送NON GET组播请求, 逐个输出收到的响应, 返回响应个数
func Multicast(w io.Writer, c *coap.Client, urlstr string, window time.Duration) (int, error) {
	req, err := coap.NewRequest(false, coap.GET, urlstr, nil)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(w, "multicast GET %s\n", req.URL)
	mc, err := c.StartMulticast(req, window)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		resp, ok := mc.Next()
		if !ok {
			break
		}
		n++
		fmt.Fprintf(w, "response from %v\n", resp.RemoteAddr)
		coap.PrintResponse(w, resp, true)
	}
	if n == 0 {
		fmt.Fprintln(w, "No response received.")
	}
	return n, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var opts Options
	if err := opts.Parse(flag.CommandLine, os.Args[1:]); err != nil {
		fmt.Printf("parse options: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	opts.Apply(&cfg.Client)

	client := &coap.Client{
		Timeout:          cfg.Client.ResponseTimeout,
		MulticastBaseMID: cfg.Client.MulticastBaseMID,
	}
	defer client.Close()

	if cfg.Client.Unicast != "-" {
		if err = Unicast(os.Stdout, client, cfg.Client.Unicast); err != nil {
			log.Printf("unicast: %v", err)
		}
	}
	if cfg.Client.Multicast != "-" {
		if _, err = Multicast(os.Stdout, client, cfg.Client.Multicast, cfg.Client.Window); err != nil {
			log.Printf("multicast: %v", err)
		}
	}
}
