package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	coap "github.com/ironzhang/go-mcoap"
	"github.com/ironzhang/go-mcoap/internal/admin"
	"github.com/ironzhang/go-mcoap/internal/config"
	"github.com/ironzhang/go-mcoap/resources"
	"github.com/ironzhang/go-mcoap/tools/coaputil"
)

type Options struct {
	ConfigFile  string
	WriteConfig bool
	Listen      coaputil.StringsValue
	Group       string
	Interface   string
	NoMulticast bool
	HelloID     int
	Seed        int64
	Admin       string
}

func (o *Options) Parse(fs *flag.FlagSet, args []string) error {
	fs.StringVar(&o.ConfigFile, "config", "", "yaml config file")
	fs.BoolVar(&o.WriteConfig, "write-config", false, "write the effective config to -config and exit")
	fs.Var(&o.Listen, "listen", "unicast listen address, repeatable")
	fs.StringVar(&o.Group, "group", "", "multicast group address")
	fs.StringVar(&o.Interface, "interface", "", "multicast interface name")
	fs.BoolVar(&o.NoMulticast, "no-multicast", false, "do not join the multicast group")
	fs.IntVar(&o.HelloID, "id", -2, "hello resource id, -1 for random")
	fs.Int64Var(&o.Seed, "seed", 0, "random seed, 0 for time based")
	fs.StringVar(&o.Admin, "admin", "", "admin http listen address")
	fs.IntVar(&coap.Verbose, "verbose", coap.Verbose, "verbose")
	return fs.Parse(args)
}

// Apply 用命令行参数覆盖配置文件中的取值
func (o *Options) Apply(c *config.Config) {
	if len(o.Listen) > 0 {
		c.Server.Listen = []string(o.Listen)
	}
	if o.Group != "" {
		c.Server.Multicast.Group = o.Group
	}
	if o.Interface != "" {
		c.Server.Multicast.Interface = o.Interface
	}
	if o.NoMulticast {
		c.Server.Multicast.Group = ""
	}
	if o.HelloID >= -1 {
		c.Server.HelloID = o.HelloID
	}
	if o.Seed != 0 {
		c.Server.Seed = o.Seed
	}
	if o.Admin != "" {
		c.Server.Admin = o.Admin
	}
	if len(c.Server.Listen) <= 0 && c.Server.Multicast.Group == "" {
		c.Server.Listen = []string{fmt.Sprintf(":%d", coap.DefaultPort)}
	}
}

// NewRegistry 创建服务端提供的资源
func NewRegistry(c config.Server) (*coap.Registry, error) {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	id := c.HelloID
	if id < 0 {
		id = rand.New(rand.NewSource(seed)).Intn(1000)
	}

	reg := coap.NewRegistry()
	for _, res := range []coap.Resource{
		resources.NewHello(id),
		resources.NewToggle("toggle", "Toggle Resource", false),
		resources.NewText("text", "Text Resource", ""),
		resources.NewClock("time", "Clock Resource", nil),
	} {
		if err := reg.Register(res); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Listen 绑定配置中的所有单播地址与组播组. 任一地址绑定失败时关闭已绑定的连接并返回错误.
func Listen(c config.Server) (conns []*net.UDPConn, err error) {
	defer func() {
		if err != nil {
			for _, conn := range conns {
				conn.Close()
			}
			conns = nil
		}
	}()
	for _, addr := range c.Listen {
		conn, err := coap.ListenUDP("udp", addr)
		if err != nil {
			return conns, errors.Wrapf(err, "listen %q", addr)
		}
		conns = append(conns, conn)
	}
	if group := c.Multicast.Group; group != "" {
		conn, err := coap.ListenMulticastUDP(group, c.Multicast.Interface)
		if err != nil {
			return conns, errors.Wrapf(err, "multicast %q", group)
		}
		conns = append(conns, conn)
	}
	return conns, nil
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
	opts.Apply(&cfg)
	if opts.WriteConfig {
		if opts.ConfigFile == "" {
			log.Fatalf("write config: no -config file")
		}
		if err = config.Save(opts.ConfigFile, cfg); err != nil {
			log.Fatalf("write config: %v", err)
		}
		return
	}

	reg, err := NewRegistry(cfg.Server)
	if err != nil {
		log.Fatalf("new registry: %v", err)
	}

	var wg sync.WaitGroup
	serve := func(name string, f func() error, failed func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(); err != nil {
				log.Printf("%s: %v", name, err)
				failed()
			}
		}()
	}

	var as *admin.Server
	if cfg.Server.Admin != "" {
		as = admin.New(cfg.Server.Admin, reg)
		serve("admin", as.ListenAndServe, func() {})
	}

	conns, err := Listen(cfg.Server)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	srv := &coap.Server{Handler: reg}
	notReady := func() {
		if as != nil {
			as.SetReady(false)
		}
	}
	// 所有地址已绑定; 之后任一连接服务失败都会撤销就绪状态
	if as != nil {
		as.SetReady(true)
	}
	for _, conn := range conns {
		conn := conn
		log.Printf("serve on %v", conn.LocalAddr())
		serve("serve "+conn.LocalAddr().String(), func() error { return srv.Serve(conn) }, notReady)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	log.Printf("receive signal %v, shutting down", <-sigc)

	if as != nil {
		as.SetReady(false)
		as.Close()
	}
	srv.Close()
	wg.Wait()
}
