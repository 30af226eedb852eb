// Package config loads the server and client configuration from a YAML file.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	coap "github.com/ironzhang/go-mcoap"
)

// Multicast 组播监听参数
type Multicast struct {
	Group     string `yaml:"group"`
	Interface string `yaml:"interface"`
}

// Server 服务端参数.
//
// 组播监听同时处理该端口上的单播请求, 所以Listen只需列出其它地址.
type Server struct {
	Listen    []string  `yaml:"listen"`
	Multicast Multicast `yaml:"multicast"`
	HelloID   int       `yaml:"hello_id"`
	Seed      int64     `yaml:"seed"`
	Admin     string    `yaml:"admin"`
}

// Client 客户端参数
type Client struct {
	Unicast          string        `yaml:"unicast"`
	Multicast        string        `yaml:"multicast"`
	Window           time.Duration `yaml:"window"`
	ResponseTimeout  time.Duration `yaml:"response_timeout"`
	MulticastBaseMID uint16        `yaml:"multicast_base_mid"`
}

type Config struct {
	Server Server `yaml:"server"`
	Client Client `yaml:"client"`
}

// Default 返回默认配置
func Default() Config {
	group := net.JoinHostPort(coap.MulticastIPv4, strconv.Itoa(coap.DefaultPort))
	return Config{
		Server: Server{
			Multicast: Multicast{
				Group: group,
			},
			HelloID: -1,
		},
		Client: Client{
			Unicast:          fmt.Sprintf("coap://127.0.0.1:%d/helloWorld", coap.DefaultPort),
			Multicast:        fmt.Sprintf("coap://%s/helloWorld", group),
			Window:           coap.DefaultWindow,
			ResponseTimeout:  coap.ResponseTimeout,
			MulticastBaseMID: coap.MulticastBaseMID,
		},
	}
}

// Load 读取配置文件, 文件中未出现的字段保留默认值. 文件不存在时返回默认配置.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, errors.Wrapf(err, "read config %q", path)
	}
	if err = yaml.Unmarshal(data, &c); err != nil {
		return c, errors.Wrapf(err, "parse config %q", path)
	}
	if err = c.Validate(); err != nil {
		return c, errors.Wrapf(err, "config %q", path)
	}
	return c, nil
}

// Save 将配置写入文件
func Save(path string, c Config) error {
	data, err := yaml.Marshal(&c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err = os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "write config %q", path)
	}
	return nil
}

// Validate 检查配置取值
func (c Config) Validate() error {
	if c.Client.Window < 0 {
		return errors.Errorf("negative client window %v", c.Client.Window)
	}
	if c.Client.ResponseTimeout < 0 {
		return errors.Errorf("negative client response timeout %v", c.Client.ResponseTimeout)
	}
	if c.Client.MulticastBaseMID == 0 {
		return errors.New("client multicast base mid must be positive")
	}
	return nil
}
