package coap

import "time"

// CoAP协议参数
var (
	DefaultPort      = 5683
	MulticastIPv4    = "224.0.1.187"
	MaxPacketSize    = 1500
	MulticastBaseMID = uint16(65000)
)

// 传输超时
var (
	// ResponseTimeout 单播请求等待响应的超时时间, 不做重传
	ResponseTimeout = 2 * time.Second

	// DefaultWindow 组播响应收集的静默窗口
	DefaultWindow = 2 * time.Second

	EXCHANGE_LIFETIME = 247 * time.Second
	NON_LIFETIME      = 145 * time.Second
)

// Verbose 日志级别: 0 静默, 1 状态变化与错误, 2 每条消息
var Verbose = 1
