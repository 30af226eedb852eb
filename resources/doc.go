// Package resources provides the resources served by the coap-server tool.
//
// Each resource declares the methods it supports by implementing the
// capability interfaces of package coap (Getter, Putter, Deleter). State is
// kept in memory for the lifetime of the process and guarded per resource,
// so concurrent writes to one resource are serialised while different
// resources are served in parallel.
package resources
