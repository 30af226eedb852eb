// Package coaputil holds flag helpers shared by the command line tools.
package coaputil

import (
	"net/url"
	"strings"
)

// StringsValue 可重复指定的字符串参数, 实现了flag.Value接口
type StringsValue []string

func (p *StringsValue) Set(s string) error {
	*p = append(*p, s)
	return nil
}

func (p *StringsValue) String() string {
	return strings.Join(*p, ",")
}

// AppendQuery 将key=value形式的查询参数追加到url上
func AppendQuery(urlstr string, queries []string) (string, error) {
	if len(queries) <= 0 {
		return urlstr, nil
	}
	u, err := url.Parse(urlstr)
	if err != nil {
		return "", err
	}
	q := u.RawQuery
	for _, s := range queries {
		if q != "" {
			q += "&"
		}
		q += s
	}
	u.RawQuery = q
	return u.String(), nil
}
