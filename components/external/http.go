/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package external

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/net/proxy"
)

// HttpConfiguration 远程调用的HTTP配置
type HttpConfiguration struct {
	//ReadTimeoutMs 读取超时，单位毫秒，0表示不限制
	ReadTimeoutMs int
	//InsecureSkipVerify 是否跳过证书验证
	InsecureSkipVerify bool
	//MaxParallelRequestsCount 每个主机最大并发连接数，0表示不限制
	MaxParallelRequestsCount int
	//EnableProxy 是否开启代理
	EnableProxy bool
	//UseSystemProxyProperties 使用系统配置代理
	UseSystemProxyProperties bool
	//ProxyScheme 代理协议 http、https或socks5
	ProxyScheme string
	ProxyHost   string
	ProxyPort   int
	ProxyUser   string
	//ProxyPassword 代理密码
	ProxyPassword string
}

// NewHttpClient 创建http客户端
func NewHttpClient(config HttpConfiguration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify}
	transport.MaxConnsPerHost = config.MaxParallelRequestsCount

	if config.EnableProxy {
		if config.UseSystemProxyProperties {
			if proxyURL := HttpUtils.GetSystemProxy(); proxyURL != nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		} else if proxyURL := HttpUtils.BuildProxyURL(config.ProxyScheme, config.ProxyHost, config.ProxyPort,
			config.ProxyUser, config.ProxyPassword); proxyURL != nil {
			if config.ProxyScheme == "socks5" {
				transport.Proxy = nil
				transport.Dial = HttpUtils.CreateSOCKS5Dialer(proxyURL)
			} else {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}
	return &http.Client{Transport: transport,
		Timeout: time.Duration(config.ReadTimeoutMs) * time.Millisecond}
}

// HttpUtils 全局HttpUtils实例
var HttpUtils = &httpUtils{}

type httpUtils struct{}

// GetSystemProxy 获取环境变量中的代理设置
func (h *httpUtils) GetSystemProxy() *url.URL {
	for _, env := range []string{"HTTP_PROXY", "http_proxy", "HTTPS_PROXY", "https_proxy"} {
		if proxyStr := os.Getenv(env); proxyStr != "" {
			if proxyURL, err := url.Parse(proxyStr); err == nil {
				return proxyURL
			}
		}
	}
	return nil
}

// BuildProxyURL returns nil when scheme, host or port is missing.
func (h *httpUtils) BuildProxyURL(scheme, host string, port int, user, password string) *url.URL {
	if scheme == "" || host == "" || port == 0 {
		return nil
	}
	u := &url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, port)}
	if user != "" && password != "" {
		u.User = url.UserPassword(user, password)
	}
	return u
}

// CreateSOCKS5Dialer 创建SOCKS5拨号器
func (h *httpUtils) CreateSOCKS5Dialer(proxyURL *url.URL) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		var auth *proxy.Auth
		if proxyURL.User != nil {
			if password, ok := proxyURL.User.Password(); ok {
				auth = &proxy.Auth{
					User:     proxyURL.User.Username(),
					Password: password,
				}
			}
		}
		dialer, err := proxy.SOCKS5(network, proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return nil, err
		}
		return dialer.Dial(network, addr)
	}
}
