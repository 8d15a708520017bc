// Package http builds the outbound HTTP transport for olbridge, including
// proxy support and HTTP/2 configuration.
package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/http2"

	"github.com/olbridge/olbridge/internal/config"
)

const (
	dialTimeout           = 30 * time.Second
	dialKeepAlive         = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
	tlsHandshakeTimeout   = 30 * time.Second
	expectContinueTimeout = 5 * time.Second
)

// NewClient configures an HTTP client from the proxy settings in cfg.
// The client has no overall timeout; callers bound operations via context.
func NewClient(cfg *config.Config) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: dialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		ForceAttemptHTTP2:     true,
	}
	_ = http2.ConfigureTransport(transport)

	// Proxies often mishandle HTTP/2 multiplexing; prefer HTTP/1.1 there.
	proxyActive := false

	switch strings.ToLower(cfg.Proxy.Mode) {
	case "no-proxy", "":
		transport.Proxy = nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment
		proxyActive = os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""

	case "ntlm":
		if cfg.Proxy.Host == "" {
			// Incomplete saved config; run direct so the user can fix it.
			transport.Proxy = nil
			break
		}
		proxyActive = true
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.Proxy.NoProxy)
		disableHTTP2(transport)
		return &nethttp.Client{
			Transport: ntlmssp.Negotiator{RoundTripper: transport},
		}, nil

	case "basic":
		if cfg.Proxy.Host == "" {
			transport.Proxy = nil
			break
		}
		proxyActive = true
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.Proxy.NoProxy)

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.Proxy.Mode)
	}

	if proxyActive {
		disableHTTP2(transport)
	}

	return &nethttp.Client{Transport: transport}, nil
}

func disableHTTP2(tr *nethttp.Transport) {
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
}

// buildProxyURL constructs a proxy URL from config.
func buildProxyURL(cfg *config.Config) *url.URL {
	port := cfg.Proxy.Port
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", cfg.Proxy.Host, port),
	}

	// Only embed credentials when both parts are present; an empty password
	// in the URL causes auth failures with some proxies.
	if cfg.Proxy.User != "" && cfg.Proxy.Password != "" {
		proxyURL.User = url.UserPassword(cfg.Proxy.User, cfg.Proxy.Password)
	}

	return proxyURL
}

// proxyFuncWithBypass returns a proxy function that respects the no_proxy
// bypass list. With an empty list it behaves identically to nethttp.ProxyURL.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	proxyCfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := proxyCfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		return proxyFunc(req.URL)
	}
}
