package httpclient

import (
	"context"
	"crypto/tls"
	"ecommerce/pkg/config"
	"io"
	"net"
	"net/http"
	"time"
)

// HTTPClient исходящие запросы к внешним платформам
type HTTPClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client общий пул соединений к внешним платформам.
// Запрос без собственного дедлайна ограничивается requestTimeout, тело по умолчанию JSON.
type Client struct {
	http           *http.Client
	pool           *http.Transport
	userAgent      string
	requestTimeout time.Duration
}

func NewClient(cfg config.HTTPClient, requestTimeout time.Duration) *Client {
	pool := newPool(cfg)
	return &Client{
		http:           &http.Client{Transport: pool, Timeout: cfg.ClientTimeout},
		pool:           pool,
		userAgent:      cfg.UserAgent,
		requestTimeout: requestTimeout,
	}
}

func newPool(cfg config.HTTPClient) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	pool := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		DisableKeepAlives:     !cfg.KeepAlives,
		ForceAttemptHTTP2:     true,
	}
	// стенды платформы с самоподписанными сертификатами
	if cfg.InsecureSkipVerify {
		pool.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return pool
}

// Do дедлайн, выставленный клиентом, живёт до закрытия тела ответа
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok && c.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
	}

	req = req.WithContext(ctx)
	c.setDefaultHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) setDefaultHeaders(req *http.Request) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Body != nil && req.Body != http.NoBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
}

func (c *Client) CloseIdle() { c.pool.CloseIdleConnections() }

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
