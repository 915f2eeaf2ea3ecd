package httpclient

import (
	"net/http"
	"time"
)

const (
	maxIdleConns        = 50
	maxIdleConnsPerHost = 25
	idleConnTimeout     = 60 * time.Second
)

// NewPooled returns a client with a connection-reusing transport for
// the external text-recognition service.
func NewPooled(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
		},
	}
}
