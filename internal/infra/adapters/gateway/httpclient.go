package gateway

import (
	"net"
	"net/http"
	"time"
)

// newTransport returns the pooled transport shared by the API and stream clients.
func newTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// newClients builds a bounded client for request/response calls and an
// unbounded one for event streams, which end on their own terms.
func newClients(timeout time.Duration) (api, stream *http.Client) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := newTransport(timeout)
	return &http.Client{Timeout: timeout, Transport: tr}, &http.Client{Transport: tr}
}
