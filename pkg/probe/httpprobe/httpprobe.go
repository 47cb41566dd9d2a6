package httpprobe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

type Settings struct {
	Timeout       time.Duration `json:"timeout"`
	Path          string        `json:"path"`
	Scheme        string        `json:"scheme"`
	Method        string        `json:"method"`
	Headers       http.Header   `json:"-"`
	TLSServerName string        `json:"-"`
	TLSSkipVerify bool          `json:"-"`
}

// HTTPProbe considers a replica alive on any 2xx response.
type HTTPProbe struct {
	client *http.Client
	req    *http.Request
}

func New(settings *Settings, addr string) (*HTTPProbe, error) {
	transport := http.Transport{
		DisableKeepAlives: true,
	}
	targetUrl := url.URL{
		Scheme: settings.Scheme,
		Path:   settings.Path,
		Host:   addr,
	}
	if targetUrl.Scheme == "" {
		targetUrl.Scheme = "http"
	}
	if settings.Timeout == 0 {
		settings.Timeout = time.Second
	}
	if targetUrl.Scheme == "https" {
		tlsConfig := new(tls.Config)
		tlsConfig.InsecureSkipVerify = settings.TLSSkipVerify
		tlsConfig.ServerName = settings.TLSServerName

		transport.TLSClientConfig = tlsConfig
		transport.TLSHandshakeTimeout = settings.Timeout
	}
	clnt := http.Client{
		Timeout:   settings.Timeout,
		Transport: &transport,
	}
	method := http.MethodGet
	if settings.Method != "" {
		method = settings.Method
	}
	req, err := http.NewRequest(method, targetUrl.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to form http initial request for probe: %w", err)
	}
	if settings.Headers != nil {
		req.Header = settings.Headers
	}
	return &HTTPProbe{
		req:    req,
		client: &clnt,
	}, nil
}

func (p *HTTPProbe) Probe(ctx context.Context) error {
	resp, err := p.client.Do(p.req.Clone(ctx))
	if err != nil {
		return fmt.Errorf("request do error: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		return nil
	}
	log.Debug().Msgf("[http-probe]: invalid status code = %d", resp.StatusCode)
	return fmt.Errorf("invalid status code: %d", resp.StatusCode)
}
