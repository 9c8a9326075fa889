package source

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
)

const defaultFetchTimeout = 10 * time.Second

// Source yields the samples driving the twin, one per simulation step.
// Next returns io.EOF once a finite source is exhausted.
type Source interface {
	Next(ctx context.Context) (types.Sample, error)
	Close() error
}

// New returns the Source for cfg.
func New(cfg config.SourceConfig) (Source, error) {
	switch cfg.Type {
	case "csv":
		return openCSV(cfg.Path)
	case "prometheus":
		client, err := buildHTTPClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("source %q: build http client: %w", cfg.Endpoint, err)
		}
		return newPromSource(cfg, client), nil
	default:
		return nil, fmt.Errorf("source: unsupported type %q", cfg.Type)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the exporter's auth and TLS
// settings.
func buildHTTPClient(cfg config.SourceConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if cfg.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(cfg.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	timeout := defaultFetchTimeout
	if cfg.Interval > 0 && cfg.Interval < timeout {
		timeout = cfg.Interval
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: cfg.Auth,
		},
		Timeout: timeout,
	}, nil
}
