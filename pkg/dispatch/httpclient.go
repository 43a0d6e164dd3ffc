// Package dispatch implements the execution dispatcher: it turns a
// ToolRecord and an MCP tools/call arguments object into an upstream HTTP
// request, issues it with a bounded timeout, and maps the response back
// into an MCP CallToolResult.
package dispatch

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kong-mcp/bridge/pkg/config"
)

// clientCache builds one *http.Client per ClientTLSConfig pointer and
// caches it; a single bridge instance may dispatch to upstreams with
// different trust requirements.
type clientCache struct {
	mu      sync.Mutex
	clients map[*config.ClientTLSConfig]*http.Client
}

func newClientCache() *clientCache {
	return &clientCache{clients: make(map[*config.ClientTLSConfig]*http.Client)}
}

func (c *clientCache) get(tlsCfg *config.ClientTLSConfig) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[tlsCfg]; ok {
		return client, nil
	}

	client, err := buildHTTPClient(tlsCfg)
	if err != nil {
		return nil, err
	}
	c.clients[tlsCfg] = client
	return client, nil
}

// buildHTTPClient returns a basic client when tlsCfg is nil (nil Transport
// means http.DefaultTransport is used implicitly), or one whose cloned
// default transport carries a custom TLS trust store otherwise.
func buildHTTPClient(tlsCfg *config.ClientTLSConfig) (*http.Client, error) {
	if tlsCfg == nil {
		return &http.Client{}, nil
	}

	tc, err := buildTLSConfig(tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build tls config: %w", err)
	}

	defaultTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("http.DefaultTransport is not *http.Transport; cannot apply custom TLS config")
	}
	transport := defaultTransport.Clone()
	transport.TLSClientConfig = tc

	return &http.Client{Transport: transport}, nil
}

func buildTLSConfig(c *config.ClientTLSConfig) (*tls.Config, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}

	for _, certFile := range c.CACertFiles {
		if err := appendCertFromFile(rootCAs, certFile); err != nil {
			return nil, fmt.Errorf("failed to load CA cert from %s: %w", certFile, err)
		}
	}

	if c.CACertDir != "" {
		if err := appendCertsFromDir(rootCAs, c.CACertDir); err != nil {
			return nil, fmt.Errorf("failed to load CA certs from directory %s: %w", c.CACertDir, err)
		}
	}

	return &tls.Config{
		RootCAs:            rootCAs,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // operator explicitly opted in via config
	}, nil
}

func appendCertFromFile(pool *x509.CertPool, certFile string) error {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return fmt.Errorf("failed to read certificate file: %w", err)
	}
	if !pool.AppendCertsFromPEM(certPEM) {
		return fmt.Errorf("failed to parse certificate from %s", certFile)
	}
	return nil
}

// appendCertsFromDir is lenient: files without a .pem or .crt extension
// are ignored, and unreadable or unparseable ones are skipped with a
// warning rather than failing the whole load.
func appendCertsFromDir(pool *x509.CertPool, dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".pem" && ext != ".crt" {
			continue
		}
		certPath := filepath.Join(dirPath, entry.Name())
		if err := appendCertFromFile(pool, certPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping CA cert %s: %v\n", certPath, err)
		}
	}

	return nil
}
