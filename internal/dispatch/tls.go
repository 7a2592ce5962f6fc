package dispatch

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"github.com/studiowebux/postdad/internal/types"
)

// Environment variables consumed at the transport boundary. These are
// owned by the dispatcher and deliberately outside the {{variable}}
// system. Proxy settings use the standard HTTP_PROXY/HTTPS_PROXY/
// NO_PROXY variables via http.ProxyFromEnvironment.
const (
	EnvCACert     = "POSTDAD_CA_CERT"
	EnvClientCert = "POSTDAD_CLIENT_CERT"
	EnvClientKey  = "POSTDAD_CLIENT_KEY"
	EnvInsecure   = "POSTDAD_INSECURE"
)

// TLSFromEnv reads the transport TLS settings from the process
// environment. Returns nil when nothing is configured.
func TLSFromEnv() *types.TLSConfig {
	cfg := &types.TLSConfig{
		CAFile:             os.Getenv(EnvCACert),
		CertFile:           os.Getenv(EnvClientCert),
		KeyFile:            os.Getenv(EnvClientKey),
		InsecureSkipVerify: os.Getenv(EnvInsecure) == "1" || os.Getenv(EnvInsecure) == "true",
	}
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && !cfg.InsecureSkipVerify {
		return nil
	}
	return cfg
}

// buildTLSConfig turns the transport TLS settings into a tls.Config,
// loading the client pair for mTLS and the custom CA when present.
func buildTLSConfig(tlsConfig *types.TLSConfig) (*tls.Config, error) {
	if tlsConfig == nil {
		return nil, nil
	}

	cfg := &tls.Config{
		InsecureSkipVerify: tlsConfig.InsecureSkipVerify,
	}

	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if tlsConfig.CAFile != "" {
		caCert, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// buildHTTPClient creates the client used for one dispatch, with the
// standard proxy environment honored and the TLS settings applied.
func buildHTTPClient(tlsConfig *types.TLSConfig) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	tlsCfg, err := buildTLSConfig(tlsConfig)
	if err != nil {
		return nil, err
	}
	transport.TLSClientConfig = tlsCfg

	// The per-dispatch deadline comes from the request context, so
	// no client-level timeout here.
	return &http.Client{Transport: transport}, nil
}
