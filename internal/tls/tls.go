package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	tlsCrt = "tls.crt"
	tlsKey = "tls.key"
)

// Config selects the certificate for the HTTP API. Explicit files win over Dir;
// with AutoGenerate a self-signed pair is created in Dir when missing.
type Config struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file,omitempty" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file,omitempty" mapstructure:"key_file"`
	Dir          string   `toml:"dir,omitempty" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	Hosts        []string `toml:"hosts,omitempty" mapstructure:"hosts"`
	MinVersion   string   `toml:"min_version,omitempty" mapstructure:"min_version"`
}

// parseTLSVersion parses a version string; unknown values fall back to TLS 1.2.
func parseTLSVersion(ver string) uint16 {
	switch ver {
	case "1.3", "TLS1.3", "tls1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// Setup returns the server TLS configuration, or nil when TLS is disabled.
func Setup(cfg Config) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	certPath, keyPath := cfg.CertFile, cfg.KeyFile
	if certPath == "" || keyPath == "" {
		if cfg.Dir == "" {
			return nil, errors.New("TLS enabled but no cert_file/key_file or dir configured")
		}
		certPath = filepath.Join(cfg.Dir, tlsCrt)
		keyPath = filepath.Join(cfg.Dir, tlsKey)
		if cfg.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := generate(cfg, certPath, keyPath); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generate(cfg Config, certPath, keyPath string) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   hosts[0],
		Organization: "procwatch",
		Hosts:        hosts,
		NotAfter:     time.Now().AddDate(1, 0, 0),
		CertPath:     certPath,
		KeyPath:      keyPath,
	})
}
