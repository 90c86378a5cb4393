package tls

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"mercator-hq/covenant/pkg/config"
)

// secure TLS 1.2 suites accepted in cipher_suites.
var cipherSuites = map[string]uint16{
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// ServerConfig builds a tls.Config serving certificates from a reloader.
// The returned reloader has not loaded anything yet; call Start before
// accepting connections. Disabled TLS returns nil, nil, nil.
func ServerConfig(cfg *config.TLSConfig, logger *slog.Logger) (*tls.Config, *CertificateReloader, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil, nil
	}
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, nil, fmt.Errorf("cert_file and key_file are required when TLS is enabled")
	}
	version, err := parseVersion(cfg.MinVersion)
	if err != nil {
		return nil, nil, err
	}
	suites, err := parseCipherSuites(cfg.CipherSuites)
	if err != nil {
		return nil, nil, err
	}

	reloader := NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval, logger)
	return &tls.Config{
		MinVersion:     version,
		CipherSuites:   suites,
		GetCertificate: reloader.GetCertificate,
	}, reloader, nil
}

func parseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.3":
		return tls.VersionTLS13, nil
	case "1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS min_version %q (1.2, 1.3)", v)
	}
}

func parseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]uint16, 0, len(names))
	for _, n := range names {
		id, ok := cipherSuites[n]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", n)
		}
		out = append(out, id)
	}
	return out, nil
}
