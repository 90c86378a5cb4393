package tls

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/covenant/pkg/config"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// writePair writes a self-signed certificate and key, stamping both files
// with mtime.
func writePair(t *testing.T, dir, cn string, notBefore, notAfter, mtime time.Time) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	for path, data := range map[string][]byte{certFile: certPEM, keyFile: keyPEM} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	return certFile, keyFile
}

func TestServerConfig(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writePair(t, dir, "covenant", now.Add(-time.Hour), now.Add(365*24*time.Hour), now)

	tests := []struct {
		name    string
		cfg     *config.TLSConfig
		nilConf bool
		version uint16
		suites  int
		wantErr bool
	}{
		{name: "nil", cfg: nil, nilConf: true},
		{name: "disabled", cfg: &config.TLSConfig{}, nilConf: true},
		{name: "defaults", cfg: &config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}, version: tls.VersionTLS13},
		{
			name:    "tls12 with suites",
			cfg:     &config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.2", CipherSuites: []string{"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"}},
			version: tls.VersionTLS12,
			suites:  1,
		},
		{name: "missing key", cfg: &config.TLSConfig{Enabled: true, CertFile: certFile}, wantErr: true},
		{name: "old version", cfg: &config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.0"}, wantErr: true},
		{name: "unknown suite", cfg: &config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, CipherSuites: []string{"TLS_RSA_WITH_RC4_128_SHA"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, reloader, err := ServerConfig(tt.cfg, quiet)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.nilConf {
				if conf != nil || reloader != nil {
					t.Errorf("got config for disabled TLS")
				}
				return
			}
			if conf.MinVersion != tt.version {
				t.Errorf("MinVersion = %x, want %x", conf.MinVersion, tt.version)
			}
			if len(conf.CipherSuites) != tt.suites {
				t.Errorf("CipherSuites = %v, want %d", conf.CipherSuites, tt.suites)
			}
			if err := reloader.Load(); err != nil {
				t.Fatalf("Load: %v", err)
			}
			cert, err := conf.GetCertificate(&tls.ClientHelloInfo{})
			if err != nil || cert == nil {
				t.Errorf("GetCertificate = %v, %v", cert, err)
			}
		})
	}
}

func TestValidateCertificate(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	certFile, keyFile := writePair(t, dir, "expired", now.Add(-48*time.Hour), now.Add(-24*time.Hour), now)
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateCertificate(&pair, now); err == nil {
		t.Error("expired certificate accepted")
	}
	if _, err := ValidateCertificate(&pair, now.Add(-36*time.Hour)); err != nil {
		t.Errorf("certificate rejected inside its validity window: %v", err)
	}
	if _, err := ValidateCertificate(&pair, now.Add(-72*time.Hour)); err == nil {
		t.Error("not-yet-valid certificate accepted")
	}
	if _, err := ValidateCertificate(&tls.Certificate{}, now); err == nil {
		t.Error("empty chain accepted")
	}

	leaf, _ := x509.ParseCertificate(pair.Certificate[0])
	if !ExpiresSoon(leaf, now.Add(-36*time.Hour)) {
		t.Error("certificate a day from expiry not reported as expiring soon")
	}
}

func TestCertificateReloader(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	year := 365 * 24 * time.Hour

	certFile, keyFile := writePair(t, dir, "first", now.Add(-time.Hour), now.Add(year), now.Add(-time.Hour))
	r := NewCertificateReloader(certFile, keyFile, 0, quiet)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := r.Certificate()

	if r.Check() {
		t.Error("Check reloaded unchanged files")
	}

	writePair(t, dir, "second", now.Add(-time.Hour), now.Add(year), now)
	if !r.Check() {
		t.Fatal("Check did not reload changed files")
	}
	second := r.Certificate()
	if bytes.Equal(first.Certificate[0], second.Certificate[0]) {
		t.Error("certificate not replaced")
	}

	writePair(t, dir, "expired", now.Add(-48*time.Hour), now.Add(-24*time.Hour), now.Add(time.Hour))
	if r.Check() {
		t.Error("expired replacement accepted")
	}
	if !bytes.Equal(r.Certificate().Certificate[0], second.Certificate[0]) {
		t.Error("previous certificate not kept after failed reload")
	}

	missing := NewCertificateReloader(filepath.Join(dir, "none.crt"), keyFile, 0, quiet)
	if err := missing.Start(context.Background()); err == nil {
		t.Error("Start succeeded without a certificate file")
	}
}
