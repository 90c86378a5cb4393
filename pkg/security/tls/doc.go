// Package tls builds the server's crypto/tls configuration from
// config.TLSConfig.
//
// Certificates are served through a CertificateReloader, which checks the
// certificate and key files on an interval and swaps in a renewed pair
// without restarting the server. A pair that fails to load or has expired
// is logged and the previous certificate stays in use.
//
// Only TLS 1.2 and 1.3 are accepted. Cipher suites apply to TLS 1.2; Go
// does not allow TLS 1.3 suites to be configured.
package tls
