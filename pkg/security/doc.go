// Package security groups the transport and credential helpers used by
// covenant:
//
//   - tls: HTTPS configuration for the server with certificate reload
//   - secrets: ${secret:name} resolution for credential config fields
package security
