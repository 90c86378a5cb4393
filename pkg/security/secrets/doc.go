// Package secrets resolves ${secret:name} references in configuration
// values.
//
// Secrets are looked up in a mounted directory (one file per secret) and
// then in environment variables. Resolved values are cached for a bounded
// time. Only the fields that carry credentials are expanded:
//
//   - audit.postgres.dsn
//   - policy.git.auth.token
//   - policy.git.auth.ssh_key_passphrase
//
// Example:
//
//	audit:
//	  postgres:
//	    dsn: "postgres://covenant:${secret:db-password}@db:5432/audit"
//
// with COVENANT_SECRET_DB_PASSWORD set, or a file named db-password under
// secrets.directory.
package secrets
