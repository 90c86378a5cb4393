// Package export writes audit trail snapshots as JSON or CSV.
package export
