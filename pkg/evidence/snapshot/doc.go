// Package snapshot periodically writes the audit trail to disk.
//
// A Writer exports the current in-memory trail to a timestamped file in a
// directory; a Scheduler runs the Writer on a cron schedule. Files are
// written to a temporary name and renamed, so readers never observe a
// partial snapshot.
package snapshot
