// Package recorder appends enforcement decisions to the audit trail.
//
// The Recorder is the single writer of the trail. Append is serialized by a
// mutex: it assigns the next sequence number, links the entry to its
// predecessor's hash, writes it to the storage backend and only then publishes
// it to the in-memory log. A failed write leaves both the backend and the log
// unchanged, so the caller can treat "no entry" as "not processed".
//
// The in-memory log holds every entry appended during the recorder's lifetime.
// Snapshot returns deep copies, and Stats is recomputed from a fresh snapshot
// on every call.
package recorder
