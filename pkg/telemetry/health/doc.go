// Package health serves liveness, readiness and version endpoints.
//
// Liveness answers 200 whenever the process can handle HTTP. Readiness runs
// the registered checks concurrently, each under its own timeout, and answers
// 503 while any of them fails. The server registers RulesCheck, so a fresh
// instance reports not ready until a policy has produced at least one rule,
// and StorageCheck against the audit backend.
package health
