// Package server exposes enforcement, rule management and the audit trail
// over HTTP.
//
// # Routes
//
//	POST   /v1/enforce                 enforce one request, returns the decision
//	GET    /v1/policies                loaded policy sources and rule summary
//	POST   /v1/policies                load policy text under a source label
//	DELETE /v1/policies/{source...}    remove every rule of a source
//	GET    /v1/rules                   current rules, filterable
//	GET    /v1/rules/export            interchange document (format=json|yaml)
//	GET    /v1/rules/artifact          generated validator source
//	POST   /v1/rules/import            replace the rule set from a document
//	GET    /v1/audit                   query the audit trail
//	GET    /v1/audit/stats             approval and risk aggregates
//	GET    /v1/audit/verify            verify the stored hash chain
//	GET    /v1/audit/export            export the trail (format=json|csv)
//	GET    /healthz, /readyz, /version probes
//	GET    /metrics                    Prometheus exposition, when enabled
//
// A decision is approved only when the body says "approved": true with a 200
// status. Enforcement failures answer 500 with "approved": false and leave
// no audit entry.
//
// # Middleware
//
// Outermost first: panic recovery, request ID, access logging, a single
// token bucket rate limiter (probes excluded) and the request body limit.
// Each API route additionally runs inside its own server span and feeds the
// HTTP request metrics.
package server
