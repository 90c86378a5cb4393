// Package metrics exposes covenant's Prometheus metrics.
//
// Collector implements engine.Observer and records decisions by status,
// enforcement latency, risk scores, failing rules by category and level,
// enforcement errors by state, and the size of the active rule set. The
// HTTP server, the policy syncer and the audit snapshot scheduler report
// through ObserveHTTP, ObservePolicySync and ObserveAuditSnapshot.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng, err := engine.New(engineCfg, audit, engine.WithObserver(collector))
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
package metrics
