// Package engine enforces extracted compliance rules against runtime
// requests and records every decision in an append-only audit trail.
//
// # Evaluation Flow
//
//	Request{UserID, Action, Parameters}
//	       ↓
//	Created   - request ID and timestamp assigned, rule set snapshot taken
//	       ↓
//	Matched   - rules whose text shares a token with the action
//	       ↓
//	Evaluated - every constraint of every applicable rule checked
//	       ↓
//	Decided   - risk score summed, approved = no violations
//	       ↓
//	Logged    - audit entry appended, Decision returned
//
// The engine is fail-closed. Any error before Logged (cancellation, an
// unknown constraint, an audit write failure) returns an *EnforcementError
// and no audit entry. Callers must not treat a missing decision as approval.
//
// # Parameters
//
// Parameters map names to a bool, number or string. Absent keys are
// distinct from false or zero: encryption, consent and retention checks
// fail when their parameter is missing.
//
//	encryption_enabled    bool
//	encryption_algorithm  string (mismatch is a warning only)
//	contains_pii          bool   (absent is treated as true)
//	user_consent          bool
//	retention_days        number
//
// # Basic Usage
//
//	trail := recorder.New(nil, nil, logger)
//	eng, err := engine.New(engine.DefaultConfig(), trail, engine.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	if _, err := eng.LoadPolicy(ctx, "security.txt", text); err != nil {
//	    return err
//	}
//
//	decision, err := eng.Enforce(ctx, engine.Request{
//	    UserID:     "alice",
//	    Action:     "process customer data",
//	    Parameters: engine.Parameters{"encryption_enabled": engine.Bool(true)},
//	})
//
// # Thread Safety
//
// Rule set updates build a new set privately and publish it atomically, so
// Enforce never sees a partially loaded policy. Audit appends are serialized
// by the trail.
package engine
