// Covenant turns written governance policy into enforceable rules.
//
// It extracts obligations from policy documents, enforces them against
// submitted actions, keeps a hash-chained audit trail of every decision and
// exports the active rules as a structured document or generated validator
// source.
//
// Usage:
//
//	# Extract rules from policy documents
//	covenant extract policies/security.txt
//
//	# Check one action
//	covenant enforce --policy policies/ --user alice \
//	    --action "process customer data" --param encryption_enabled=true
//
//	# Export the rules
//	covenant export structured --policy policies/ --format yaml
//	covenant export artifact --policy policies/ -o grcrules/rules.go
//
//	# Serve the HTTP API with file watching and audit snapshots
//	covenant run --config covenant.yaml
//
//	# Inspect the audit trail
//	covenant audit query --user alice --blocked
//	covenant audit verify
package main

import "os"

func main() {
	os.Exit(Execute())
}
