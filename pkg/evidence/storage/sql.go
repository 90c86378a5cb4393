package storage

import (
	"fmt"
	"strings"

	"mercator-hq/covenant/pkg/evidence"
)

// dialect captures the differences between the SQL backends that matter for
// query building.
type dialect struct {
	placeholder func(n int) string
	timeArg     func(*evidence.Query, bool) any // bool: start (true) or end (false)
	noLimit     string                          // clause allowing OFFSET without LIMIT
}

// entryColumns lists columns in the order scanned by the backends.
const entryColumns = `sequence, id, recorded_at, request_id, action, user_id, approved,
	risk_score, violations, rules_evaluated, rule_ids, policy_version, prev_hash, hash`

// buildWhere renders the filters of q and their arguments.
func buildWhere(q *evidence.Query, d dialect) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", d.placeholder(len(args))))
	}

	if q.StartTime != nil {
		add("recorded_at >= ?", d.timeArg(q, true))
	}
	if q.EndTime != nil {
		add("recorded_at <= ?", d.timeArg(q, false))
	}
	if q.UserID != "" {
		add("user_id = ?", q.UserID)
	}
	if q.RequestID != "" {
		add("request_id = ?", q.RequestID)
	}
	if q.Action != "" {
		add(`LOWER(action) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(q.Action))+"%")
	}
	if q.Approved != nil {
		add("approved = ?", *q.Approved)
	}
	if q.MinRiskScore != nil {
		add("risk_score >= ?", *q.MinRiskScore)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildSuffix renders ordering and pagination. Limit and offset are validated
// non-negative integers.
func buildSuffix(q *evidence.Query, d dialect) string {
	var b strings.Builder
	if q.Descending() {
		b.WriteString(" ORDER BY sequence DESC")
	} else {
		b.WriteString(" ORDER BY sequence ASC")
	}
	switch {
	case q.Limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	case q.Offset > 0 && d.noLimit != "":
		b.WriteString(" " + d.noLimit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}
	return b.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
