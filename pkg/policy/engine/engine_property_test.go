//go:build property
// +build property

package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"mercator-hq/covenant/pkg/evidence/recorder"
	"mercator-hq/covenant/pkg/rules"
)

const propertyPolicy = `DATA PROTECTION
Customer data must be encrypted at rest using AES-256 encryption.
Personal data must only be processed with consent.
Customer records must be retained for 7 years.
Staff should review customer access quarterly.`

var actions = []string{
	"process customer data",
	"export personal data",
	"delete records",
	"review access",
	"deploy service",
	"",
}

func paramsFrom(bits []bool, days int) Parameters {
	keys := []string{rules.ParamEncryptionEnabled, rules.ParamContainsPII, rules.ParamUserConsent}
	p := Parameters{}
	for i, k := range keys {
		if i < len(bits) {
			p[k] = Bool(bits[i])
		}
	}
	if days >= 0 {
		p[rules.ParamRetentionDays] = Number(float64(days))
	}
	return p
}

// Property: approved == (no violations) and the audit trail grows by one per call.
func TestEnforceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	trail := recorder.New(nil, nil, discardLogger())
	eng, err := New(nil, trail, WithLogger(discardLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.LoadPolicy(context.Background(), "policy.txt", propertyPolicy); err != nil {
		t.Fatal(err)
	}

	properties.Property("approval matches violations", prop.ForAll(
		func(action int, bits []bool, days int) bool {
			before := len(trail.Snapshot())
			d, err := eng.Enforce(context.Background(), Request{
				Action:     actions[action],
				Parameters: paramsFrom(bits, days),
			})
			if err != nil {
				return false
			}
			if d.Approved != (len(d.Violations) == 0) {
				return false
			}
			if d.RiskScore < 0 {
				return false
			}
			return len(trail.Snapshot()) == before+1
		},
		gen.IntRange(0, len(actions)-1),
		gen.SliceOfN(3, gen.Bool()),
		gen.IntRange(-1, 4000),
	))

	properties.Property("encryption flag decides encryption violations", prop.ForAll(
		func(enabled bool) bool {
			d, err := eng.Enforce(context.Background(), Request{
				Action:     "process customer data",
				Parameters: Parameters{rules.ParamEncryptionEnabled: Bool(enabled)},
			})
			if err != nil {
				return false
			}
			found := false
			for _, v := range d.Violations {
				if strings.Contains(v, rules.ReasonEncryptionDisabled) {
					found = true
				}
			}
			return found != enabled
		},
		gen.Bool(),
	))

	properties.TestingRun(t)
}
