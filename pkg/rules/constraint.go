package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConstraintKind is the wire tag of a constraint variant.
type ConstraintKind string

const (
	KindEncryptionRequired ConstraintKind = "encryption_required"
	KindPIIHandling        ConstraintKind = "pii_handling"
	KindDataRetention      ConstraintKind = "data_retention"
)

// DefaultAlgorithm is used when policy text requires encryption without naming a cipher.
const DefaultAlgorithm = "AES-256"

// Constraint is a checkable condition attached to a rule.
//
// The set of variants is closed: EncryptionRequired, PIIHandling and
// DataRetention (as values, not pointers). Consumers dispatch with a type
// switch and treat any other dynamic type as unrecognized.
type Constraint interface {
	Kind() ConstraintKind
}

// EncryptionRequired demands that data handled by the action is encrypted.
type EncryptionRequired struct {
	Algorithm string
}

func (EncryptionRequired) Kind() ConstraintKind { return KindEncryptionRequired }

// PIIHandling governs processing of personally identifiable information.
type PIIHandling struct {
	RequiresConsent    bool
	RequiresEncryption bool
}

func (PIIHandling) Kind() ConstraintKind { return KindPIIHandling }

// DataRetention demands that records are kept for at least Duration.
type DataRetention struct {
	Duration RetentionPeriod
}

func (DataRetention) Kind() ConstraintKind { return KindDataRetention }

// IsKnownConstraint reports whether c is one of the recognized variants.
func IsKnownConstraint(c Constraint) bool {
	switch c.(type) {
	case EncryptionRequired, PIIHandling, DataRetention:
		return true
	}
	return false
}

// RetentionUnit is the unit of a retention period.
type RetentionUnit string

const (
	UnitDays   RetentionUnit = "days"
	UnitMonths RetentionUnit = "months"
	UnitYears  RetentionUnit = "years"
)

// MaxRetentionDays is the longest retention period a constraint can express.
const MaxRetentionDays = math.MaxInt32

// ErrRetentionOutOfRange is returned for a period longer than MaxRetentionDays.
var ErrRetentionOutOfRange = errors.New("retention period out of range")

// RetentionPeriod is a quantity of days, months or years.
type RetentionPeriod struct {
	Quantity int
	Unit     RetentionUnit
}

// NewRetentionPeriod normalizes a unit word ("day", "Months", ...) into a RetentionPeriod.
func NewRetentionPeriod(quantity int, unit string) (RetentionPeriod, error) {
	if quantity < 0 {
		return RetentionPeriod{}, fmt.Errorf("negative retention quantity %d", quantity)
	}
	u := strings.ToLower(strings.TrimSpace(unit))
	if !strings.HasSuffix(u, "s") {
		u += "s"
	}
	switch RetentionUnit(u) {
	case UnitDays, UnitMonths, UnitYears:
	default:
		return RetentionPeriod{}, fmt.Errorf("unknown retention unit %q", unit)
	}
	if quantity > MaxRetentionDays/RetentionUnit(u).days() {
		return RetentionPeriod{}, fmt.Errorf("%w: %d %s exceeds %d days",
			ErrRetentionOutOfRange, quantity, u, MaxRetentionDays)
	}
	return RetentionPeriod{Quantity: quantity, Unit: RetentionUnit(u)}, nil
}

// ParseRetentionPeriod parses the "<n> <unit>" form, e.g. "7 years".
func ParseRetentionPeriod(s string) (RetentionPeriod, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return RetentionPeriod{}, fmt.Errorf("invalid retention period %q", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return RetentionPeriod{}, fmt.Errorf("invalid retention quantity in %q: %w", s, err)
	}
	return NewRetentionPeriod(n, fields[1])
}

func (u RetentionUnit) days() int {
	switch u {
	case UnitMonths:
		return 30
	case UnitYears:
		return 365
	default:
		return 1
	}
}

// Days converts the period to days using 30-day months and 365-day years.
// The result saturates at MaxRetentionDays.
func (p RetentionPeriod) Days() int {
	per := p.Unit.days()
	if p.Quantity > MaxRetentionDays/per {
		return MaxRetentionDays
	}
	return p.Quantity * per
}

func (p RetentionPeriod) String() string {
	unit := string(p.Unit)
	if p.Quantity == 1 {
		unit = strings.TrimSuffix(unit, "s")
	}
	return fmt.Sprintf("%d %s", p.Quantity, unit)
}

// Constraints is an ordered constraint list with a tagged wire encoding:
// every element is an object carrying a "type" field plus the variant's data.
type Constraints []Constraint

type constraintEnvelope struct {
	Type               ConstraintKind `json:"type" yaml:"type"`
	Algorithm          string         `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	RequiresConsent    *bool          `json:"requires_consent,omitempty" yaml:"requires_consent,omitempty"`
	RequiresEncryption *bool          `json:"requires_encryption,omitempty" yaml:"requires_encryption,omitempty"`
	Duration           string         `json:"duration,omitempty" yaml:"duration,omitempty"`
}

func envelopeOf(c Constraint) (constraintEnvelope, error) {
	switch v := c.(type) {
	case EncryptionRequired:
		return constraintEnvelope{Type: KindEncryptionRequired, Algorithm: v.Algorithm}, nil
	case PIIHandling:
		consent, encryption := v.RequiresConsent, v.RequiresEncryption
		return constraintEnvelope{
			Type:               KindPIIHandling,
			RequiresConsent:    &consent,
			RequiresEncryption: &encryption,
		}, nil
	case DataRetention:
		return constraintEnvelope{Type: KindDataRetention, Duration: v.Duration.String()}, nil
	default:
		return constraintEnvelope{}, NewUnrecognizedConstraintVariantError(c)
	}
}

func (e constraintEnvelope) constraint() (Constraint, error) {
	switch e.Type {
	case KindEncryptionRequired:
		alg := e.Algorithm
		if alg == "" {
			alg = DefaultAlgorithm
		}
		return EncryptionRequired{Algorithm: alg}, nil
	case KindPIIHandling:
		return PIIHandling{
			RequiresConsent:    e.RequiresConsent != nil && *e.RequiresConsent,
			RequiresEncryption: e.RequiresEncryption != nil && *e.RequiresEncryption,
		}, nil
	case KindDataRetention:
		period, err := ParseRetentionPeriod(e.Duration)
		if err != nil {
			return nil, fmt.Errorf("data_retention constraint: %w", err)
		}
		return DataRetention{Duration: period}, nil
	default:
		return nil, &UnrecognizedConstraintVariantError{Kind: string(e.Type)}
	}
}

func (cs Constraints) envelopes() ([]constraintEnvelope, error) {
	out := make([]constraintEnvelope, 0, len(cs))
	for _, c := range cs {
		env, err := envelopeOf(c)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func fromEnvelopes(envs []constraintEnvelope) (Constraints, error) {
	out := make(Constraints, 0, len(envs))
	for _, env := range envs {
		c, err := env.constraint()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler.
func (cs Constraints) MarshalJSON() ([]byte, error) {
	envs, err := cs.envelopes()
	if err != nil {
		return nil, err
	}
	return json.Marshal(envs)
}

// UnmarshalJSON implements json.Unmarshaler.
func (cs *Constraints) UnmarshalJSON(data []byte) error {
	var envs []constraintEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	out, err := fromEnvelopes(envs)
	if err != nil {
		return err
	}
	*cs = out
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (cs Constraints) MarshalYAML() (interface{}, error) {
	return cs.envelopes()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (cs *Constraints) UnmarshalYAML(value *yaml.Node) error {
	var envs []constraintEnvelope
	if err := value.Decode(&envs); err != nil {
		return err
	}
	out, err := fromEnvelopes(envs)
	if err != nil {
		return err
	}
	*cs = out
	return nil
}
