package artifact

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"mercator-hq/covenant/pkg/rules"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://covenant.mercator-hq.dev/schemas/rules.json"

// Metadata describes an exported rule set.
type Metadata struct {
	GeneratedAt time.Time                     `json:"generated_at" yaml:"generated_at"`
	Generator   string                        `json:"generator" yaml:"generator"`
	TotalRules  int                           `json:"total_rules" yaml:"total_rules"`
	ByCategory  map[rules.Category]int        `json:"by_category" yaml:"by_category"`
	ByLevel     map[rules.ComplianceLevel]int `json:"by_compliance_level" yaml:"by_compliance_level"`
	Digest      string                        `json:"digest" yaml:"digest"`
}

// Document is the structured interchange form of a rule set.
type Document struct {
	FormatVersion string             `json:"format_version" yaml:"format_version"`
	Metadata      Metadata           `json:"metadata" yaml:"metadata"`
	Rules         []rules.PolicyRule `json:"rules" yaml:"rules"`
}

// BuildDocument returns the interchange document for set, rules in set order.
func BuildDocument(set *rules.RuleSet, opts *Options) (*Document, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if set == nil {
		set = rules.NewRuleSet()
	}
	for _, r := range set.Rules() {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	digest, err := set.Digest()
	if err != nil {
		return nil, err
	}
	summary := set.Summary()
	return &Document{
		FormatVersion: FormatVersion,
		Metadata: Metadata{
			GeneratedAt: opts.Now().UTC(),
			Generator:   opts.Generator,
			TotalRules:  summary.TotalRules,
			ByCategory:  summary.ByCategory,
			ByLevel:     summary.ByLevel,
			Digest:      digest,
		},
		Rules: set.Rules(),
	}, nil
}

// WriteJSON writes the document as indented JSON.
func (d *Document) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// WriteYAML writes the document as YAML.
func (d *Document) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}

// RuleSet rebuilds a rule set from the document, enforcing identifier
// uniqueness.
func (d *Document) RuleSet() (*rules.RuleSet, error) {
	for _, r := range d.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return rules.NewRuleSetFrom(d.Rules)
}

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader([]byte(schemaJSON))); err != nil {
		panic(fmt.Sprintf("artifact: add schema: %v", err))
	}
	compiledSchema = c.MustCompile(schemaURL)
}

// LoadDocument reads a JSON interchange document. The document must match
// the embedded schema, carry a supported format version and, when a digest
// is recorded, hash to it. Constraint types without an evaluator are
// rejected with *rules.UnrecognizedConstraintVariantError.
func LoadDocument(r io.Reader) (*Document, *rules.RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read document: %w", err)
	}

	var instance interface{}
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return nil, nil, &SchemaError{Cause: err}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode document: %w", err)
	}
	if err := checkVersion(doc.FormatVersion); err != nil {
		return nil, nil, err
	}

	set, err := doc.RuleSet()
	if err != nil {
		return nil, nil, err
	}
	if doc.Metadata.Digest != "" {
		digest, err := set.Digest()
		if err != nil {
			return nil, nil, err
		}
		if digest != doc.Metadata.Digest {
			return nil, nil, fmt.Errorf("%w: document %s, computed %s", ErrDigestMismatch, doc.Metadata.Digest, digest)
		}
	}
	return &doc, set, nil
}

func checkVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, v, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("%w: %s (supported %s)", ErrUnsupportedVersion, v, SupportedVersions)
	}
	return nil
}
