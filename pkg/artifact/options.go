package artifact

import (
	"fmt"
	"go/token"
	"time"
)

// FormatVersion is the interchange document version written by BuildDocument.
const FormatVersion = "1.0.0"

// SupportedVersions is the range of format versions LoadDocument accepts.
const SupportedVersions = "^1"

// DefaultPackageName is the package clause of generated validators.
const DefaultPackageName = "grcrules"

// DefaultGenerator is recorded in document metadata and generated headers.
const DefaultGenerator = "covenant"

// Options controls export output.
type Options struct {
	// PackageName is the package clause of generated source.
	PackageName string

	// Generator names the producing tool.
	Generator string

	// Now supplies the generation timestamp. Fix it for reproducible output.
	Now func() time.Time
}

// DefaultOptions returns the default export options.
func DefaultOptions() *Options {
	return &Options{
		PackageName: DefaultPackageName,
		Generator:   DefaultGenerator,
		Now:         time.Now,
	}
}

func (o *Options) withDefaults() (*Options, error) {
	out := DefaultOptions()
	if o != nil {
		if o.PackageName != "" {
			out.PackageName = o.PackageName
		}
		if o.Generator != "" {
			out.Generator = o.Generator
		}
		if o.Now != nil {
			out.Now = o.Now
		}
	}
	if !token.IsIdentifier(out.PackageName) {
		return nil, fmt.Errorf("invalid package name %q", out.PackageName)
	}
	return out, nil
}
