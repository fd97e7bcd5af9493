package rehydrate

import (
	"fmt"
	"strings"
)

// Option defaults and limits.
const (
	DefaultStability  = 0.6
	DefaultMaxTokens  = 1200
	MaxTokensCeiling  = 6000
	DefaultPerFileCap = 2
	DefaultCandidateK = 50

	FusionRRF    = "rrf"
	FusionZScore = "zscore"

	DedupeFile        = "file"
	DedupeFileOverlap = "file+overlap"

	ExpandOff  = "off"
	ExpandAuto = "auto"
)

// Options control a single rehydration request. Zero values take defaults
// via applyDefaults; Validate rejects out-of-range values after defaulting.
type Options struct {
	// Stability scales the anchor pin budget (0-1).
	Stability float64
	// StabilitySet distinguishes an explicit 0 from an unset value.
	StabilitySet bool

	// MaxTokens is the total bundle token budget.
	MaxTokens int

	// UseFusion enables the sparse channel; false means dense-only.
	UseFusion bool
	// UseFusionSet distinguishes an explicit false from an unset value.
	UseFusionSet bool

	// FusionMethod is "rrf" or "zscore".
	FusionMethod string

	// DedupeMode is "file" or "file+overlap".
	DedupeMode string

	// PerFileCap limits evidence chunks admitted per file.
	PerFileCap int

	// ExpandQuery is "off" or "auto".
	ExpandQuery string

	// CandidateK is per-channel candidate depth.
	CandidateK int
}

// applyDefaults fills in default values for unset options.
func applyDefaults(opts Options) Options {
	if !opts.StabilitySet {
		opts.Stability = DefaultStability
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.MaxTokens > MaxTokensCeiling {
		opts.MaxTokens = MaxTokensCeiling
	}
	if !opts.UseFusionSet {
		opts.UseFusion = true
	}
	if opts.FusionMethod == "" {
		opts.FusionMethod = FusionRRF
	}
	if opts.DedupeMode == "" {
		opts.DedupeMode = DedupeFile
	}
	if opts.PerFileCap <= 0 {
		opts.PerFileCap = DefaultPerFileCap
	}
	if opts.ExpandQuery == "" {
		opts.ExpandQuery = ExpandOff
	}
	if opts.CandidateK <= 0 {
		opts.CandidateK = DefaultCandidateK
	}
	return opts
}

// validateOptions checks option values after defaulting.
func validateOptions(opts Options) error {
	if opts.Stability < 0 || opts.Stability > 1 {
		return fmt.Errorf("stability must be in [0, 1], got %g", opts.Stability)
	}

	if opts.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", opts.MaxTokens)
	}

	switch strings.ToLower(opts.FusionMethod) {
	case FusionRRF, FusionZScore:
	default:
		return fmt.Errorf("fusion method must be %q or %q, got %q", FusionRRF, FusionZScore, opts.FusionMethod)
	}

	switch opts.DedupeMode {
	case DedupeFile, DedupeFileOverlap:
	default:
		return fmt.Errorf("dedupe mode must be %q or %q, got %q", DedupeFile, DedupeFileOverlap, opts.DedupeMode)
	}

	switch opts.ExpandQuery {
	case ExpandOff, ExpandAuto:
	default:
		return fmt.Errorf("expand_query must be %q or %q, got %q", ExpandOff, ExpandAuto, opts.ExpandQuery)
	}

	return nil
}
