package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"memalerts/internal/queue"
	"memalerts/internal/services"
)

// ErrInvalidOutput marks analysis results that must not be persisted.
var ErrInvalidOutput = errors.New("invalid pipeline output")

// Input identifies the media to analyze.
type Input struct {
	FileLocator string `json:"fileLocator"`
	LocalPath   string `json:"localPath,omitempty"`
}

// Output is the validated result of one analysis call.
type Output struct {
	Decision      queue.Decision
	RiskScore     float64
	Labels        []string
	AutoTags      []string
	Transcript    string
	Title         string
	Description   string
	ModelVersions map[string]string
}

var placeholderText = map[string]struct{}{
	"placeholder": {},
	"lorem ipsum": {},
	"todo":        {},
	"tbd":         {},
	"n/a":         {},
	"null":        {},
	"undefined":   {},
	"none":        {},
	"untitled":    {},
}

var placeholderVersions = map[string]struct{}{
	"stub":        {},
	"mock":        {},
	"placeholder": {},
	"dummy":       {},
	"unknown":     {},
}

// Validate rejects outputs that are malformed or look like placeholder
// responses. The returned error matches both ErrInvalidOutput and
// services.ErrValidation.
func (o Output) Validate() error {
	if _, ok := queue.ParseDecision(string(o.Decision)); !ok {
		return invalid("decision %q is not one of low, medium, high", o.Decision)
	}
	if math.IsNaN(o.RiskScore) || math.IsInf(o.RiskScore, 0) || o.RiskScore < 0 || o.RiskScore > 1 {
		return invalid("risk score %v outside [0,1]", o.RiskScore)
	}
	if len(o.ModelVersions) == 0 {
		return invalid("model versions missing")
	}
	for model, version := range o.ModelVersions {
		version = strings.ToLower(strings.TrimSpace(version))
		if strings.TrimSpace(model) == "" || version == "" {
			return invalid("model version entry %q=%q is blank", model, version)
		}
		if _, ok := placeholderVersions[version]; ok {
			return invalid("model %q reports placeholder version %q", model, version)
		}
	}
	if isPlaceholder(o.Title) || isPlaceholder(o.Description) {
		return invalid("generated text is placeholder content")
	}
	if len(nonBlank(o.Labels)) == 0 && len(nonBlank(o.AutoTags)) == 0 &&
		strings.TrimSpace(o.Title) == "" && strings.TrimSpace(o.Description) == "" &&
		strings.TrimSpace(o.Transcript) == "" {
		return invalid("output carries no content")
	}
	return nil
}

// ToAnalysis converts the output into the persisted analysis shape. Tags are
// left as produced; canonicalization happens at persistence time.
func (o Output) ToAnalysis() *queue.Analysis {
	versions := make(map[string]string, len(o.ModelVersions))
	for k, v := range o.ModelVersions {
		versions[k] = v
	}
	return &queue.Analysis{
		Decision:      o.Decision,
		RiskScore:     o.RiskScore,
		Labels:        nonBlank(o.Labels),
		AutoTags:      nonBlank(o.AutoTags),
		RawTags:       nonBlank(o.AutoTags),
		Transcript:    strings.TrimSpace(o.Transcript),
		Title:         strings.TrimSpace(o.Title),
		Description:   strings.TrimSpace(o.Description),
		ModelVersions: versions,
	}
}

func isPlaceholder(text string) bool {
	normalized := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!-_ "))
	if normalized == "" {
		return false
	}
	_, ok := placeholderText[normalized]
	return ok
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func invalid(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "pipeline", "validate output", fmt.Sprintf(format, args...), ErrInvalidOutput)
}
