package pipeline_test

import (
	"errors"
	"math"
	"testing"

	"memalerts/internal/pipeline"
	"memalerts/internal/queue"
	"memalerts/internal/services"
)

func validOutput() pipeline.Output {
	return pipeline.Output{
		Decision:      queue.DecisionLow,
		RiskScore:     0.1,
		Labels:        []string{"animals"},
		AutoTags:      []string{"cat"},
		Title:         "Cat fails jump",
		Description:   "A cat misses the couch.",
		ModelVersions: map[string]string{"vision": "2026.02"},
	}
}

func TestValidateAcceptsRealOutput(t *testing.T) {
	if err := validOutput().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsInvalidOutputs(t *testing.T) {
	cases := map[string]func(*pipeline.Output){
		"unknown decision":  func(o *pipeline.Output) { o.Decision = "maybe" },
		"nan score":         func(o *pipeline.Output) { o.RiskScore = math.NaN() },
		"score above one":   func(o *pipeline.Output) { o.RiskScore = 1.5 },
		"negative score":    func(o *pipeline.Output) { o.RiskScore = -0.1 },
		"missing versions":  func(o *pipeline.Output) { o.ModelVersions = nil },
		"stub version":      func(o *pipeline.Output) { o.ModelVersions = map[string]string{"vision": "stub"} },
		"placeholder title": func(o *pipeline.Output) { o.Title = "Placeholder" },
		"lorem description": func(o *pipeline.Output) { o.Description = "Lorem ipsum." },
		"empty content": func(o *pipeline.Output) {
			o.Labels, o.AutoTags, o.Title, o.Description, o.Transcript = nil, []string{" "}, "", "", ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			out := validOutput()
			mutate(&out)
			err := out.Validate()
			if !errors.Is(err, pipeline.ErrInvalidOutput) || !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected invalid output error, got %v", err)
			}
		})
	}
}

func TestToAnalysisTrimsAndCopies(t *testing.T) {
	out := validOutput()
	out.AutoTags = []string{" cat ", ""}
	analysis := out.ToAnalysis()
	if len(analysis.AutoTags) != 1 || analysis.AutoTags[0] != "cat" {
		t.Fatalf("unexpected tags %v", analysis.AutoTags)
	}
	out.ModelVersions["vision"] = "changed"
	if analysis.ModelVersions["vision"] != "2026.02" {
		t.Fatal("model versions must be copied")
	}
}
