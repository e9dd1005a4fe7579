// Package evaluation decodes untrusted grading output into a bounded EvaluationResult.
package evaluation

import "strings"

const (
	GradeAPlus = "A+"
	GradeA     = "A"
	GradeBPlus = "B+"
	GradeB     = "B"
	GradeC     = "C"
	GradeD     = "D"
	GradeF     = "F"
	GradeNA    = "N/A"
)

var validGrades = map[string]struct{}{
	GradeAPlus: {}, GradeA: {}, GradeBPlus: {}, GradeB: {}, GradeC: {}, GradeD: {}, GradeF: {}, GradeNA: {},
}

// NormalizeGrade trims and upper-cases g. ok is false when g is not on the scale.
func NormalizeGrade(g string) (string, bool) {
	g = strings.ToUpper(strings.TrimSpace(g))
	if g == "NA" {
		g = GradeNA
	}
	_, ok := validGrades[g]
	return g, ok
}

const (
	DefaultFeedback = "No feedback provided"

	parseFailedStrength = "Unable to parse evaluation results"
	parseFailedMissing  = "Error in evaluation process"
	rawPreviewRunes     = 200
)

// EvaluationResult is the public verdict. Lists are never nil so they encode as [].
type EvaluationResult struct {
	MarksAwarded  float64  `json:"marks_awarded"`
	Percentage    float64  `json:"percentage"`
	Strengths     []string `json:"strengths"`
	MissingPoints []string `json:"missing_points"`
	Feedback      string   `json:"feedback"`
	Grade         string   `json:"grade"`
}

func defaults() EvaluationResult {
	return EvaluationResult{
		Strengths:     []string{},
		MissingPoints: []string{},
		Feedback:      DefaultFeedback,
		Grade:         GradeNA,
	}
}
