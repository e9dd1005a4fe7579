package grading

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the examiner prompt. The JSON field names here are what
// evaluation.Decode reads back.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are an expert examiner. Evaluate the student's answer against the model answer.\n\n")
	if q := strings.TrimSpace(req.Question); q != "" {
		fmt.Fprintf(&b, "QUESTION:\n%s\n\n", q)
	}
	fmt.Fprintf(&b, "MODEL ANSWER:\n%s\n\n", strings.TrimSpace(req.ModelAnswer))
	fmt.Fprintf(&b, "STUDENT'S ANSWER:\n%s\n\n", strings.TrimSpace(req.StudentText))
	fmt.Fprintf(&b, "MAXIMUM MARKS: %d\n\n", req.MaxMarks)
	b.WriteString("The student's answer was read from scanned pages. Lines such as \"--- Page 2 ---\" mark page\n")
	b.WriteString("boundaries, and \"[No text detected]\" or \"[Error processing page N: ...]\" mean that page could not be read.\n\n")
	b.WriteString("Respond with a JSON object of exactly this shape:\n")
	fmt.Fprintf(&b, `{
  "marks_awarded": <number between 0 and %d>,
  "percentage": <number between 0 and 100>,
  "strengths": ["specific correct points and concepts the student covered well, 3-5 if applicable"],
  "missing_points": ["key concepts or details that were missing or incorrect, 2-3 if applicable"],
  "feedback": "2-3 sentences of constructive feedback on what was done well and what to improve",
  "grade": "<one of A+, A, B+, B, C, D, F, based on percentage>"
}
`, req.MaxMarks)
	b.WriteString("\nBe fair, constructive and specific. Consider conceptual understanding, accuracy,\n")
	b.WriteString("completeness, and clarity and structure.\n\n")
	b.WriteString("Return ONLY valid JSON, no additional text.\n")
	return b.String()
}
