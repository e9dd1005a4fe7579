package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"exam-grader/api/internal/examiner"
	"exam-grader/api/internal/recognize"
)

var (
	evalFile            string
	evalModelAnswer     string
	evalModelAnswerFile string
	evalMaxMarks        int
	evalQuestion        string
	evalStrategy        string
	evalWithText        bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Grade one answer sheet and print the result as JSON",
	Long: `Extracts the student's answer from --file, grades it against the model answer and
prints the evaluation. The model answer is given inline or read from a typed PDF.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVarP(&evalFile, "file", "f", "", "student answer sheet (PDF or image)")
	f.StringVar(&evalModelAnswer, "model-answer", "", "model answer text")
	f.StringVar(&evalModelAnswerFile, "model-answer-file", "", "typed PDF holding the model answer")
	f.IntVar(&evalMaxMarks, "max-marks", 0, "maximum marks for the question")
	f.StringVarP(&evalQuestion, "question", "q", "", "question text")
	f.StringVarP(&evalStrategy, "strategy", "s", "", "extraction strategy: native, local or vision")
	f.BoolVar(&evalWithText, "with-text", false, "include the extracted text in the output")
	_ = evaluateCmd.MarkFlagRequired("file")
	_ = evaluateCmd.MarkFlagRequired("max-marks")
	evaluateCmd.MarkFlagsMutuallyExclusive("model-answer", "model-answer-file")
	rootCmd.AddCommand(evaluateCmd)
}

type evaluateOutput struct {
	Result        any                `json:"evaluation"`
	Outcome       string             `json:"outcome"`
	Anomalies     []string           `json:"anomalies,omitempty"`
	Strategy      recognize.Strategy `json:"strategy"`
	Pages         int                `json:"pages"`
	TotalPages    int                `json:"total_pages"`
	ExtractedText string             `json:"extracted_text,omitempty"`
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	if evalMaxMarks <= 0 {
		return fmt.Errorf("--max-marks must be positive, got %d", evalMaxMarks)
	}
	if strings.TrimSpace(evalModelAnswer) == "" && evalModelAnswerFile == "" {
		return errors.New("one of --model-answer or --model-answer-file is required")
	}
	strategy, err := optionalStrategy(evalStrategy)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(evalFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, _, err := setup(ctx, true, false)
	if err != nil {
		return err
	}
	defer a.Close()

	model := strings.TrimSpace(evalModelAnswer)
	if evalModelAnswerFile != "" {
		raw, err := os.ReadFile(evalModelAnswerFile)
		if err != nil {
			return err
		}
		if model, err = a.Exam.ModelAnswerText(ctx, raw); err != nil {
			return fmt.Errorf("model answer: %w", err)
		}
	}

	rep, err := a.Exam.Evaluate(ctx, examiner.Submission{
		Document:    data,
		ModelAnswer: model,
		MaxMarks:    evalMaxMarks,
		Question:    evalQuestion,
		Strategy:    strategy,
	})
	if err != nil {
		return err
	}

	out := evaluateOutput{
		Result:     rep.Result,
		Outcome:    string(rep.Outcome),
		Anomalies:  rep.Anomalies,
		Strategy:   rep.Extracted.Strategy,
		Pages:      len(rep.Extracted.Pages),
		TotalPages: rep.Extracted.TotalPages,
	}
	if evalWithText {
		out.ExtractedText = rep.Extracted.FullText
	}
	return printJSON(cmd, out)
}

func optionalStrategy(s string) (recognize.Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return recognize.ParseStrategy(s)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
