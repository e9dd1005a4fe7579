package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var modelAnswerFile string

var modelAnswerCmd = &cobra.Command{
	Use:   "model-answer",
	Short: "Print the text layer of a typed model-answer PDF",
	Args:  cobra.NoArgs,
	RunE:  runModelAnswer,
}

func init() {
	modelAnswerCmd.Flags().StringVarP(&modelAnswerFile, "file", "f", "", "typed PDF")
	_ = modelAnswerCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(modelAnswerCmd)
}

func runModelAnswer(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(modelAnswerFile)
	if err != nil {
		return err
	}
	a, _, err := setup(cmd.Context(), false, false)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.Exam.ModelAnswerText(cmd.Context(), data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
