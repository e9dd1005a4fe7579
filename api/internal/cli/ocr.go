package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	ocrFile     string
	ocrStrategy string
	ocrJSON     bool
)

var ocrCmd = &cobra.Command{
	Use:   "ocr",
	Short: "Extract the text of an answer sheet without grading it",
	Args:  cobra.NoArgs,
	RunE:  runOCR,
}

func init() {
	ocrCmd.Flags().StringVarP(&ocrFile, "file", "f", "", "PDF or image to read")
	ocrCmd.Flags().StringVarP(&ocrStrategy, "strategy", "s", "", "extraction strategy: native, local or vision")
	ocrCmd.Flags().BoolVar(&ocrJSON, "json", false, "print per-page results as JSON")
	_ = ocrCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ocrCmd)
}

func runOCR(cmd *cobra.Command, _ []string) error {
	strategy, err := optionalStrategy(ocrStrategy)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(ocrFile)
	if err != nil {
		return err
	}
	a, _, err := setup(cmd.Context(), false, false)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.Exam.ExtractOnly(cmd.Context(), data, strategy)
	if err != nil {
		return err
	}
	if ocrJSON {
		return printJSON(cmd, doc)
	}
	fmt.Fprintln(cmd.OutOrStdout(), doc.FullText)
	return nil
}
