package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"exam-grader/api/internal/httpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, log, err := setup(ctx, true, true)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.RunRetention(ctx, time.Hour)

	return httpserver.Run(ctx, "0.0.0.0:"+a.Config.Port, a.Handler(), log)
}

