package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	runCompanies []string
	runJSON      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline over the seed companies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		printer := newEventPrinter(cmd.OutOrStdout(), runJSON)
		var sum runSummary
		for ev := range env.Pipeline.Run(ctx, runCompanies) {
			sum.observe(ev)
			if err := printer.Print(ev); err != nil {
				return eris.Wrap(err, "write event")
			}
		}

		zap.L().Info("run complete",
			zap.Int("ready_for_handoff", sum.Handoffs),
			zap.Int("dropped", sum.Dropped),
			zap.Int("blocked", sum.Blocked),
			zap.Int("errors", sum.Errors),
		)
		if sum.Fatal != "" {
			return eris.New(sum.Fatal)
		}
		return ctx.Err()
	},
}

// runSummary tallies record outcomes from the event stream.
type runSummary struct {
	Handoffs int
	Dropped  int
	Blocked  int
	Errors   int
	// Fatal holds the batch-level error, if the Hunter failed.
	Fatal string
}

func (s *runSummary) observe(ev model.Event) {
	switch ev.Kind {
	case model.EventError:
		if ev.RecordID == "" {
			s.Fatal = ev.Message
			return
		}
		s.Errors++
	case model.EventStageEnd:
		status, _ := ev.Payload["status"].(string)
		switch model.Status(status) {
		case model.StatusReadyForHandoff:
			s.Handoffs++
		case model.StatusDropped:
			s.Dropped++
		case model.StatusBlocked:
			s.Blocked++
		}
	}
}

func init() {
	runCmd.Flags().StringSliceVar(&runCompanies, "company", nil, "company IDs to process (default: all seed companies)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print events as NDJSON")
	rootCmd.AddCommand(runCmd)
}
