package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pageflow/internal/config"
	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/queue"
	"github.com/Lllllllleong/pageflow/internal/services"
)

var processCmd = &cobra.Command{
	Use:   "process <document-id>",
	Short: "Process a stored document synchronously in this process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		pipeline, err := services.NewPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer pipeline.Close()

		res := pipeline.Processor.Process(ctx, models.Job{TaskID: "cli", DocumentID: args[0]})
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Status != models.StatusCompleted {
			return fmt.Errorf("document %s: %s", args[0], res.Message)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <document-id>",
	Short: "Show the processing status of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		st, err := services.NewStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		return printJSON(cmd.OutOrStdout(), services.NewStatusService(st).Query(ctx, args[0]))
	},
}

var pagesCmd = &cobra.Command{
	Use:   "pages <document-id>",
	Short: "Print the stored markdown of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		st, err := services.NewStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		pages, err := st.ListPageContents(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), services.JoinPages(pages))
		return err
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <document-id>",
	Short: "Queue a document on the configured redis or workflow backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.QueueBackend == config.QueuePool {
			return fmt.Errorf("QUEUE_BACKEND=pool only accepts jobs inside docflowd; use the HTTP API or the process command")
		}
		backend, err := queue.New(ctx, cfg, nil, nil, slog.Default())
		if err != nil {
			return err
		}
		defer backend.Shutdown(ctx)

		job, err := backend.Submit(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

func init() {
	rootCmd.AddCommand(processCmd, statusCmd, pagesCmd, submitCmd)
}
