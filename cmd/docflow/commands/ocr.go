package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pageflow/internal/config"
	"github.com/Lllllllleong/pageflow/internal/extract"
	"github.com/Lllllllleong/pageflow/internal/services"
)

var ocrOutFile string

var ocrCmd = &cobra.Command{
	Use:   "ocr <pdf-file>",
	Short: "Extract markdown from a local PDF without touching the store",
	Long:  "Render a local PDF and send every page to the configured extractor (EXTRACTOR_BACKEND), printing one markdown section per page.",
	Args:  cobra.ExactArgs(1),
	RunE:  runOCR,
}

func init() {
	ocrCmd.Flags().StringVarP(&ocrOutFile, "out", "o", "", "Write markdown to this file instead of stdout")
	rootCmd.AddCommand(ocrCmd)
}

func runOCR(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg := config.FromEnv()
	client, closeClient, err := services.NewExtractorClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeClient()
	soft := extract.NewSoftExtractor(client, extract.WithRetries(cfg.ExtractRetries))

	images, err := renderFile(ctx, args[0])
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if ocrOutFile != "" {
		f, err := os.Create(ocrOutFile)
		if err != nil {
			return fmt.Errorf("create %s: %w", ocrOutFile, err)
		}
		defer f.Close()
		out = f
	}

	failed := 0
	for i, img := range images {
		outcome := soft.Extract(ctx, img.PNG)
		if outcome.Failed {
			failed++
		}
		if _, err := fmt.Fprintf(out, "## Page %d\n\n%s\n\n", i+1, outcome.Text); err != nil {
			return err
		}
	}
	if failed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d pages failed extraction\n", failed, len(images))
	}
	return nil
}
