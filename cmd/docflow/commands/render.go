package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pageflow/internal/fetcher"
	"github.com/Lllllllleong/pageflow/internal/render"
)

var renderOutDir string

var renderCmd = &cobra.Command{
	Use:   "render <pdf-file>",
	Short: "Rasterize every page of a local PDF to PNG",
	Long:  "Render a local PDF (raw or base64-wrapped) at the pipeline's resolution and write one PNG per page.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutDir, "out", "o", ".", "Directory to write page images to")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	images, err := renderFile(ctx, args[0])
	if err != nil {
		return err
	}
	if err := os.MkdirAll(renderOutDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for i, img := range images {
		name := filepath.Join(renderOutDir, fmt.Sprintf("page-%05d.png", i+1))
		if err := os.WriteFile(name, img.PNG, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d pages to %s\n", len(images), renderOutDir)
	return nil
}

func renderFile(ctx context.Context, path string) ([]render.PageImage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	pdf, err := fetcher.NormalizePDF(raw)
	if err != nil {
		return nil, err
	}
	return render.NewRenderer().Render(ctx, pdf)
}
