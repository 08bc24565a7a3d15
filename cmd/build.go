package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBuildCmd() *cobra.Command {
	var (
		output  string
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Write the EPUB to a file",
		Long: `Crawls the archive, assembles the book, and writes it to the output path.
With --offline the book is assembled from the article cache alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			var data []byte
			if offline {
				data, err = appInstance.Assembler.Assemble(cmd.Context(), appInstance.Store.SortedByDateAscending())
				if err != nil {
					return fmt.Errorf("assemble: %w", err)
				}
			} else {
				artifact, err := appInstance.Ebooks.Rebuild(cmd.Context())
				if err != nil {
					return err
				}
				data = artifact.Data
			}

			if err := os.WriteFile(output, data, 0o644); err != nil { //nolint:gosec // the book is meant to be shared
				return fmt.Errorf("write %s: %w", output, err)
			}
			appInstance.Logger.Info("ebook written",
				zap.String("path", output),
				zap.Int("bytes", len(data)),
				zap.Int("articles", appInstance.Store.Len()),
			)
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "file.epub", "output path")
	cmd.Flags().BoolVar(&offline, "offline", false, "assemble from the article cache without crawling")
	return cmd
}
