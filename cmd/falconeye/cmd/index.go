package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/falconeye/falconeye/pkg/falconeye"
)

func newIndexCmd() *cobra.Command {
	var (
		language     string
		projectID    string
		exclude      []string
		force        bool
		noDocs       bool
		useChecksum  bool
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a codebase for analysis",
		Long: `Index builds (or incrementally updates) the project's vector index.
Unchanged files are skipped; deleted files are marked and removed later
by 'falconeye projects cleanup'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}

			release, err := lockRegistry(cfg)
			if err != nil {
				return err
			}
			defer release()

			app, err := falconeye.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Index(cmd.Context(), falconeye.IndexOptions{
				RootPath:         root,
				Language:         language,
				ProjectID:        projectID,
				ExcludedPatterns: exclude,
				ForceReindex:     force,
				IncludeDocuments: !noDocs,
				UseChecksum:      useChecksum,
				Workers:          workers,
			})
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project: %s (%s)\n", result.ProjectName, result.ProjectID)
			fmt.Fprintf(out, "Language: %s\n", result.Language)
			fmt.Fprintf(out, "Files: %d total, %d processed, %d unchanged, %d failed\n",
				result.TotalFiles, result.FilesProcessed, result.FilesSkipped, result.FilesFailed)
			if result.FilesDeleted > 0 {
				fmt.Fprintf(out, "Deleted: %d files marked (run 'falconeye projects cleanup %s' to remove)\n",
					result.FilesDeleted, result.ProjectID)
			}
			fmt.Fprintf(out, "Documents: %d, Chunks: %d\n", result.Documents, result.TotalChunks)
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Force the primary language (skip detection)")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Explicit project id override (for monorepos)")
	cmd.Flags().StringSliceVarP(&exclude, "exclude", "e", nil, "Additional exclusion patterns (substring match)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-index every file regardless of changes")
	cmd.Flags().BoolVar(&noDocs, "no-docs", false, "Skip documentation indexing")
	cmd.Flags().BoolVar(&useChecksum, "checksum", false, "Confirm stat-level changes with SHA-256 before re-processing")
	cmd.Flags().IntVar(&workers, "workers", 0, "Per-file worker pool size (0 = auto)")
	return cmd
}
