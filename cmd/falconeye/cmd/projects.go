package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/falconeye/falconeye/pkg/falconeye"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage indexed projects",
	}
	cmd.AddCommand(newProjectsListCmd())
	cmd.AddCommand(newProjectsStatsCmd())
	cmd.AddCommand(newProjectsCleanupCmd())
	cmd.AddCommand(newProjectsDeleteCmd())
	return cmd
}

func withApp(cmd *cobra.Command, fn func(app *falconeye.App) error) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}
	app, err := falconeye.New(cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func newProjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(app *falconeye.App) error {
				projects, err := app.Projects(cmd.Context())
				if err != nil {
					return err
				}
				if len(projects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects indexed yet.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PROJECT ID\tNAME\tTYPE\tFILES\tCHUNKS\tUPDATED")
				for _, p := range projects {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
						p.ProjectID, p.ProjectName, p.ProjectType,
						p.TotalFiles, p.TotalChunks,
						p.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
}

func newProjectsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <project-id>",
		Short: "Show a project's file statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(app *falconeye.App) error {
				stats, err := app.Stats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total files: %d\n", stats.Total)
				fmt.Fprintf(out, "Active: %d\n", stats.Active)
				fmt.Fprintf(out, "Deleted (pending cleanup): %d\n", stats.Deleted)
				fmt.Fprintf(out, "Chunks: %d\n", stats.Chunks)
				return nil
			})
		},
	}
}

func newProjectsCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <project-id>",
		Short: "Physically remove deleted files and their embeddings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(app *falconeye.App) error {
				removed, err := app.Cleanup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d deleted file(s) and their embeddings.\n", removed)
				return nil
			})
		},
	}
}

func newProjectsDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and all its indexed data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %q without --yes", args[0])
			}
			return withApp(cmd, func(app *falconeye.App) error {
				if err := app.DeleteProject(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s.\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}
