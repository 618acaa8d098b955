// Package cmd provides the CLI commands for FalconEYE.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/falconeye/falconeye/internal/config"
	"github.com/falconeye/falconeye/internal/logging"
	"github.com/falconeye/falconeye/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the falconeye CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "falconeye",
		Short: "AI-powered security code review",
		Long: `FalconEYE indexes a source repository into a project-scoped vector
store and drives an LLM over retrieval-augmented contexts to produce
security findings.

Start with 'falconeye index <path>' and then 'falconeye review <file>'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("falconeye version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newReviewCmd())
	cmd.AddCommand(newProjectsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	_, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// loadConfig builds the effective configuration for a project directory.
func loadConfig(dir string) (*config.Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return config.Load(abs)
}

// lockRegistry takes the advisory file lock guarding the registry
// directory against a second concurrent falconeye process. The returned
// release func is safe to call when the lock was not acquired.
func lockRegistry(cfg *config.Config) (release func(), err error) {
	if err := os.MkdirAll(cfg.IndexRegistry.PersistDirectory, 0o755); err != nil {
		return func() {}, err
	}
	lock := flock.New(filepath.Join(cfg.IndexRegistry.PersistDirectory, ".falconeye.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		// A filesystem that cannot lock should not block the run.
		return func() {}, nil
	}
	if !locked {
		return func() {}, fmt.Errorf("another falconeye process holds the registry lock")
	}
	return func() { _ = lock.Unlock() }, nil
}
