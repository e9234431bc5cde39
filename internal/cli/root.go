// Package cli provides the command-line interface for drivectl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/drivectl/internal/config"
	"github.com/rescale/drivectl/internal/logging"
	"github.com/rescale/drivectl/internal/version"
)

var (
	// Global flags
	cfgFile    string
	tokenFile  string // overrides the session token location
	authURL    string
	searchURL  string
	fileURL    string
	processURL string
	paymentURL string
	logFile    string
	verbose    bool
	debug      bool
	noNotify   bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "drivectl",
		Short: "Command-line client for Drive",
		Long: `drivectl ` + version.Version + ` - Built: ` + version.BuildTime + `
Browse, upload and manage files stored in Drive.

Sign in once with 'drivectl login'; the session is kept in
~/.config/drivectl/token until 'drivectl logout'.

Use 'drivectl shell' for an interactive session with selection,
filters and view switching.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeApp()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Path to the session token file")
	rootCmd.PersistentFlags().StringVar(&authURL, "auth-url", "", "Auth service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&searchURL, "search-url", "", "Search service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&fileURL, "file-url", "", "File service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&processURL, "process-url", "", "Processing service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&paymentURL, "payment-url", "", "Payment service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this rotating file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	rootCmd.PersistentFlags().BoolVar(&noNotify, "no-notify", false, "Disable desktop notifications")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, cancelling operations...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()
	if err != nil && app != nil {
		err = app.signOutOnUnauthorized(err)
	}

	signal.Stop(sigChan)
	close(sigChan)
	closeApp()

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())

	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newStarCmd())
	rootCmd.AddCommand(newTrashCmd())
	rootCmd.AddCommand(newRestoreCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newTagsCmd())

	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newCheckoutCmd())

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "drivectl %s (built %s)\n", version.Version, version.BuildTime)
		},
	}
}

// overrides collects the global flags for config.ApplyOverrides.
func overrides() config.Overrides {
	return config.Overrides{
		AuthURL:    authURL,
		SearchURL:  searchURL,
		FileURL:    fileURL,
		ProcessURL: processURL,
		PaymentURL: paymentURL,
		TokenFile:  tokenFile,
		LogFile:    logFile,
		NoNotify:   noNotify,
	}
}

// configPath returns --config or the default location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
