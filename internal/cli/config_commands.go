// Package cli provides configuration management commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/drivectl/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage drivectl configuration",
		Long: `Configuration management commands for drivectl.

Commands:
  init  - Write a configuration file (interactive, or defaults with --defaults)
  show  - Display current configuration
  test  - Test the connection to every service
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var (
		force    bool
		defaults bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration",
		Long: `Write a configuration file for drivectl.

The configuration is saved to ~/.config/drivectl/config.ini (or --config).
Without --defaults you are asked for the service URLs and upload settings.

Use --force to overwrite existing configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg := config.NewConfig()
			if !defaults {
				if err := promptConfig(bufio.NewReader(cmd.InOrStdin()), out, cfg); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "\n✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(out, "Sign in with: drivectl login")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write defaults without prompting")

	return cmd
}

func promptConfig(r *bufio.Reader, out io.Writer, cfg *config.Config) error {
	fmt.Fprintln(out, "drivectl Configuration Setup")
	fmt.Fprintln(out, "============================")
	fmt.Fprintln(out, "Press Enter to keep the value in brackets.")
	fmt.Fprintln(out)

	cfg.AuthURL = promptString(r, out, "Auth service URL", cfg.AuthURL)
	cfg.SearchURL = promptString(r, out, "Search service URL", cfg.SearchURL)
	cfg.FileURL = promptString(r, out, "File service URL", cfg.FileURL)
	cfg.ProcessURL = promptString(r, out, "Processing service URL", cfg.ProcessURL)
	cfg.PaymentURL = promptString(r, out, "Payment service URL", cfg.PaymentURL)

	fmt.Fprintln(out)
	cfg.ProxyMode = promptString(r, out, "Proxy mode (no-proxy, system, basic, ntlm)", cfg.ProxyMode)
	if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
		cfg.ProxyHost = promptString(r, out, "Proxy host", cfg.ProxyHost)
		port := promptString(r, out, "Proxy port", strconv.Itoa(cfg.ProxyPort))
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid proxy port %q", port)
		}
		cfg.ProxyPort = p
		cfg.ProxyUser = promptString(r, out, "Proxy user", cfg.ProxyUser)
	}

	fmt.Fprintln(out)
	conc := promptString(r, out, "Concurrent uploads", strconv.Itoa(cfg.UploadConcurrency))
	n, err := strconv.Atoi(conc)
	if err != nil {
		return fmt.Errorf("invalid upload concurrency %q", conc)
	}
	cfg.UploadConcurrency = n

	desktop := promptString(r, out, "Desktop notifications (true/false)", strconv.FormatBool(cfg.DesktopNotifications))
	b, err := strconv.ParseBool(desktop)
	if err != nil {
		return fmt.Errorf("invalid value %q for desktop notifications", desktop)
	}
	cfg.DesktopNotifications = b
	return nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/drivectl/config.ini)
  2. Environment variables (DRIVE_AUTH_URL, DRIVE_SEARCH_URL, ...)
  3. Command-line flags (--auth-url, --search-url, ...)

Priority: flags > environment > config file > defaults`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.ApplyOverrides(overrides())
			printConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	}

	return cmd
}

func printConfig(out io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(out, "Current Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Services:")
	fmt.Fprintf(out, "  Auth:       %s\n", cfg.AuthURL)
	fmt.Fprintf(out, "  Search:     %s\n", cfg.SearchURL)
	fmt.Fprintf(out, "  File:       %s\n", cfg.FileURL)
	fmt.Fprintf(out, "  Processing: %s\n", cfg.ProcessURL)
	fmt.Fprintf(out, "  Payment:    %s\n", cfg.PaymentURL)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Session:")
	fmt.Fprintf(out, "  Token file: %s\n", cfg.TokenFile)
	if _, err := os.Stat(cfg.TokenFile); err == nil {
		// never print any part of the token
		fmt.Fprintln(out, "  Token:      <set>")
	} else {
		fmt.Fprintln(out, "  Token:      <not set>")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Proxy Settings:")
	fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(out, "  Proxy Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(out, "  Proxy Port: %d\n", cfg.ProxyPort)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "HTTP:")
	fmt.Fprintf(out, "  Max Retries:   %d\n", cfg.MaxRetries)
	fmt.Fprintf(out, "  Retry Wait:    %s - %s\n", cfg.RetryWaitMin, cfg.RetryWaitMax)
	fmt.Fprintf(out, "  Rate Limit:    %.1f req/s (burst %d)\n", cfg.RequestsPerSecond, cfg.RequestBurst)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Other:")
	fmt.Fprintf(out, "  Upload Concurrency:    %d\n", cfg.UploadConcurrency)
	fmt.Fprintf(out, "  Desktop Notifications: %t\n", cfg.DesktopNotifications)
	if cfg.LogFile != "" {
		fmt.Fprintf(out, "  Log File:              %s\n", cfg.LogFile)
	}
	fmt.Fprintf(out, "  S3 Region:             %s\n", cfg.S3Region)
	if cfg.S3Endpoint != "" {
		fmt.Fprintf(out, "  S3 Endpoint:           %s\n", cfg.S3Endpoint)
	}
	if cfg.AzureSASToken != "" {
		fmt.Fprintln(out, "  Azure SAS Token:       <set>")
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(out, "  (file does not exist - using defaults)")
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test the connection and session",
		Long: `Check the configuration and validate the stored session against the
auth service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := getApp()
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Testing Connection")
			fmt.Fprintln(out, "==================")
			fmt.Fprintf(out, "Auth URL: %s\n\n", a.Config.AuthURL)

			ctx, cancel := context.WithTimeout(GetContext(), 10*time.Second)
			defer cancel()

			if a.Session.Token() == "" {
				fmt.Fprintln(out, "No stored session; run 'drivectl login' to test authenticated access.")
				return nil
			}
			if err := a.Session.FetchUser(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}

			fmt.Fprintln(out, "✓ Connection SUCCESSFUL")
			if u := a.Session.User(); u != nil {
				fmt.Fprintf(out, "  Signed in as: %s\n", u.Email)
			}
			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(out, "  %s\n\n", path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: drivectl config init")
			}
			return nil
		},
	}

	return cmd
}
