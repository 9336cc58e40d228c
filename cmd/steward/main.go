package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/steward"
	"github.com/loykin/steward/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// buildRoot creates the root command with all subcommands attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serviceFlags := &ServiceFlags{}
	statusFlags := &StatusFlags{}
	bulkFlags := &BulkFlags{}
	reconcileFlags := &ReconcileFlags{}
	templateFlags := &TemplateCreateFlags{}

	stewardCommand := command{}

	root := createRootCommand(globalFlags)

	// Add subcommands
	root.AddCommand(
		createStartCommand(stewardCommand, serviceFlags),
		createStopCommand(stewardCommand, serviceFlags),
		createRestartCommand(stewardCommand, serviceFlags),
		createStatusCommand(stewardCommand, statusFlags),
		createHealthCommand(stewardCommand, serviceFlags),
		createValidateCommand(stewardCommand, serviceFlags),
		createCleanupCommand(stewardCommand, serviceFlags),
		createStartAllCommand(stewardCommand, bulkFlags),
		createStopAllCommand(stewardCommand, bulkFlags),
		createReconcileCommand(stewardCommand, reconcileFlags),
		createServeCommand(globalFlags),
		createTemplateCommand(stewardCommand, templateFlags),
	)

	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "steward",
		Short: "Service orchestration and health reconciliation daemon",
		Long: `Steward supervises the child services of an agent platform: MCP tool
servers and agent servers. It spawns them on managed ports, records their
state, health-checks them over their own protocols and reconciles drift
between the store and the operating system.

Examples:
  steward serve config.toml         # Start daemon
  steward start --name=mcp-search
  steward status --kind=mcp
  steward status --api-url=http://remote:8080  # Remote status`,
	}

	// Only essential flags for CLI commands
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

// createStartCommand creates the start subcommand
func createStartCommand(stewardCommand command, serviceFlags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a service",
		Long: `Start a registered service with the specified name. The daemon spawns
the binary, waits for its port and records the new PID.

Examples:
  steward start --name=mcp-search
  steward start --name=agent-chat --api-url=http://remote:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.Start(ServiceFlags{
				Name:       serviceFlags.Name,
				APIUrl:     serviceFlags.APIUrl,
				APITimeout: serviceFlags.APITimeout,
			})
		},
	}

	// Add flags specific to start command
	cmd.Flags().StringVar(&serviceFlags.Name, "name", "", "service name (required)")

	// Remote daemon connection
	cmd.Flags().StringVar(&serviceFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&serviceFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	// Mark required flags
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err) // This should never happen during setup
	}

	return cmd
}

// createStopCommand creates the stop subcommand
func createStopCommand(stewardCommand command, serviceFlags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a service",
		Long: `Stop a running service: graceful signal first, forced kill after the
configured grace period. Stopping an already stopped service succeeds.

Examples:
  steward stop --name=mcp-search
  steward stop --name=agent-chat --api-url=http://remote:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.Stop(ServiceFlags{
				Name:       serviceFlags.Name,
				APIUrl:     serviceFlags.APIUrl,
				APITimeout: serviceFlags.APITimeout,
			})
		},
	}

	cmd.Flags().StringVar(&serviceFlags.Name, "name", "", "service name (required)")
	cmd.Flags().StringVar(&serviceFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&serviceFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err) // This should never happen during setup
	}

	return cmd
}

// createRestartCommand creates the restart subcommand
func createRestartCommand(stewardCommand command, serviceFlags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart a service",
		Long: `Stop and start a service in one step. The service keeps its
configured port.

Examples:
  steward restart --name=mcp-search`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.Restart(ServiceFlags{
				Name:       serviceFlags.Name,
				APIUrl:     serviceFlags.APIUrl,
				APITimeout: serviceFlags.APITimeout,
			})
		},
	}

	cmd.Flags().StringVar(&serviceFlags.Name, "name", "", "service name (required)")
	cmd.Flags().StringVar(&serviceFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&serviceFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err) // This should never happen during setup
	}

	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(stewardCommand command, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		Long: `Show the stored records of services managed by steward.

Examples:
  steward status                    # Show all services
  steward status --name=mcp-search  # Show one service
  steward status --kind=agent       # Show one kind
  steward status --api-url=http://remote:8080  # Remote status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.Status(StatusFlags{
				Name:       statusFlags.Name,
				Kind:       statusFlags.Kind,
				APIUrl:     statusFlags.APIUrl,
				APITimeout: statusFlags.APITimeout,
			})
		},
	}
	cmd.Flags().StringVar(&statusFlags.Name, "name", "", "service name (optional)")
	cmd.Flags().StringVar(&statusFlags.Kind, "kind", "", "filter by kind: mcp or agent (optional)")
	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	return cmd
}

// createHealthCommand creates the health subcommand
func createHealthCommand(stewardCommand command, serviceFlags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run a health check",
		Long: `Run one health check against a service and print the classification:
healthy, degraded or unhealthy. MCP servers answer a tools/list round trip,
agent servers a GET on their health path.

Examples:
  steward health --name=mcp-search
  steward health --name=agent-chat --api-url=http://remote:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.Health(ServiceFlags{
				Name:       serviceFlags.Name,
				APIUrl:     serviceFlags.APIUrl,
				APITimeout: serviceFlags.APITimeout,
			})
		},
	}

	cmd.Flags().StringVar(&serviceFlags.Name, "name", "", "service name (required)")
	cmd.Flags().StringVar(&serviceFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&serviceFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err) // This should never happen during setup
	}

	return cmd
}

// createValidateCommand creates the validate subcommand
func createValidateCommand(stewardCommand command, serviceFlags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a service configuration",
		Long: `Re-check a service's static configuration on the daemon: the binary
must exist and the port must sit inside the range for its kind.

Examples:
  steward validate --name=mcp-search`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.Validate(ServiceFlags{
				Name:       serviceFlags.Name,
				APIUrl:     serviceFlags.APIUrl,
				APITimeout: serviceFlags.APITimeout,
			})
		},
	}

	cmd.Flags().StringVar(&serviceFlags.Name, "name", "", "service name (required)")
	cmd.Flags().StringVar(&serviceFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&serviceFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err) // This should never happen during setup
	}

	return cmd
}

// createCleanupCommand creates the cleanup subcommand
func createCleanupCommand(stewardCommand command, serviceFlags *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clean up an orphaned service",
		Long: `Terminate whatever process occupies the service's port outside the
daemon's control and settle the record at stopped.

Examples:
  steward cleanup --name=mcp-search`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.Cleanup(ServiceFlags{
				Name:       serviceFlags.Name,
				APIUrl:     serviceFlags.APIUrl,
				APITimeout: serviceFlags.APITimeout,
			})
		},
	}

	cmd.Flags().StringVar(&serviceFlags.Name, "name", "", "service name (required)")
	cmd.Flags().StringVar(&serviceFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&serviceFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")

	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err) // This should never happen during setup
	}

	return cmd
}

// createStartAllCommand creates the start-all subcommand
func createStartAllCommand(stewardCommand command, bulkFlags *BulkFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start-all",
		Short: "Start all enabled services",
		Long: `Start every enabled service, optionally one kind only. Disabled
services are skipped.

Examples:
  steward start-all
  steward start-all --kind=mcp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.StartAll(BulkFlags{
				Kind:       bulkFlags.Kind,
				APIUrl:     bulkFlags.APIUrl,
				APITimeout: bulkFlags.APITimeout,
			})
		},
	}

	cmd.Flags().StringVar(&bulkFlags.Kind, "kind", "", "filter by kind: mcp or agent (optional)")
	cmd.Flags().StringVar(&bulkFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&bulkFlags.APITimeout, "api-timeout", 60*time.Second, "request timeout")

	return cmd
}

// createStopAllCommand creates the stop-all subcommand
func createStopAllCommand(stewardCommand command, bulkFlags *BulkFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop all services",
		Long: `Stop every service, optionally one kind only. Disabled services are
stopped too.

Examples:
  steward stop-all
  steward stop-all --kind=agent`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.StopAll(BulkFlags{
				Kind:       bulkFlags.Kind,
				APIUrl:     bulkFlags.APIUrl,
				APITimeout: bulkFlags.APITimeout,
			})
		},
	}

	cmd.Flags().StringVar(&bulkFlags.Kind, "kind", "", "filter by kind: mcp or agent (optional)")
	cmd.Flags().StringVar(&bulkFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&bulkFlags.APITimeout, "api-timeout", 60*time.Second, "request timeout")

	return cmd
}

// createReconcileCommand creates the reconcile subcommand
func createReconcileCommand(stewardCommand command, reconcileFlags *ReconcileFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconcile pass",
		Long: `Run one corrective pass over every service: dead PIDs are marked
crashed, foreign processes on managed ports are marked orphaned, and stale
rows are settled. Prints the corrected listing.

Examples:
  steward reconcile
  steward reconcile --api-url=http://remote:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.Reconcile(ReconcileFlags{
				APIUrl:     reconcileFlags.APIUrl,
				APITimeout: reconcileFlags.APITimeout,
			})
		},
	}

	cmd.Flags().StringVar(&reconcileFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080)")
	cmd.Flags().DurationVar(&reconcileFlags.APITimeout, "api-timeout", 60*time.Second, "request timeout")

	return cmd
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the steward daemon",
		Long: `Start the steward daemon: load services from the config file, bring
the admin API up and run the health and reconcile loops until signalled.

Examples:
  steward serve config.toml         # Start with specific config file
  steward serve --config=config.toml
  steward serve config.toml --daemonize   # Run in background (pidfile from [server].pidfile)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveFlags.ConfigPath == "" {
				serveFlags.ConfigPath = globalFlags.ConfigPath
			}
			return runServeCommand(serveFlags, args)
		},
	}

	// Add daemonize flags
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file (overrides [server].pidfile)")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")

	return cmd
}

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	// Load unified config once
	cfg, err := steward.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if cfg.Server == nil {
		return fmt.Errorf("server must be configured to run serve command")
	}

	// If daemonize is requested, re-exec in the background with the
	// pidfile/logfile from flags or [server]
	if flags.Daemonize {
		pidfile := flags.PidFile
		if pidfile == "" {
			pidfile = cfg.Server.PidFile
		}
		logfile := flags.LogFile
		if logfile == "" {
			logfile = cfg.Server.LogFile
		}
		return daemonize(pidfile, logfile)
	}

	logger.Setup(cfg.LogLevel, false)

	// Collectors live on the default registry; the admin API serves them
	// under {basePath}/metrics
	if err := steward.RegisterMetricsDefault(); err != nil {
		fmt.Printf("Warning: failed to register metrics: %v\n", err)
	}

	ctx := context.Background()
	eng, err := steward.NewEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// Bring enabled services up, then let the loops keep them that way
	if err := eng.StartAll(ctx, nil); err != nil {
		fmt.Printf("Warning: failed to start services: %v\n", err)
	}
	eng.StartHealthMonitors(cfg.Engine.HealthInterval)
	eng.StartReconciler(cfg.Engine.ReconcileInterval)

	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			fmt.Printf("Warning: failed to write PID file: %v\n", err)
		}
	}

	// Create and start HTTP/HTTPS server
	protocol := "HTTP"
	var server *http.Server

	if cfg.Server.TLS != nil && cfg.Server.TLS.Enabled {
		protocol = "HTTPS"
		server, err = steward.NewTLSServer(*cfg.Server, eng)
		if err != nil {
			_ = eng.Close()
			return fmt.Errorf("failed to create HTTPS server: %w", err)
		}
	} else {
		server, err = steward.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, eng)
		if err != nil {
			_ = eng.Close()
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
	}

	fmt.Printf("Starting steward %s server on %s%s\n", protocol, cfg.Server.Listen, cfg.Server.BasePath)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	closeErr := server.Close()
	if err := eng.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	_ = removePidFile(flags.PidFile)
	return closeErr
}

// createTemplateCommand creates the template command
func createTemplateCommand(stewardCommand command, templateFlags *TemplateCreateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Create service templates",
		Long: `Create service configuration templates for the managed kinds.
Templates are TOML fragments ready to drop into a config file.

Supported template types:
  mcp       - MCP tool server stanza
  agent     - Agent server stanza
  minimal   - Smallest valid service stanza
  config    - Complete starter config file

Examples:
  steward template --type=mcp --name=mcp-search
  steward template --type=agent --name=agent-chat
  steward template --type=config --output=./config.toml
  steward template --type=mcp --name=mcp-search --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stewardCommand.TemplateCreate(TemplateCreateFlags{
				Name:   templateFlags.Name,
				Type:   templateFlags.Type,
				Force:  templateFlags.Force,
				Output: templateFlags.Output,
			})
		},
	}

	// Add flags specific to template command
	cmd.Flags().StringVar(&templateFlags.Type, "type", "", "template type (required): mcp, agent, minimal, config")
	cmd.Flags().StringVar(&templateFlags.Name, "name", "", "service name for template (defaults to type-sample)")
	cmd.Flags().StringVar(&templateFlags.Output, "output", "", "output file path (defaults to templates/name.toml)")
	cmd.Flags().BoolVar(&templateFlags.Force, "force", false, "overwrite existing template file")

	// Mark required flags
	if err := cmd.MarkFlagRequired("type"); err != nil {
		panic(err)
	}

	return cmd
}
