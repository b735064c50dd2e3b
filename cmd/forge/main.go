// Command forge is a build-target dispatcher for Go projects. It maps
// short target names (build, test, fmt, lint, doc, run, clean, check) onto
// the underlying toolchain commands, passes their exit codes through, and
// optionally watches the tree to re-run targets on change.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"forge/internal/config"
	"forge/internal/logging"
	"forge/internal/shell"
	"forge/internal/task"
	"forge/internal/toolchain"
	"forge/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	strictMode  bool
	applyMode   bool
	timeoutFlag string
	dirFlag     string

	// Wiring built in PersistentPreRunE
	cfg     *config.Config
	runner  *shell.Runner
	tasks   *task.Runner
	manager *toolchain.Manager
	audit   *shell.AuditLogger
	styles  = newStyles()
)

var rootCmd = &cobra.Command{
	Use:   "forge [target]",
	Short: "forge - build-target dispatcher for Go projects",
	Long: `forge wraps the Go toolchain behind short, memorable targets.

Each target expands to the corresponding toolchain command and the
process exits with that command's exit code:

  forge build     go build ./...
  forge test      go test ./...
  forge fmt       gofmt -w .   (strict mode: gofmt -l . and fail on drift)
  forge lint      go vet + golangci-lint
  forge check     fmt, then lint and test

Configuration comes from .forge.yaml in the working directory, with
FORGE_* environment variables on top. CI=true switches to strict mode.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		runnerCfg := shell.DefaultRunnerConfig()
		runnerCfg.DefaultDir = cfg.Execution.WorkingDirectory
		runnerCfg.DefaultTimeout = cfg.ExecutionTimeout()
		if len(cfg.Execution.AllowedEnvVars) > 0 {
			runnerCfg.AllowedEnv = cfg.Execution.AllowedEnvVars
		}
		if cfg.Execution.MaxOutputBytes > 0 {
			runnerCfg.MaxOutputBytes = cfg.Execution.MaxOutputBytes
		}
		runner = shell.NewRunnerWithConfig(runnerCfg)

		audit = shell.NewAuditLogger()
		if cfg.Audit.Enabled {
			if err := audit.EnableFileLogging(cfg.Audit.File); err != nil {
				logging.L().Warn("audit log unavailable", zap.Error(err))
			}
		}
		runner.SetAuditCallback(audit.Log)

		tasks = task.NewRunner(cfg, runner, task.NewRegistry())
		manager = toolchain.NewManager(cfg, runner)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if audit != nil {
			_ = audit.Close()
		}
		logging.Sync()
	},
}

// applyFlags layers command-line flags over the loaded configuration.
// Flags win over both the file and the environment.
func applyFlags(c *config.Config) {
	if strictMode {
		c.Mode = config.ModeStrict
	}
	if applyMode {
		c.Mode = config.ModeApply
	}
	if timeoutFlag != "" {
		c.Execution.DefaultTimeout = timeoutFlag
	}
	if dirFlag != "" {
		c.Execution.WorkingDirectory = dirFlag
	}
}

// dispatch runs one target, bootstrapping missing tools first when
// configured.
func dispatch(target string, args []string, stream bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Toolchain.Bootstrap {
		if err := manager.Ensure(ctx); err != nil {
			return err
		}
	}

	return tasks.Run(ctx, target, task.Options{
		Strict: cfg.Strict(),
		Stream: stream,
		Args:   args,
	})
}

func targetCmd(name, short string, stream bool) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatch(name, nil, stream)
		},
	}
}

var buildCmd = targetCmd("build", "Compile the configured packages", true)
var fmtCmd = targetCmd("fmt", "Format sources, or check formatting in strict mode", false)
var lintCmd = targetCmd("lint", "Run go vet and the configured linter", true)
var cleanCmd = targetCmd("clean", "Remove build artifacts", false)
var checkCmd = targetCmd("check", "Run fmt, then lint and test", false)

var testCmd = &cobra.Command{
	Use:   "test [go test flags]",
	Short: "Run the test suite",
	Long: `Runs go test over the configured packages. Extra arguments are
forwarded, so "forge test -race -count=1" works as expected.`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch("test", args, true)
	},
}

var docCmd = &cobra.Command{
	Use:   "doc [package [symbol]]",
	Short: "Show package documentation",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch("doc", args, true)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [args]",
	Short: "Build and run the main package",
	Long: `Builds and runs the configured main package, streaming its output.
Arguments after the target name are passed to the program:

  forge run -- --port 8080`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch("run", args, true)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run targets when source files change",
	Long: `Watches the project tree and re-runs the configured watch targets
(default: build, test) whenever a Go file changes. Rapid saves are
debounced. Interrupt with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if cfg.Toolchain.Bootstrap {
			if err := manager.Ensure(ctx); err != nil {
				return err
			}
		}

		w, err := watch.New(cfg, cfg.Execution.WorkingDirectory, tasks)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()

		fmt.Printf("%s\n", styles.Title.Render("forge watch"))
		fmt.Printf("  watching %s, targets: %v\n", cfg.Execution.WorkingDirectory, cfg.Watch.Targets)

		<-ctx.Done()

		stats := w.Stats()
		fmt.Printf("\n%s %d runs, %d failed\n",
			styles.Muted.Render("watch stopped:"), stats.RunsTriggered, stats.RunsFailed)
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Show toolchain status, optionally installing missing tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		install, _ := cmd.Flags().GetBool("install")
		if install {
			cfg.Toolchain.Bootstrap = true
			if err := manager.Ensure(ctx); err != nil {
				return err
			}
		}

		fmt.Println(styles.Title.Render("toolchain"))
		for _, st := range manager.Probe(ctx) {
			line := fmt.Sprintf("%-8s %s", st.Tool.Binary, styles.status(st.Found))
			if st.Found && st.Version != "" {
				line += "  " + styles.Muted.Render(st.Version)
			}
			if !st.Found && !st.Tool.Required {
				line += "  " + styles.Warning.Render("(optional)")
			}
			fmt.Println(styles.row(st.Tool.Name, line))
		}
		return nil
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List available targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(styles.Title.Render("targets"))
		for _, t := range tasks.Registry().List() {
			fmt.Println(styles.row(t.Name, t.Summary))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show effective configuration and execution metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(styles.Title.Render("forge status"))
		fmt.Println(styles.row("project", cfg.Project.Name))
		fmt.Println(styles.row("packages", cfg.Project.Packages))
		fmt.Println(styles.row("mode", string(cfg.Mode)))
		fmt.Println(styles.row("dir", cfg.Execution.WorkingDirectory))
		fmt.Println(styles.row("timeout", cfg.Execution.DefaultTimeout))
		if cfg.Audit.Enabled {
			fmt.Println(styles.row("audit", cfg.Audit.File))
			// Metrics come from the audit log so they cover past runs,
			// not just this process.
			if snap, err := shell.ReplayMetrics(cfg.Audit.File); err == nil && snap.Total > 0 {
				fmt.Println(styles.row("commands", fmt.Sprintf("%d run, %.0f%% ok",
					snap.Total, snap.SuccessRate*100)))
			}
		}
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .forge.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		if err := config.Default().Save(configPath); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", styles.Success.Render("wrote"), configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&strictMode, "strict", false, "Strict mode: check formatting and fail on drift")
	rootCmd.PersistentFlags().BoolVar(&applyMode, "apply", false, "Apply mode: write formatting fixes (overrides CI default)")
	rootCmd.PersistentFlags().StringVar(&timeoutFlag, "timeout", "", "Per-command timeout (e.g. 5m)")
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "C", "", "Working directory for commands")

	toolsCmd.Flags().Bool("install", false, "Install missing installable tools")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var exitErr *task.ExitError
		if errors.As(err, &exitErr) && exitErr.Code > 0 {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
