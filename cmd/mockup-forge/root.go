package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	mockupforge "github.com/menta2k/mockup-forge"
	"github.com/menta2k/mockup-forge/internal/config"
	"github.com/menta2k/mockup-forge/internal/utils"
	"github.com/menta2k/mockup-forge/pkg/ledger"
	"github.com/menta2k/mockup-forge/pkg/processing"
)

var settingsFile string

// rootCmd runs the batch pipeline when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "mockup-forge",
	Short: "Composite product designs onto mockup templates",
	Long: `mockup-forge removes the background of every design in the input directory,
places it on the matching mockup template of each configured mockup set and
writes the results, tagged with EXIF metadata, to timestamped output
directories.

Templates are looked up as "{mockup}_white.*" for designs on a light
background and "{mockup}_black.*" otherwise.

Examples:
  # Process ./Input with ./config.json and templates from ./Mockup
  mockup-forge

  # Explicit locations, keep the inputs afterwards
  mockup-forge --config shop.json --input-dir designs --output-dir out --keep-inputs

  # Preview server
  mockup-forge serve --port 8080`,
	SilenceUsage: true,
	RunE:         runBatch,
}

// Execute adds all child commands to the root command and runs it
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initSettings)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settingsFile, "settings", "", "settings file (default is ./.mockup-forge.yaml or $HOME/.mockup-forge.yaml)")
	flags.String("config", "", "mockup configuration file (default is ./config.json or ~/.config/mockup-forge/config.json)")
	flags.String("mockup-dir", "Mockup", "directory holding the mockup templates")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.Duration("fetch-timeout", processing.DefaultTimeout, "timeout for downloading watermark images")

	rootCmd.Flags().String("input-dir", "Input", "directory holding the designs to process")
	rootCmd.Flags().String("output-dir", "Output", "directory the mockups are written to")
	rootCmd.Flags().String("ledger", ledger.DefaultFile, "file keeping the per-mockup image totals")
	rootCmd.Flags().Int("workers", 0, "number of parallel workers (default: number of CPUs)")
	rootCmd.Flags().Bool("keep-inputs", false, "do not delete the designs after processing")

	viper.BindPFlag("config", flags.Lookup("config"))
	viper.BindPFlag("mockup-dir", flags.Lookup("mockup-dir"))
	viper.BindPFlag("log-level", flags.Lookup("log-level"))
	viper.BindPFlag("fetch-timeout", flags.Lookup("fetch-timeout"))
	viper.BindPFlag("input-dir", rootCmd.Flags().Lookup("input-dir"))
	viper.BindPFlag("output-dir", rootCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("ledger", rootCmd.Flags().Lookup("ledger"))
	viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	viper.BindPFlag("keep-inputs", rootCmd.Flags().Lookup("keep-inputs"))
}

// initSettings reads in the settings file and MOCKUP_ environment variables
func initSettings() {
	if settingsFile != "" {
		viper.SetConfigFile(settingsFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mockup-forge")
	}

	viper.SetEnvPrefix("MOCKUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using settings file:", viper.ConfigFileUsed())
	}
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func openForge(logger *slog.Logger, opts mockupforge.Options) (*mockupforge.Forge, error) {
	opts.ConfigPath = viper.GetString("config")
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.GetConfigPath()
	}
	opts.MockupDir = viper.GetString("mockup-dir")
	opts.FetchTimeout = viper.GetDuration("fetch-timeout")
	opts.Logger = logger

	if !utils.FileExists(opts.ConfigPath) {
		return nil, fmt.Errorf("configuration file %s not found", opts.ConfigPath)
	}
	if !utils.DirExists(opts.MockupDir) {
		return nil, fmt.Errorf("mockup directory %s not found", opts.MockupDir)
	}
	return mockupforge.Open(opts)
}

func runBatch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	inputDir := viper.GetString("input-dir")
	if !utils.DirExists(inputDir) {
		return fmt.Errorf("input directory %s not found", inputDir)
	}

	forge, err := openForge(logger, mockupforge.Options{
		InputDir:   inputDir,
		OutputDir:  viper.GetString("output-dir"),
		LedgerPath: viper.GetString("ledger"),
		Workers:    viper.GetInt("workers"),
		KeepInputs: viper.GetBool("keep-inputs"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	summary, err := forge.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processed %d input(s), generated %d mockup(s) in %s\n",
		summary.Report.Processed, summary.Report.Generated, time.Since(start).Round(time.Millisecond))
	for _, dir := range summary.Dirs {
		fmt.Fprintf(out, "  %s\n", dir)
	}
	for _, name := range summary.Ledger.Names() {
		fmt.Fprintf(out, "Total %s: %d\n", name, summary.Ledger[name])
	}
	fmt.Fprintf(out, "Total: %d\n", summary.Ledger.Total())
	return nil
}
