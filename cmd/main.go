package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/bidsify/internal/adapters/header"
	app "github.com/okian/bidsify/internal/app"
	"github.com/okian/bidsify/internal/config"
	"github.com/okian/bidsify/internal/domain/events"
	"github.com/okian/bidsify/internal/domain/metadata"
	"github.com/okian/bidsify/internal/domain/types"
	"github.com/okian/bidsify/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bidsify",
		Short: "Reorganize raw neuroimaging data into a BIDS dataset",
		Long: `bidsify renames raw scans, behavioural logs and physiological recordings
of every subject (and session) into a BIDS tree, cascades the configured
metadata into JSON sidecars and converts Presentation logs to event TSVs.`,
		Version:      metadata.Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error (overrides the config)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")

	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a raw project directory",
		Args:  cobra.NoArgs,
		RunE:  runConvert,
	}
	convertCmd.Flags().StringP("directory", "d", "", "Raw data directory holding the subject directories (default: current directory)")
	convertCmd.Flags().StringP("out", "o", "", "Output BIDS directory (default: <directory>/../bids)")
	convertCmd.Flags().StringP("config", "c", "", "Config file, YAML or JSON (default: ./config.yml)")
	convertCmd.Flags().Bool("keep-logs", false, "Keep behavioural logs after converting them")

	eventsCmd := &cobra.Command{
		Use:   "events <log>",
		Short: "Convert one Presentation log to an events TSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runEvents,
	}
	eventsCmd.Flags().String("config", "", "Task config file (default: <task>.{json,yml,yaml} next to the log)")
	eventsCmd.Flags().Bool("remove-source", false, "Remove the log after a successful conversion")

	rootCmd.AddCommand(convertCmd, eventsCmd)
	return rootCmd
}

func runConvert(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := initLogging(cmd, ""); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("directory")
	if dir == "" {
		dir = cwd
	}
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = filepath.Join(cwd, "config.yml")
	}
	if _, err := os.Stat(cfgPath); err != nil {
		return fmt.Errorf("config file %s does not exist", cfgPath)
	}
	out, _ := cmd.Flags().GetString("out")
	level, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.Load(ctx, cfgPath, dir, config.WithOutDir(out), config.WithLogLevel(level))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Options.LogFile != "" {
		if err := initLogging(cmd, cfg.Options.LogFile); err != nil {
			return err
		}
	}
	if err := logger.SetLevelString(cfg.Options.LogLevel); err != nil {
		return err
	}

	keepLogs, _ := cmd.Flags().GetBool("keep-logs")
	svc, err := app.New(cfg,
		app.WithLogger(logger.Named("bidsify")),
		app.WithHeaderFunc(probeHeader),
		app.WithKeepEventLogs(keepLogs),
	)
	if err != nil {
		return err
	}

	rep, err := svc.Run(ctx)
	if errors.Is(err, app.ErrUnitsFailed) {
		for _, u := range rep.Units {
			if u.Status == types.StatusFailed {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", u.Subject, u.Session, u.Reason)
			}
		}
	}
	return err
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initLogging(cmd, ""); err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if err := logger.SetLevelString(level); err != nil {
			return err
		}
	}

	logPath := args[0]
	cfgPath, _ := cmd.Flags().GetString("config")
	remove, _ := cmd.Flags().GetBool("remove-source")
	conv := events.NewConverter(filepath.Dir(logPath), events.WithKeepSource(!remove))

	var (
		res events.Result
		err error
	)
	if cfgPath == "" {
		res, err = conv.ConvertFile(ctx, logPath)
	} else {
		var task events.TaskConfig
		if task, err = events.LoadTaskConfig(cfgPath); err != nil {
			return err
		}
		res, err = conv.Convert(ctx, logPath, task)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events\n", res.Output, res.Events)
	return nil
}

func initLogging(cmd *cobra.Command, file string) error {
	jsonLogs, _ := cmd.Flags().GetBool("log-json")
	if err := logger.Init(logger.WithFile(file), logger.WithJSON(jsonLogs)); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	return nil
}

// probeHeader adapts the image header readers to the metadata cascade.
func probeHeader(path string) (metadata.ImageInfo, error) {
	info, err := header.Probe(path)
	if err != nil {
		return metadata.ImageInfo{}, err
	}
	return metadata.ImageInfo{RepetitionTime: info.RepetitionTime, Slices: info.Slices}, nil
}
