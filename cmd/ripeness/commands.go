package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	ripeness "github.com/menta2k/fruit-ripeness"
	"github.com/menta2k/fruit-ripeness/internal/config"
	"github.com/menta2k/fruit-ripeness/internal/logging"
	"github.com/menta2k/fruit-ripeness/internal/metrics"
	"github.com/menta2k/fruit-ripeness/internal/server"
	"github.com/menta2k/fruit-ripeness/internal/utils"
	"github.com/menta2k/fruit-ripeness/pkg/pipeline"
	"github.com/menta2k/fruit-ripeness/pkg/processing"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a JSON or YAML config file",
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "Path to the ONNX model (overrides config)",
		},
		&cli.StringFlag{
			Name:  "labels",
			Usage: "Path to the labels JSON array (overrides config)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "Listen port (overrides config)",
			},
		},
		Action: serveAction,
	}
}

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:      "predict",
		Usage:     "Run the pipeline on images and print JSON results",
		ArgsUsage: "<file|dir|url>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "heatmap-dir",
				Usage: "Write thermal PNGs to this directory",
			},
			&cli.BoolFlag{
				Name:  "no-gate",
				Usage: "Disable the color gate",
			},
			&cli.Float64Flag{
				Name:  "threshold",
				Usage: "Gate threshold percentage (overrides config)",
				Value: -1,
			},
		},
		Action: predictAction,
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, c.App.Version)
			return nil
		},
	}
}

// loadConfig resolves defaults, the config file, the environment and flags, in that order
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()

	path := c.String("config")
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if v := c.String("model"); v != "" {
		cfg.Model.Path = v
	}
	if v := c.String("labels"); v != "" {
		cfg.Model.LabelsPath = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if v := c.String("port"); v != "" {
		cfg.Server.Port = v
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer logger.Sync()

	rec := metrics.New()

	svc, err := ripeness.Open(*cfg, logger, ripeness.WithRecorder(rec))
	if err != nil {
		logger.Error("model load failed, serving without a model", zap.Error(err))
		svc, err = ripeness.New(*cfg, nil, logger, ripeness.WithRecorder(rec))
		if err != nil {
			return err
		}
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(svc, rec, cfg.Server, logger).ListenAndServe(ctx)
}

func predictAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("at least one image path or URL required", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if c.Bool("no-gate") {
		cfg.Gate.Enabled = false
	}
	if t := c.Float64("threshold"); t >= 0 {
		cfg.Gate.Threshold = t
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	level := cfg.Logging.Level
	if c.String("log-level") == "" {
		level = "warn"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer logger.Sync()

	svc, err := ripeness.Open(*cfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer svc.Close()

	heatmapDir := c.String("heatmap-dir")
	if heatmapDir != "" {
		if err := utils.EnsureDir(heatmapDir); err != nil {
			return err
		}
	}

	sources, err := expandSources(c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	processor := processing.NewProcessor(processing.WithLogger(logger))
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")

	failed := 0
	for _, source := range sources {
		result, err := predictOne(c.Context, svc, processor, logger, source)
		if err != nil {
			failed++
			fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", source, err)
			continue
		}

		if heatmapDir != "" && result.ThermalImage != nil {
			out := utils.HeatmapFilename(source, heatmapDir)
			if err := os.WriteFile(out, result.ThermalImage.PNG, 0o644); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "%s: writing heatmap: %v\n", source, err)
			} else {
				logger.Info("wrote heatmap", zap.String("path", out))
			}
		}

		if err := enc.Encode(struct {
			Source string `json:"source"`
			*pipeline.Result
		}{source, result}); err != nil {
			return err
		}
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d images failed", failed, len(sources)), 1)
	}
	return nil
}

func predictOne(ctx context.Context, svc *ripeness.Service, processor *processing.Processor, logger *zap.Logger, source string) (*pipeline.Result, error) {
	data, err := processor.ReadSource(ctx, source)
	if err != nil {
		return nil, err
	}
	logger.Debug("read source",
		zap.String("source", source),
		zap.String("size", utils.FormatFileSize(int64(len(data)))))
	return svc.Predict(ctx, data)
}

// expandSources replaces directories with the images they contain
func expandSources(args []string) ([]string, error) {
	var sources []string
	for _, arg := range args {
		if utils.IsURL(arg) || !utils.DirExists(arg) {
			sources = append(sources, arg)
			continue
		}
		files, err := utils.ListImageFiles(arg)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", arg, err)
		}
		sources = append(sources, files...)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no images found")
	}
	return sources, nil
}
