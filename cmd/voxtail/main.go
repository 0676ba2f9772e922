package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/voxtail/voxtail/internal/capacity"
	"github.com/voxtail/voxtail/internal/config"
	"github.com/voxtail/voxtail/internal/daemon"
	"github.com/voxtail/voxtail/internal/health"
	. "github.com/voxtail/voxtail/internal/logging"
	"github.com/voxtail/voxtail/internal/paths"
	"github.com/voxtail/voxtail/internal/stt"
)

const version = "0.1.0"

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:    "voxtail",
		Usage:   "watches for WhatsApp voice notes and transcribes them locally",
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the transcription daemon (default)",
				Action: runDaemon,
			},
			{
				Name:   "health",
				Usage:  "Check hardware, model fit, tools and ledger state",
				Action: runHealth,
			},
			{
				Name:  "config",
				Usage: "Print the effective configuration",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Write the default config file",
						Action: runConfigInit,
					},
				},
				Action: runConfigShow,
			},
			{
				Name:  "model",
				Usage: "Manage whisper models",
				Subcommands: []*cli.Command{
					{
						Name:  "download",
						Usage: "Download the configured (or named) model",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "name",
								Usage: "Model file name, e.g. ggml-small.bin",
							},
						},
						Action: runModelDownload,
					},
					{
						Name:   "suggest",
						Usage:  "Recommend a model size for this machine",
						Action: runModelSuggest,
					},
				},
			},
		},
		// Bare "voxtail" runs the daemon.
		Action: runDaemon,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func initLogging(c *cli.Context) {
	level := LevelInfo
	if c.Bool("debug") {
		level = LevelDebug
	}
	Init(&Config{
		Level:      level,
		TimeFormat: "15:04:05",
	})
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runDaemon(c *cli.Context) error {
	initLogging(c)
	L_info("voxtail %s starting", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

func runHealth(c *cli.Context) error {
	initLogging(c)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return health.Run(cfg)
}

func runConfigShow(c *cli.Context) error {
	initLogging(c)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runConfigInit(c *cli.Context) error {
	initLogging(c)
	cfg := config.Default()
	if err := cfg.Save(); err != nil {
		return err
	}
	path, _ := paths.DefaultConfigPath()
	fmt.Printf("wrote %s\n", path)
	return nil
}

func runModelDownload(c *cli.Context) error {
	initLogging(c)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := c.String("name")
	if name == "" {
		name = cfg.Model.Model
	}

	m := stt.GetModel(name)
	if m == nil {
		return fmt.Errorf("unknown model %q; known models are ggml-{tiny,base,small,medium,large-v3}[.en].bin", name)
	}

	modelsDir, err := paths.ExpandTilde(cfg.Model.ModelsDir)
	if err != nil {
		return err
	}
	if stt.IsModelDownloaded(modelsDir, name) {
		fmt.Printf("%s already present in %s\n", name, modelsDir)
		return nil
	}
	return stt.DownloadModel(m, cfg.Model.ModelsDir)
}

func runModelSuggest(c *cli.Context) error {
	initLogging(c)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	profile := capacity.Sample()
	budget := capacity.Budget{
		SystemMemoryFactor: cfg.Capacity.SystemMemoryFactor,
		VRAMFactor:         cfg.Capacity.VRAMFactor,
	}
	family := capacity.Recommend(profile, budget)
	usable, basis := capacity.Usable(profile, budget)

	fmt.Printf("usable memory: %.1f GB (%s)\n", usable, basis)
	fmt.Printf("recommended:   %s", family)
	if m := stt.DefaultModelForFamily(family); m != nil {
		fmt.Printf(" (%s)", m.Name)
	}
	fmt.Println()
	return nil
}
