package main

import (
	"fmt"
	"os"

	"webpconv/codec"
	"webpconv/logger"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Config struct {
	InputPath  string `toml:"-"`
	OutputDir  string `toml:"-"`
	ConfigFile string `toml:"-"`
	Quality    int    `toml:"quality"`
	Lossless   bool   `toml:"lossless"`
	Method     int    `toml:"method"`
	Verbose    bool   `toml:"verbose"`
	LogJSON    bool   `toml:"log_json"`
}

var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// fileKeys maps TOML keys to the flags they provide defaults for.
var fileKeys = map[string]string{
	"quality":  "quality",
	"lossless": "lossless",
	"method":   "method",
	"verbose":  "verbose",
	"log_json": "log-json",
}

// NewRootCommand builds the convert-to-webp command. run is called with a
// validated configuration.
func NewRootCommand(run func(*Config) error) *cobra.Command {
	cfg := &Config{}
	var showVersion bool

	cmd := &cobra.Command{
		Use:   "convert-to-webp [flags] in_dir",
		Short: "Convert images to webp",
		Long: `Convert every image under in_dir (a file or a directory) to WebP.

Outputs mirror the input tree under the output directory. Animated GIFs
become animated WebPs. A details.csv manifest describing every file is
written to the output directory when the run finishes.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				console := logger.NewConsole(&logger.RichLoggerOptions{Output: cmd.OutOrStdout()})
				console.Box("convert-to-webp version information", versionInfo())
				return nil
			}

			if cfg.ConfigFile != "" {
				if err := cfg.loadFile(cfg.ConfigFile, cmd.Flags()); err != nil {
					return err
				}
			}

			if err := cfg.validate(); err != nil {
				return err
			}

			cfg.InputPath = args[0]
			if _, err := os.Stat(cfg.InputPath); err != nil {
				return fmt.Errorf("error: %w", err)
			}

			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.OutputDir, "out", "o", "", "output directory (required)")
	flags.IntVarP(&cfg.Quality, "quality", "q", codec.DefaultQuality, "converted quality (0-100)")
	flags.BoolVarP(&cfg.Lossless, "lossless", "l", false, "encode image losslessly, quality is ignored")
	flags.IntVarP(&cfg.Method, "method", "m", codec.DefaultMethod, "encoding effort (0-6, higher is slower and smaller)")
	flags.StringVarP(&cfg.ConfigFile, "config", "c", "", "TOML file with default settings")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log every file and print a summary")
	flags.BoolVar(&cfg.LogJSON, "log-json", false, "emit log records as JSON lines")
	flags.BoolVar(&showVersion, "version", false, "show version information")

	return cmd
}

// loadFile applies values from a TOML file to every setting that was not
// given explicitly on the command line.
func (cfg *Config) loadFile(path string, flags *pflag.FlagSet) error {
	var file Config
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return fmt.Errorf("error reading config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("error: unknown keys in config %s: %v", path, undecoded)
	}

	for key, flag := range fileKeys {
		if !md.IsDefined(key) || flags.Changed(flag) {
			continue
		}
		switch key {
		case "quality":
			cfg.Quality = file.Quality
		case "lossless":
			cfg.Lossless = file.Lossless
		case "method":
			cfg.Method = file.Method
		case "verbose":
			cfg.Verbose = file.Verbose
		case "log_json":
			cfg.LogJSON = file.LogJSON
		}
	}

	return nil
}

func (cfg *Config) validate() error {
	if cfg.OutputDir == "" {
		return fmt.Errorf(`error: required flag "out" not set`)
	}
	if cfg.Quality < 0 || cfg.Quality > 100 {
		return fmt.Errorf("error: quality must be in range 0-100")
	}
	if cfg.Method < 0 || cfg.Method > 6 {
		return fmt.Errorf("error: encoding method must be in range 0-6")
	}
	return nil
}

func (cfg *Config) Encoder() codec.Encoder {
	return codec.Encoder{
		Quality:  cfg.Quality,
		Lossless: cfg.Lossless,
		Method:   cfg.Method,
	}
}

func versionInfo() string {
	return fmt.Sprintf("Version: %s\nBuild date: %s\nGit commit: %s", Version, BuildDate, GitCommit)
}
