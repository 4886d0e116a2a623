package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bibin-skaria/imgdump/engine"
	"github.com/bibin-skaria/imgdump/exporters"
	"github.com/bibin-skaria/imgdump/internal/config"
	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/logging"
	"github.com/bibin-skaria/imgdump/internal/types"
	"github.com/bibin-skaria/imgdump/source"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	image      string
	verbose    bool
	configPath string
	cacheDir   string
	source     string
	platform   string
	noCache    bool
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		var appErr *apperrors.Error
		if stderrors.As(err, &appErr) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", appErr.GetUserFriendlyMessage())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "imgdump",
		Short: "Inspect and extract container image layers",
		Long: `imgdump reconstructs the filesystem of a container image from its layers.
It can list the layers with the commands that created them, show what a single
layer adds and removes, and dump or extract any range of layers to disk while
honoring whiteout files.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.image, "image", "i", "", "Reference to the image that should be used")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable debug logs")
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: ~/.imgdump/config.yaml)")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "Cache directory (default: ~/.imgdump/cache)")
	flags.StringVar(&opts.source, "source", "", "Where to get the image: daemon, remote or archive (default: daemon)")
	flags.StringVar(&opts.platform, "platform", "", "Platform to pull for multi-arch images, e.g. linux/arm64")
	flags.BoolVar(&opts.noCache, "no-cache", false, "Do not read or write the archive cache")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")

	cmd.AddCommand(newDumpCommand(opts))
	cmd.AddCommand(newExtractCommand(opts))
	cmd.AddCommand(newLayerCommand(opts))
	cmd.AddCommand(newCacheCommand(opts))

	return cmd
}

// loadConfig merges the config file, the environment and the flags, in
// increasing order of precedence.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.CacheDir = opts.cacheDir
	}
	if flags.Changed("source") {
		cfg.Source = opts.source
	}
	if flags.Changed("platform") {
		cfg.Platform = opts.platform
	}
	if flags.Changed("no-cache") {
		cfg.NoCache = opts.noCache
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, apperrors.NewConfigurationError("init_logging", "invalid logging settings", err)
	}

	return cfg, logger, nil
}

// openSession acquires and unpacks the image named by --image
func openSession(cmd *cobra.Command, opts *globalOptions) (*engine.Session, error) {
	if opts.image == "" {
		return nil, apperrors.NewConfigurationError("open_session", "--image is required", nil)
	}

	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	var platform types.Platform
	if cfg.Platform != "" {
		if platform, err = types.ParsePlatform(cfg.Platform); err != nil {
			return nil, apperrors.NewConfigurationError("open_session", "invalid platform", err)
		}
	}

	src, err := source.New(source.Options{
		Kind:               cfg.Source,
		Platform:           platform,
		ExportConcurrency:  cfg.ExportConcurrency,
		InsecureRegistries: cfg.InsecureRegistries,
		Registries:         cfg.Registries,
		Retry:              &cfg.Retry,
		Logger:             logging.Component(logger, "source"),
	})
	if err != nil {
		return nil, err
	}

	var cache *source.Cache
	if !cfg.NoCache {
		cache = source.NewCache(cfg.CacheDir)
	}

	return engine.Open(cmd.Context(), engine.Options{
		Image:  opts.image,
		Source: src,
		Cache:  cache,
		Logger: logging.Component(logger, "engine"),
	})
}

// withSession runs fn against an open session and always closes it
func withSession(cmd *cobra.Command, opts *globalOptions, fn func(*engine.Session) error) error {
	session, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer session.Close()

	return fn(session)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func newDumpCommand(opts *globalOptions) *cobra.Command {
	var (
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump all image layers into output",
		Long: `Compose every layer of the image into the output. Whiteouts delete the
files they mark. If the output already exists, it will be overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *engine.Session) error {
				return s.Dump(output, format)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Path to output directory")
	cmd.Flags().StringVar(&format, "format", engine.DefaultFormat, fmt.Sprintf("Output format %v", exporters.ListExporters()))
	cmd.MarkFlagRequired("output")

	return cmd
}

func newExtractCommand(opts *globalOptions) *cobra.Command {
	var (
		path   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract a single file or directory from the image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *engine.Session) error {
				return s.Extract(path, output)
			})
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "", "Path to source in the image")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Path to output")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("output")

	return cmd
}

const layerFlagUsage = `Layer number as shown in the list output starting at 0.
Negative numbers count from the top, so -1 means the last layer.`

func newLayerCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layer",
		Short: "Investigate single layers",
	}

	cmd.AddCommand(newLayerListCommand(opts))
	cmd.AddCommand(newLayerInspectCommand(opts))
	cmd.AddCommand(newLayerDumpCommand(opts))
	cmd.AddCommand(newLayerExtractCommand(opts))

	return cmd
}

func newLayerListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all layers with their creation command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *engine.Session) error {
				history, err := s.List()
				if err != nil {
					return err
				}
				return printJSON(cmd, history)
			})
		},
	}
}

func newLayerInspectCommand(opts *globalOptions) *cobra.Command {
	var layer int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the files a layer adds and removes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *engine.Session) error {
				info, err := s.Inspect(layer)
				if err != nil {
					return err
				}
				return printJSON(cmd, info)
			})
		},
	}

	cmd.Flags().IntVarP(&layer, "layer", "l", 0, layerFlagUsage)
	cmd.MarkFlagRequired("layer")

	return cmd
}

func newLayerDumpCommand(opts *globalOptions) *cobra.Command {
	var (
		layer  int
		stack  bool
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump a single image layer, preserving whiteout files",
		Long: `Dump a single image layer. Whiteout files are kept as they are in the layer.
With --stack the preceding layers are composed first and whiteouts are applied,
so --layer -1 --stack is the same as a full dump.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *engine.Session) error {
				return s.DumpLayer(layer, stack, output, format)
			})
		},
	}

	cmd.Flags().IntVarP(&layer, "layer", "l", 0, layerFlagUsage)
	cmd.Flags().BoolVar(&stack, "stack", false, "Include the preceding layers in the output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Path to output directory")
	cmd.Flags().StringVar(&format, "format", engine.DefaultFormat, fmt.Sprintf("Output format %v", exporters.ListExporters()))
	cmd.MarkFlagRequired("layer")
	cmd.MarkFlagRequired("output")

	return cmd
}

func newLayerExtractCommand(opts *globalOptions) *cobra.Command {
	var (
		layer  int
		path   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract a file or directory from a single layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *engine.Session) error {
				return s.ExtractLayer(layer, path, output)
			})
		},
	}

	cmd.Flags().IntVarP(&layer, "layer", "l", 0, layerFlagUsage)
	cmd.Flags().StringVarP(&path, "path", "p", "", "Path to source in the image layer")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Path to output")
	cmd.MarkFlagRequired("layer")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("output")

	return cmd
}

func newCacheCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the image archive cache",
	}

	cmd.AddCommand(newCacheInfoCommand(opts))
	cmd.AddCommand(newCachePruneCommand(opts))

	return cmd
}

func newCacheInfoCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache statistics",
		Long:  "Display information about the archive cache including size and age.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			info, err := source.NewCache(cfg.CacheDir).Info()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache Directory: %s\n", info.Dir)
			fmt.Fprintf(out, "Total Size: %s\n", formatBytes(info.TotalSize))
			fmt.Fprintf(out, "Total Files: %d\n", info.TotalFiles)
			if !info.Oldest.IsZero() {
				fmt.Fprintf(out, "Oldest Entry: %s\n", info.Oldest.Format(time.RFC3339))
			}

			return nil
		},
	}
}

func newCachePruneCommand(opts *globalOptions) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached archives",
		Long:  "Remove cached archives older than --max-age. A zero age removes everything.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			cache := source.NewCache(cfg.CacheDir)
			removed, freed, err := cache.Prune(maxAge)
			if err != nil {
				return err
			}

			info, err := cache.Info()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache pruned successfully!\n")
			fmt.Fprintf(out, "Removed %d files\n", removed)
			fmt.Fprintf(out, "Freed %s\n", formatBytes(freed))
			fmt.Fprintf(out, "Remaining: %d files, %s\n", info.TotalFiles, formatBytes(info.TotalSize))

			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Remove archives older than this")

	return cmd
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
