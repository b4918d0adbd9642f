package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/picslurp/internal/config"
	"github.com/ligustah/picslurp/internal/storage"
)

// commonFlags are shared by every command that works on a URL list.
type commonFlags struct {
	fs         *flag.FlagSet
	configPath *string
	input      *string
	output     *string
	bucket     *string
	logLevel   *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		fs:         fs,
		configPath: fs.String("config", "", "YAML configuration file"),
		input:      fs.String("input", "", "File with one image URL per line (default data.txt)"),
		output:     fs.String("output", "", "Output directory (default pics)"),
		bucket:     fs.String("bucket", "", "Output bucket URL (s3://, gs://, file://, mem://); overrides -output"),
		logLevel:   fs.String("log-level", "", "Log level: debug, info, warning, error (default warning)"),
	}
}

// load resolves the configuration from defaults, file, environment and
// flags, in that order. override carries command-specific flag values.
func (c *commonFlags) load(override config.Config) (config.Config, error) {
	cfg := config.Default()
	if *c.configPath != "" {
		fileCfg, err := config.LoadFromFile(*c.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override.Input = *c.input
	override.OutputDir = *c.output
	override.Bucket = *c.bucket
	override.LogLevel = *c.logLevel
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// isSet reports whether the named flag was given on the command line.
func (c *commonFlags) isSet(name string) bool {
	set := false
	c.fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. onSignal,
// if not nil, runs once when the first signal arrives.
func signalContext(onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// openStore opens the configured bucket and wraps it in a Store. The
// returned close function releases the bucket. A local output directory is
// created only when create is set.
func openStore(ctx context.Context, cfg config.Config, create bool) (*storage.Store, func(), error) {
	open := storage.OpenExistingBucket
	if create {
		open = storage.OpenBucket
	}
	bkt, err := open(ctx, cfg.Bucket, cfg.OutputDir)
	if err != nil {
		return nil, nil, err
	}
	store := storage.New(bkt, storage.Options{
		FilenameLength: cfg.FilenameLength,
		Extension:      cfg.Extension,
	})
	return store, func() { bkt.Close() }, nil
}

// destination names where images are stored, for status lines.
func destination(cfg config.Config) string {
	if cfg.Bucket != "" {
		return cfg.Bucket
	}
	return cfg.OutputDir
}

func configError(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return ExitConfigError
}
