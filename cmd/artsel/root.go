package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/artsel/internal/config"
	"github.com/Sternrassler/artsel/pkg/client"
	"github.com/Sternrassler/artsel/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// annotationOwnsScreen marks commands that draw on the terminal; they only log
// to log.file.
const annotationOwnsScreen = "artsel/owns-screen"

// app is the state shared by all subcommands once the root pre-run has loaded
// config and logging.
type app struct {
	v       *viper.Viper
	cfgPath string

	cfg    config.Config
	logger zerolog.Logger
	closer io.Closer
}

func newRootCmd(ver string) *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:           "artsel",
		Short:         "Select artworks across pages of the artworks API",
		Version:       ver,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "config file (default ~/.config/artsel/config.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error, disabled")
	flags.Bool("pretty-logs", false, "human-readable console logs")
	flags.String("redis-addr", "", "redis address for the page cache (empty disables caching)")
	flags.String("base-url", "", "artworks collection URL")
	flags.Int("page-size", 0, "rows per page")

	bindFlag(a.v, "log.level", cmd, "log-level")
	bindFlag(a.v, "log.pretty", cmd, "pretty-logs")
	bindFlag(a.v, "redis.addr", cmd, "redis-addr")
	bindFlag(a.v, "api.base_url", cmd, "base-url")
	bindFlag(a.v, "api.page_size", cmd, "page-size")

	cmd.AddCommand(newServeCmd(a), newTUICmd(a), newSelectCmd(a))
	return cmd
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// init loads the configuration and sets up the global logger.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	if cmd.Annotations[annotationOwnsScreen] == "true" && logCfg.File == "" {
		logCfg.Level = logging.LevelDisabled
	}

	logger, closer, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closer = closer

	a.logger.Debug().
		Str("command", cmd.Name()).
		Str("base_url", cfg.API.BaseURL).
		Int("page_size", cfg.API.PageSize).
		Bool("cache", cfg.Redis.Addr != "").
		Msg("Configuration loaded")
	return nil
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// newClient builds the API client. Redis is connected only when redis.addr is
// set; the returned cleanup closes both.
func (a *app) newClient(ctx context.Context) (*client.Client, func(), error) {
	cc := a.cfg.ClientConfig()

	var rdb *redis.Client
	if a.cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			DB:       a.cfg.Redis.DB,
			Password: a.cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
		}
		a.logger.Info().Str("addr", a.cfg.Redis.Addr).Msg("Connected to Redis")
		cc.Redis = rdb
	}

	c, err := client.New(cc)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, fmt.Errorf("create client: %w", err)
	}

	cleanup := func() {
		_ = c.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	return c, cleanup, nil
}
