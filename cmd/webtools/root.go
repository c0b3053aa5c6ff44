package main

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solarecho3/web-tools/pkg/client"
	"github.com/solarecho3/web-tools/pkg/config"
	"github.com/solarecho3/web-tools/pkg/logging"
	"github.com/solarecho3/web-tools/pkg/snapshot"
	"github.com/solarecho3/web-tools/pkg/store"
)

// app carries what the subcommands share once the root has loaded the
// configuration.
type app struct {
	configFile string
	logLevel   string
	pretty     bool

	cfg    *config.Config
	logger zerolog.Logger
	redis  *redis.Client
}

// execute runs the command line in args. The redis client opened during
// setup is closed on every path, including failed commands.
func (a *app) execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	defer a.close()

	root := a.command()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "webtools",
		Short: "Collect Twitter API v2 data into local SQLite stores",
		Long: `webtools snapshots accounts and searches through the Twitter API v2,
appending every capture to per-user SQLite stores under the data directory.

Configuration is read from config.yaml (working directory or
$HOME/.web-tools), WEBTOOLS_* environment variables and a .env file.
The bearer token is read from the credential file (keys.json by default).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default is ./config.yaml or $HOME/.web-tools/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.pretty, "pretty", false, "human-readable log output")

	root.AddCommand(
		newSnapshotCmd(a),
		newSearchCmd(a),
		newTablesCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)

	return root
}

// setup loads the configuration, configures logging and connects the
// optional redis mirror.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("pretty") {
		cfg.Log.Pretty = a.pretty
	}

	a.cfg = cfg
	a.logger = logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(contextOf(cmd)).Err(); err != nil {
			a.logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, rate-limit mirror disabled")
			a.redis.Close()
			a.redis = nil
		} else {
			a.logger.Debug().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
	}

	return nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
}

// session reads the bearer token and opens an API session. A missing or
// malformed credential file aborts the command.
func (a *app) session() (*client.Session, error) {
	token, err := config.LoadToken(a.cfg.CredentialsFile)
	if err != nil {
		a.logger.Error().Err(err).Str("path", a.cfg.CredentialsFile).Msg("Credentials unavailable")
		return nil, err
	}

	sessCfg := a.cfg.Session(token)
	sessCfg.Redis = a.redis

	sess, err := client.New(sessCfg)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// runner wires a session to a store writer under the data directory.
func (a *app) runner(sess *client.Session) *snapshot.Runner {
	writer := store.NewWriter(store.Layout{Dir: a.cfg.DataDir}, logging.NewLogger("store"))
	r := snapshot.NewRunner(sess, writer, logging.NewLogger("snapshot"))
	r.SetCollections(a.cfg.Endpoints)
	return r
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
