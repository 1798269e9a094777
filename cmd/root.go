package cmd

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tass-io/trainer/pkg/env"
	"github.com/tass-io/trainer/pkg/http"
	"github.com/tass-io/trainer/pkg/http/controller"
	"github.com/tass-io/trainer/pkg/launcher"
	"github.com/tass-io/trainer/pkg/registry"
	"github.com/tass-io/trainer/pkg/tools/log"
	"github.com/tass-io/trainer/pkg/trace"
	"github.com/tass-io/trainer/pkg/tracking"
	"github.com/tass-io/trainer/pkg/tracking/backend"
	"github.com/tass-io/trainer/pkg/trainer"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "trainer",
	Short: "train classifiers on request and track them in MLflow",
	Long: "trainer serves GET / on 0.0.0.0:8000. Every request trains seven classifiers " +
		"on the Iris dataset and logs one run per model to the tracking server.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              serve,
}

func Execute() error {
	return rootCmd.Execute()
}

// setup reads the config file and installs the logger
func setup(cmd *cobra.Command, args []string) error {
	viper.SetEnvPrefix(env.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if file := viper.GetString(env.ConfigFile); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}
	if err := log.Setup(viper.GetString(env.LogLevel), viper.GetString(env.LogFile), viper.GetBool(env.Debug)); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	zap.S().Debugw("config loaded", "file", viper.ConfigFileUsed())
	return nil
}

// newTrainer wires the tracking backend and the model registry
func newTrainer() (*trainer.Trainer, error) {
	client, err := backend.Open()
	if err != nil {
		return nil, err
	}
	return trainer.New(registry.Default(), client, &tracking.Autolog{}, trainer.ConfigFromViper()), nil
}

func serve(cmd *cobra.Command, args []string) error {
	closer, err := trace.TraceInit()
	if err != nil {
		return err
	}
	defer closer.Close()

	tr, err := newTrainer()
	if err != nil {
		return err
	}
	ui := launcher.New(viper.GetString(env.UICommand), viper.GetStringSlice(env.UIArgs))
	ctl := controller.New(tr, ui, viper.GetBool(env.LaunchUI))

	if viper.GetBool(env.Debug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	if err := http.RegisterRoute(r, ctl, http.Options{
		Rate:  viper.GetString(env.Rate),
		Debug: viper.GetBool(env.Debug),
	}); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", viper.GetString(env.Host), viper.GetInt(env.Port))
	srv := &stdhttp.Server{Addr: addr, Handler: r}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		zap.S().Infow("trainer listening", "addr", addr, "launchUI", viper.GetBool(env.LaunchUI))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	zap.S().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorw("http shutdown error", "err", err)
	}
	return ui.Shutdown(shutdownCtx)
}

// bind registers a flag and binds it to a viper key
func bind(flags *pflag.FlagSet, key, flag string) {
	if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
		panic(err)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (yaml, json or toml)")
	bind(pf, env.ConfigFile, "config")
	pf.Bool("debug", true, "debug logging, gin debug mode and pprof routes")
	bind(pf, env.Debug, "debug")
	pf.String("log-level", "", "log level, debug or info by default depending on --debug")
	bind(pf, env.LogLevel, "log-level")
	pf.String("log-file", "", "also write json logs to this file, rotated daily")
	bind(pf, env.LogFile, "log-file")

	pf.String("tracking-uri", env.DefaultTrackingURI, "tracking server uri")
	bind(pf, env.TrackingURI, "tracking-uri")
	pf.String("tracking-backend", env.DefaultBackend, "tracking backend: mlflow, local, redis or memory")
	bind(pf, env.TrackingBackend, "tracking-backend")
	pf.String("experiment", env.DefaultExperiment, "experiment the runs are logged to")
	bind(pf, env.TrackingExperiment, "experiment")
	pf.Bool("autolog", true, "log estimator parameters with every run")
	bind(pf, env.TrackingAutolog, "autolog")
	pf.Bool("print-credentials", false, "log the tracking password in clear text")
	bind(pf, env.TrackingPrintCredentials, "print-credentials")
	pf.String("tracking-dir", env.DefaultTrackingDir, "run directory of the local backend")
	bind(pf, env.TrackingDir, "tracking-dir")
	pf.String("redis-addr", env.DefaultRedisAddr, "redis address of the redis backend")
	bind(pf, env.RedisAddr, "redis-addr")
	pf.String("redis-password", "", "redis password of the redis backend")
	bind(pf, env.RedisPassword, "redis-password")
	pf.Int("redis-db", 0, "redis db of the redis backend")
	bind(pf, env.RedisDB, "redis-db")

	pf.Float64("test-size", env.DefaultTestSize, "holdout fraction of the dataset")
	bind(pf, env.TestSize, "test-size")
	pf.Int64("seed", env.DefaultSeed, "split seed")
	bind(pf, env.Seed, "seed")
	pf.String("trace-agent", "", "jaeger agent host:port, tracing is off when empty")
	bind(pf, env.TraceAgentHostPort, "trace-agent")

	f := rootCmd.Flags()
	f.StringP("host", "H", env.DefaultHost, "listen host")
	bind(f, env.Host, "host")
	f.IntP("port", "p", env.DefaultPort, "listen port")
	bind(f, env.Port, "port")
	f.String("rate", env.DefaultRate, "rate limit of the training route, like 100-S or 1000-H")
	bind(f, env.Rate, "rate")
	f.Bool("launch-ui", false, "start the tracking ui in the background on every request")
	bind(f, env.LaunchUI, "launch-ui")
	f.String("ui-command", env.DefaultUICommand, "tracking ui executable")
	bind(f, env.UICommand, "ui-command")
	f.StringSlice("ui-args", env.DefaultUIArgs, "tracking ui arguments")
	bind(f, env.UIArgs, "ui-args")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(trainCmd)
}
