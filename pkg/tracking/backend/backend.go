// Package backend builds the tracking client named by the tracking.backend key
package backend

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/tass-io/trainer/pkg/env"
	"github.com/tass-io/trainer/pkg/tracking"
	"github.com/tass-io/trainer/pkg/tracking/localstore"
	"github.com/tass-io/trainer/pkg/tracking/memory"
	"github.com/tass-io/trainer/pkg/tracking/mlflow"
	"github.com/tass-io/trainer/pkg/tracking/redisstore"
	"go.uber.org/zap"
)

const (
	MLflow = "mlflow"
	Local  = "local"
	Redis  = "redis"
	Memory = "memory"
)

// Open returns a client for the configured backend
func Open() (tracking.Client, error) {
	name := viper.GetString(env.TrackingBackend)
	experiment := viper.GetString(env.TrackingExperiment)
	zap.S().Infow("open tracking backend", "backend", name, "experiment", experiment)
	switch name {
	case MLflow, "":
		return mlflow.New(experiment), nil
	case Local:
		return localstore.New(viper.GetString(env.TrackingDir), experiment), nil
	case Redis:
		return redisstore.Dial(
			viper.GetString(env.RedisAddr),
			viper.GetString(env.RedisPassword),
			viper.GetInt(env.RedisDB),
			experiment,
		), nil
	case Memory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown tracking backend %q", name)
	}
}
