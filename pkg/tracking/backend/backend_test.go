package backend

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/tass-io/trainer/pkg/env"
	"github.com/tass-io/trainer/pkg/tracking/localstore"
	"github.com/tass-io/trainer/pkg/tracking/memory"
	"github.com/tass-io/trainer/pkg/tracking/mlflow"
	"github.com/tass-io/trainer/pkg/tracking/redisstore"
)

func TestOpen(t *testing.T) {
	testcases := []struct {
		caseName string
		skipped  bool
		backend  string
		check    func(v interface{}) bool
		wantErr  bool
	}{
		{
			caseName: "default is mlflow",
			backend:  "",
			check:    func(v interface{}) bool { _, ok := v.(*mlflow.Client); return ok },
		},
		{
			caseName: "local",
			backend:  Local,
			check:    func(v interface{}) bool { _, ok := v.(*localstore.Store); return ok },
		},
		{
			caseName: "redis",
			backend:  Redis,
			check:    func(v interface{}) bool { _, ok := v.(*redisstore.Store); return ok },
		},
		{
			caseName: "memory",
			backend:  Memory,
			check:    func(v interface{}) bool { _, ok := v.(*memory.Store); return ok },
		},
		{
			caseName: "unknown backend",
			backend:  "sqlite",
			wantErr:  true,
		},
	}
	defer viper.Set(env.TrackingBackend, nil)
	for _, testcase := range testcases {
		if testcase.skipped {
			continue
		}
		Convey(testcase.caseName, t, func() {
			viper.Set(env.TrackingBackend, testcase.backend)
			client, err := Open()
			if testcase.wantErr {
				So(err, ShouldNotBeNil)
				return
			}
			So(err, ShouldBeNil)
			So(testcase.check(client), ShouldBeTrue)
		})
	}
}
