package cmd

import (
	"bytes"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/tass-io/trainer/pkg/env"
	"github.com/tass-io/trainer/pkg/trainer"
	"gopkg.in/yaml.v3"
)

func execute(args ...string) (string, error) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetOut(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	Convey("version prints build information", t, func() {
		out, err := execute("version")
		So(err, ShouldBeNil)
		So(out, ShouldContainSubstring, "Trainer version: "+Version)
	})
}

func TestTrain(t *testing.T) {
	Convey("train runs one cycle against the memory backend", t, func() {
		out, err := execute("train", "--tracking-backend", "memory", "--debug=false")
		So(err, ShouldBeNil)
		So(viper.GetString(env.TrackingBackend), ShouldEqual, "memory")
		So(out, ShouldContainSubstring, trainer.CompletionMessage)

		var report trainer.Report
		document := strings.Split(out, trainer.CompletionMessage)[0]
		So(yaml.Unmarshal([]byte(document), &report), ShouldBeNil)
		So(report.TestSize, ShouldEqual, 45)
		So(report.Models, ShouldHaveLength, 7)
	})

	Convey("an unknown backend is refused", t, func() {
		_, err := execute("train", "--tracking-backend", "sqlite")
		So(err, ShouldNotBeNil)
	})
}
