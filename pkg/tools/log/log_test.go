package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSetup(t *testing.T) {
	testcases := []struct {
		caseName  string
		skipped   bool
		level     string
		debug     bool
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{caseName: "debug defaults to debug level", debug: true, wantLevel: zapcore.DebugLevel},
		{caseName: "release defaults to info level", wantLevel: zapcore.InfoLevel},
		{caseName: "explicit level wins", level: "warn", debug: true, wantLevel: zapcore.WarnLevel},
		{caseName: "unknown level", level: "loud", wantErr: true},
	}
	for _, testcase := range testcases {
		if testcase.skipped {
			continue
		}
		Convey(testcase.caseName, t, func() {
			err := Setup(testcase.level, "", testcase.debug)
			if testcase.wantErr {
				So(err, ShouldNotBeNil)
				return
			}
			So(err, ShouldBeNil)
			So(zap.L().Core().Enabled(testcase.wantLevel), ShouldBeTrue)
			if testcase.wantLevel > zapcore.DebugLevel {
				So(zap.L().Core().Enabled(testcase.wantLevel-1), ShouldBeFalse)
			}
		})
	}

	Convey("records are teed into the log file", t, func() {
		file := filepath.Join(t.TempDir(), "trainer.log")
		So(Setup("info", file, false), ShouldBeNil)
		zap.S().Infow("model trained", "model", "LR")
		_ = zap.L().Sync()

		matches, err := filepath.Glob(file + "_*")
		So(err, ShouldBeNil)
		So(matches, ShouldHaveLength, 1)
		data, err := os.ReadFile(matches[0])
		So(err, ShouldBeNil)
		So(strings.Contains(string(data), `"model":"LR"`), ShouldBeTrue)
	})
}
