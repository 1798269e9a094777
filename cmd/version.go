package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set with -ldflags "-X github.com/tass-io/trainer/cmd.Version=..."
var Version = "v0.1.0"

type VersionInfo struct {
	TrainerVersion string
	GoVersion      string
	Compiler       string
	Platform       string
}

func (info *VersionInfo) String() string {
	return "{Trainer version: " + info.TrainerVersion + ", Go version: " +
		info.GoVersion + ", Compiler version: " + info.Compiler + ", Platform: " + info.Platform + "}"
}

func currentVersion() *VersionInfo {
	return &VersionInfo{
		TrainerVersion: Version,
		GoVersion:      runtime.Version(),
		Compiler:       runtime.Compiler,
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Version of the trainer.",
	Long:  "Version of the trainer.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), currentVersion().String())
	},
}
