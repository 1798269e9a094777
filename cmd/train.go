package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tass-io/trainer/pkg/trainer"
	"gopkg.in/yaml.v3"
)

// trainCmd runs the same cycle as GET / once and prints the report
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "run one training cycle and print the report",
	Long:  "run one training cycle and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, err := newTrainer()
		if err != nil {
			return err
		}
		report, runErr := tr.Run(context.Background())
		if report != nil {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(report); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
		}
		if runErr != nil {
			return runErr
		}
		fmt.Fprintln(cmd.OutOrStdout(), trainer.CompletionMessage)
		return nil
	},
}
