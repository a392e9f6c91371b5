package main

import (
	"fmt"

	"github.com/fluxfuzzer/ltesec/internal/scenario"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario files or directories...>",
		Short: "Parse and validate scenario files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			scenarios, err := scenario.NewStrictParser().ParsePaths(args)
			if err != nil {
				return usageError(err)
			}
			for _, s := range scenarios {
				fmt.Fprintf(cmd.OutOrStdout(), "[+] %s: %d testcase(s) (%s)\n", s.Name, len(s.Testcases), s.Source)
			}
			return nil
		},
	}
}
