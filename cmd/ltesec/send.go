package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/client"
	"github.com/fluxfuzzer/ltesec/internal/scenario"
	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <trace.jsonl>",
		Short: "Forward a recorded JSONL trace to a running ltesec server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			events, err := scenario.ReadTraceFile(args[0])
			if err != nil {
				return usageError(err)
			}

			opts := client.DefaultOptions()
			opts.BaseURL = url
			opts.Timeout = timeout
			c := client.New(opts)
			defer c.CloseIdleConnections()

			out := cmd.OutOrStdout()
			rejected := 0
			for i, ev := range events {
				if err := forward(c, ev); err != nil {
					var apiErr *client.APIError
					if !errors.As(err, &apiErr) {
						return fmt.Errorf("event %d: %w", i+1, err)
					}
					rejected++
					fmt.Fprintf(out, "[!] event %d (%s): %v\n", i+1, ev.Type, err)
				}
			}

			pass, err := c.Result()
			if err != nil {
				return err
			}
			if !pass {
				fmt.Fprintf(out, "[*] sent %d events, %d rejected, server verdict: FAIL\n", len(events), rejected)
				return errFailed
			}
			fmt.Fprintf(out, "[*] sent %d events, %d rejected, server verdict: PASS\n", len(events), rejected)
			return nil
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", client.DefaultOptions().BaseURL, "Base URL of the ltesec server")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Per request timeout")
	return cmd
}

// forward reports one trace event through c, pinned to its testcase id if it has one
func forward(c *client.Client, ev types.Event) error {
	if ev.Type == types.EventStart {
		_, err := c.StartTestcase(secalg.CapabilityMask(ev.EIAMask), secalg.CapabilityMask(ev.EEAMask))
		return err
	}
	target := c
	if ev.TestcaseID != 0 {
		target = c.ForTestcase(testbench.TestcaseID(ev.TestcaseID))
	}
	return testbench.Apply(target, ev)
}
