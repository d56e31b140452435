package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
	"github.com/GriffinCanCode/chatbubble/internal/probe"
)

type probeFlags struct {
	url         string
	loadTimeout time.Duration
	maxRetries  int
	backoff     time.Duration
	deadline    time.Duration
	insecure    bool
	verbose     bool
}

// probeOutput is printed as JSON; Upstream is set with --check.
type probeOutput struct {
	Upstream *probe.UpstreamStatus `json:"upstream,omitempty"`
	Load     *probe.Result         `json:"load,omitempty"`
	Error    string                `json:"error,omitempty"`
}

func newProbeCmd() *cobra.Command {
	var (
		flags probeFlags
		check bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Load a chat URL through the frame reliability controller",
		Long: `Fetches the URL the way an embedded chat frame would: load timeouts,
exponential backoff and the retry cap all apply. Exits non-zero unless the
document becomes ready.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := zap.NewNop()
			if flags.verbose {
				var err error
				if logger, err = zap.NewDevelopment(); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.deadline)
			defer cancel()

			client := probe.DefaultClientConfig()
			client.InsecureSkipVerify = flags.insecure
			client.Logger = logger

			var out probeOutput
			if check {
				st, err := probe.NewChecker(client).Upstream(ctx, flags.url)
				if err != nil {
					return err
				}
				out.Upstream = &st
			}

			settings := frame.DefaultSettings(flags.url)
			settings.LoadTimeout = flags.loadTimeout
			settings.MaxRetries = flags.maxRetries
			settings.BackoffBase = flags.backoff

			res, runErr := probe.Run(ctx, flags.url, settings, client)
			out.Load = &res
			if runErr != nil {
				out.Error = runErr.Error()
			}

			data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			if runErr != nil {
				return runErr
			}
			if !res.Ready() {
				return fmt.Errorf("chat document not ready: %s after %d retries", res.State, res.RetryCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.url, "url", "u", "", "chat document URL")
	cmd.Flags().DurationVar(&flags.loadTimeout, "load-timeout", 10*time.Second, "time allowed for one load")
	cmd.Flags().IntVar(&flags.maxRetries, "max-retries", 3, "automatic reloads before giving up")
	cmd.Flags().DurationVar(&flags.backoff, "backoff", time.Second, "delay before the first retry")
	cmd.Flags().DurationVar(&flags.deadline, "deadline", 2*time.Minute, "overall probe deadline")
	cmd.Flags().BoolVar(&flags.insecure, "insecure", false, "skip TLS verification")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "log controller transitions")
	cmd.Flags().BoolVar(&check, "check", false, "also check that the origin answers")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
