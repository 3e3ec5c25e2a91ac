package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/modeldesk/internal/config"
)

// rootOptions carries persistent flags to every subcommand.
type rootOptions struct {
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "modeldesk",
		Short: "Provider connection, credential and model catalog manager",
		Long: `modeldesk keeps the provider API key, the connection settings and the
catalog of available models for an AI-backed application.

QUICK START:
  modeldesk credential set sk-...          # Store the API key
  modeldesk verify                         # Check the connection
  modeldesk models list --feature chat     # Models usable for chat
  modeldesk serve                          # Run the HTTP API

CONFIGURATION: MODELDESK_* environment variables, or a YAML file named by
MODELDESK_CONFIG.

JSON OUTPUT: Add --json to any command for machine-readable output.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	cmd.AddCommand(
		newServeCmd(),
		newCredentialCmd(opts),
		newSettingsCmd(opts),
		newModelsCmd(opts),
		newVerifyCmd(opts),
		newEndpointCmd(opts),
	)

	return cmd
}

// withApp loads configuration, wires the application and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.logger.Error("error closing resources", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}

// print writes v as indented JSON when --json is set and calls text otherwise.
func (o *rootOptions) print(cmd *cobra.Command, v any, text func(w io.Writer)) {
	w := cmd.OutOrStdout()
	if o.jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(v); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "encode output: %v\n", err)
		}
		return
	}
	text(w)
}
