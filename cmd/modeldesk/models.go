package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List provider models and per-feature defaults",
	}

	var feature string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached models, fetching them when stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				f        model.Feature
				filtered bool
			)
			if feature != "" {
				parsed, ok := model.ParseFeature(feature)
				if !ok {
					return fmt.Errorf("unknown feature %q", feature)
				}
				f, filtered = parsed, true
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.catalog.Refresh(ctx, false); err != nil {
					return err
				}

				ids := model.ModelIDs(a.catalog.Catalog())
				if filtered {
					ids = a.catalog.Models(ctx, f)
				}
				if ids == nil {
					ids = []string{}
				}

				opts.print(cmd, map[string]any{
					"feature":  string(f),
					"official": a.resolver.IsOfficialEndpoint(ctx),
					"models":   ids,
				}, func(w io.Writer) {
					for _, id := range ids {
						fmt.Fprintln(w, id)
					}
				})
				return nil
			})
		},
	}
	listCmd.Flags().StringVarP(&feature, "feature", "f", "", "Only models usable for this feature (chat, image, tts, transcription)")

	var force bool
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the model list from the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.catalog.Refresh(ctx, force); err != nil {
					return err
				}
				state := a.catalog.State()
				opts.print(cmd, map[string]any{
					"models":     len(state.Models),
					"fetched_at": state.FetchedAt.UTC(),
				}, func(w io.Writer) {
					fmt.Fprintf(w, "Catalog holds %d models\n", len(state.Models))
				})
				return nil
			})
		},
	}
	refreshCmd.Flags().BoolVar(&force, "force", false, "Ignore the cache TTL")

	defaultsCmd := &cobra.Command{
		Use:   "defaults",
		Short: "Show the default model for every feature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				// Defaults still resolve from overrides and fallbacks when the
				// catalog cannot be fetched.
				if err := a.catalog.Refresh(ctx, false); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}

				defaults := a.catalog.Defaults(ctx)
				result := make(map[string]string, len(defaults))
				for f, id := range defaults {
					result[string(f)] = id
				}

				opts.print(cmd, result, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "FEATURE\tMODEL")
					for _, f := range model.Features() {
						fmt.Fprintf(tw, "%s\t%s\n", f, defaults[f])
					}
					_ = tw.Flush()
				})
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, refreshCmd, defaultsCmd)
	return cmd
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the stored key can list models on the current endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				status := a.resolver.Verify(ctx)
				opts.print(cmd, map[string]any{
					"state":  status.State,
					"reason": status.Reason,
				}, func(w io.Writer) {
					fmt.Fprintf(w, "Connection: %s\n", status.State)
				})
				if status.State == model.ConnectionFailure {
					return errors.New("connection failed: " + status.Reason)
				}
				return nil
			})
		},
	}
}

func newEndpointCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoint",
		Short: "Show the effective endpoint and which features it serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				cfg, err := a.resolver.EffectiveConfig(ctx)
				if err != nil {
					return err
				}

				features := make(map[string]bool)
				for _, f := range model.Features() {
					features[string(f)] = a.resolver.FeatureGate(ctx, f) == nil
				}

				opts.print(cmd, map[string]any{
					"base_url": cfg.BaseURL(),
					"scheme":   cfg.Scheme,
					"host":     cfg.Host,
					"port":     cfg.Port,
					"official": cfg.Official,
					"features": features,
				}, func(w io.Writer) {
					fmt.Fprintf(w, "Endpoint: %s\n", cfg.BaseURL())
					fmt.Fprintf(w, "Official: %t\n", cfg.Official)
					for _, f := range model.Features() {
						fmt.Fprintf(w, "  %-14s %t\n", f, features[string(f)])
					}
				})
				return nil
			})
		},
	}
}
