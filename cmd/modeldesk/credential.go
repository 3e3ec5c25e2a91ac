package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

func newCredentialCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the provider API key",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <api-key>",
			Short: "Store the API key, preferring the synced keyring",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if args[0] == "" {
					return errors.New("api key must not be empty; use 'credential delete' to remove it")
				}
				return withApp(cmd, func(ctx context.Context, a *app) error {
					tier := a.resolver.SetCredential(ctx, args[0])
					if tier == model.CredentialTierNone {
						return errors.New("no credential store accepted the key; check the system keyring or set MODELDESK_SECRET_KEY")
					}
					opts.print(cmd, map[string]any{"account": a.credentials.Account(), "tier": tier}, func(w io.Writer) {
						fmt.Fprintf(w, "Stored credential for %s in the %s tier\n", a.credentials.Account(), tier)
					})
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "get",
			Short: "Show whether a key is stored and which tier holds it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, func(ctx context.Context, a *app) error {
					cred := a.credentials.Status(ctx)
					result := map[string]any{
						"account":    a.credentials.Account(),
						"configured": cred.IsSet(),
						"tier":       cred.Tier,
						"masked":     cred.Masked(),
					}
					if !cred.UpdatedAt.IsZero() {
						result["updated_at"] = cred.UpdatedAt.UTC().Format(time.RFC3339)
					}
					opts.print(cmd, result, func(w io.Writer) {
						if !cred.IsSet() {
							fmt.Fprintf(w, "No credential stored for %s\n", a.credentials.Account())
							return
						}
						fmt.Fprintf(w, "Account: %s\n", a.credentials.Account())
						fmt.Fprintf(w, "Key:     %s\n", cred.Masked())
						fmt.Fprintf(w, "Tier:    %s\n", cred.Tier)
					})
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the API key from every tier",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, func(ctx context.Context, a *app) error {
					a.resolver.SetCredential(ctx, "")
					opts.print(cmd, map[string]any{"account": a.credentials.Account(), "deleted": true}, func(w io.Writer) {
						fmt.Fprintf(w, "Deleted credential for %s\n", a.credentials.Account())
					})
					return nil
				})
			},
		},
	)

	return cmd
}
