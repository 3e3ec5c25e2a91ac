package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change connection and default-model settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show every setting with its effective value and source",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, func(ctx context.Context, a *app) error {
					values := a.settings.All(ctx)
					result := make([]map[string]any, 0, len(values))
					for _, v := range values {
						result = append(result, settingView(v))
					}
					opts.print(cmd, result, func(w io.Writer) {
						tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
						fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
						for _, v := range values {
							fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Key, v.Value, v.Source)
						}
						_ = tw.Flush()
					})
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Show one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := parseSettingKey(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd, func(ctx context.Context, a *app) error {
					v := a.settings.Lookup(ctx, key)
					opts.print(cmd, settingView(v), func(w io.Writer) {
						fmt.Fprintln(w, v.Value)
					})
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Write a setting to every backend",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := parseSettingKey(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd, func(ctx context.Context, a *app) error {
					if err := a.resolver.ApplySetting(ctx, key, args[1]); err != nil {
						return err
					}
					v := a.settings.Lookup(ctx, key)
					opts.print(cmd, settingView(v), func(w io.Writer) {
						fmt.Fprintf(w, "%s = %s\n", v.Key, v.Value)
					})
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a setting so its default applies",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := parseSettingKey(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd, func(ctx context.Context, a *app) error {
					if err := a.resolver.ApplySetting(ctx, key, ""); err != nil {
						return err
					}
					v := a.settings.Lookup(ctx, key)
					opts.print(cmd, settingView(v), func(w io.Writer) {
						fmt.Fprintf(w, "%s reset to %q\n", v.Key, v.Value)
					})
					return nil
				})
			},
		},
	)

	return cmd
}

func parseSettingKey(raw string) (model.SettingKey, error) {
	key := model.SettingKey(raw)
	if _, ok := model.LookupSetting(key); !ok {
		return "", fmt.Errorf("%w: %q", model.ErrUnknownSetting, raw)
	}
	return key, nil
}

func settingView(v model.SettingValue) map[string]any {
	return map[string]any{
		"key":    v.Key,
		"value":  v.Value,
		"source": v.Source,
	}
}
