package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/access"
	"github.com/ethpandaops/actionsdash/pkg/registry"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect and edit the user registry offline",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored users and their deploy overrides",
	Args:  cobra.NoArgs,
	RunE: withRegistry(func(ctx context.Context, svc *registry.Service, _ []string) error {
		tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "USERNAME\tDEPLOY\tLAST SEEN\n")

		for _, u := range svc.List(ctx) {
			lastSeen := "-"
			if u.LastSeenAt != nil {
				lastSeen = u.LastSeenAt.Format(time.RFC3339)
			}

			fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Username, u.DeployAllowed, lastSeen)
		}

		return tw.Flush()
	}),
}

var usersSetCmd = &cobra.Command{
	Use:   "set <username> <true|false>",
	Short: "Set an explicit deploy override",
	Args:  cobra.ExactArgs(2),
	RunE: withRegistry(func(ctx context.Context, svc *registry.Service, args []string) error {
		allowed, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("deploy override must be true or false: %w", err)
		}

		rec, err := svc.SetOverride(ctx, args[0], allowed)
		if err != nil {
			return err
		}

		log.WithField("user", rec.Username).
			WithField("deploy_allowed", rec.DeployAllowed.String()).
			Info("Deploy override updated")

		return nil
	}),
}

var addDeployAllowed string

var usersAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a user, optionally with a deploy override",
	Args:  cobra.ExactArgs(1),
	RunE: withRegistry(func(ctx context.Context, svc *registry.Service, args []string) error {
		perm := access.DeployUnset

		if addDeployAllowed != "" {
			allowed, err := strconv.ParseBool(addDeployAllowed)
			if err != nil {
				return fmt.Errorf("--deploy-allowed must be true or false: %w", err)
			}

			perm = access.PermissionFromBool(allowed)
		}

		rec, err := svc.AddUser(ctx, args[0], perm)
		if err != nil {
			return err
		}

		log.WithField("user", rec.Username).
			WithField("deploy_allowed", rec.DeployAllowed.String()).
			Info("User added")

		return nil
	}),
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "Remove a user record and its override",
	Args:  cobra.ExactArgs(1),
	RunE: withRegistry(func(ctx context.Context, svc *registry.Service, args []string) error {
		if err := svc.RemoveOverride(ctx, args[0]); err != nil {
			return err
		}

		log.WithField("user", args[0]).Info("User removed")

		return nil
	}),
}

func init() {
	usersAddCmd.Flags().StringVar(&addDeployAllowed, "deploy-allowed", "",
		"explicit deploy override (true or false); unset when omitted")

	usersCmd.AddCommand(usersListCmd, usersSetCmd, usersAddCmd, usersRemoveCmd)
	rootCmd.AddCommand(usersCmd)
}

// withRegistry opens the configured registry backend for the duration of
// one command.
func withRegistry(
	fn func(ctx context.Context, svc *registry.Service, args []string) error,
) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		backend, err := registry.NewBackend(ctx, log, cfg, nil)
		if err != nil {
			return fmt.Errorf("opening user registry: %w", err)
		}

		store := registry.NewStore(log, backend, cfg.Registry.Key)

		defer func() {
			if err := store.Close(); err != nil {
				log.WithError(err).Warn("Failed to close user registry")
			}
		}()

		return fn(ctx, registry.NewService(log, store, nil), args)
	}
}
