package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"nfc4care/backend/internal/session/domain"
	"nfc4care/backend/internal/session/maintenance"
	"nfc4care/backend/internal/session/repository"
)

// authority is the subset of the session authority sessionctl drives.
type authority interface {
	Now() time.Time
	ListSessions(ctx context.Context, f repository.Filter) ([]*domain.Session, error)
	RevokeAll(ctx context.Context, email string) (int64, error)
	PurgeOld(ctx context.Context, cutoff time.Time) (int64, error)
	Consolidate(ctx context.Context, email string) (int64, error)
}

type runner interface {
	RunSweep(ctx context.Context) (maintenance.SweepReport, error)
	RunConsolidation(ctx context.Context) (maintenance.ConsolidationReport, error)
}

type env struct {
	auth      authority
	maint     runner
	retention time.Duration
	close     func() error
}

type envFactory func(ctx context.Context) (*env, error)

func newRootCmd(open envFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Inspect and maintain nfc4care session records",
		SilenceUsage:  true,
	}
	root.AddCommand(
		newListCmd(open),
		newRevokeAllCmd(open),
		newSweepCmd(open),
		newPurgeCmd(open),
		newConsolidateCmd(open),
	)
	return root
}

// withEnv opens the environment, runs fn and closes it, joining any close error.
func withEnv(cmd *cobra.Command, open envFactory, fn func(ctx context.Context, e *env) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if e.close != nil {
			err = errors.Join(err, e.close())
		}
	}()
	return fn(ctx, e)
}

func newListCmd(open envFactory) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list <email>",
		Short: "List a professional's sessions (live only unless --all)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(ctx context.Context, e *env) error {
				list, err := e.auth.ListSessions(ctx, repository.Filter{
					Email:    args[0],
					LiveOnly: !all,
					Limit:    repository.MaxListLimit,
				})
				if err != nil {
					return err
				}
				now := e.auth.Now()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tEXPIRES\tSTATE\tIP")
				for _, s := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID,
						s.CreatedAt.Format(time.RFC3339), s.ExpiresAt.Format(time.RFC3339),
						state(s, now), s.Origin.IPAddress)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include revoked and expired sessions")
	return cmd
}

func state(s *domain.Session, now time.Time) string {
	switch {
	case s.Revoked:
		return "revoked"
	case s.Expired || s.PastExpiry(now):
		return "expired"
	default:
		return "live"
	}
}

func newRevokeAllCmd(open envFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-all <email>",
		Short: "Revoke every session of a professional",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(ctx context.Context, e *env) error {
				n, err := e.auth.RevokeAll(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %d session(s) for %s\n", n, args[0])
				return nil
			})
		},
	}
}

func newSweepCmd(open envFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Flag expired sessions and purge those past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, open, func(ctx context.Context, e *env) error {
				rep, err := e.maint.RunSweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d, purged %d\n", rep.Expired, rep.Purged)
				return nil
			})
		},
	}
}

func newPurgeCmd(open envFactory) *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete sessions that expired more than --retention ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, open, func(ctx context.Context, e *env) error {
				r := retention
				if r <= 0 {
					r = e.retention
				}
				n, err := e.auth.PurgeOld(ctx, e.auth.Now().Add(-r))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d session(s) expired before %s ago\n", n, r)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "age past expiry to purge (default SESSION_RETENTION)")
	return cmd
}

func newConsolidateCmd(open envFactory) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Keep only the newest live session per professional",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, open, func(ctx context.Context, e *env) error {
				if email != "" {
					n, err := e.auth.Consolidate(ctx, email)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "revoked %d extra session(s) for %s\n", n, email)
					return nil
				}
				rep, err := e.maint.RunConsolidation(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "principals %d, consolidated %d, revoked %d, failures %d\n",
					rep.Principals, rep.Consolidated, rep.Revoked, rep.Failures)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "consolidate a single professional")
	return cmd
}
