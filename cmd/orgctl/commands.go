package main

import (
	"fmt"
	"org-authority-go/internal/model"
	"org-authority-go/internal/repository"
	"org-authority-go/internal/service"
	"org-authority-go/pkg/token"
	"time"

	"github.com/spf13/cobra"
)

type migrateOutput struct {
	Command    string `json:"command"`
	Driver     string `json:"driver"`
	DurationMS int64  `json:"duration_ms"`
}

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the directory store tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.build(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			start := time.Now()
			if err := repository.AutoMigrate(cmd.Context(), app.DB); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), migrateOutput{
				Command:    "migrate",
				Driver:     app.Config.Database.Driver,
				DurationMS: time.Since(start).Milliseconds(),
			})
		},
	}
}

type sweepOutput struct {
	Command string `json:"command"`
	Expired int    `json:"expired"`
}

func newSweepCmd(g *globalFlags) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "sweep-delegations",
		Short: "Persist the expired status of delegations past their end date",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.build(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := service.NewExpirySweeper(app.Services.Delegations, 0, batch).SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sweepOutput{Command: "sweep-delegations", Expired: n})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "Delegations per transaction (0 uses the default)")
	return cmd
}

func newResolveCmd(g *globalFlags) *cobra.Command {
	var (
		companyID string
		asOf      string
		fresh     bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <position-id>",
		Short: "Resolve who exercises a position's authority at an instant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseInstant(asOf)
			if err != nil {
				return err
			}
			app, err := g.build(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if fresh {
				if err := app.Services.Resolution.Invalidate(cmd.Context(), companyID, args[0]); err != nil {
					return err
				}
			}
			ea, err := app.Services.Resolution.Resolve(cmd.Context(), service.ResolveRequest{
				CompanyID:  companyID,
				PositionID: args[0],
				AsOf:       at,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ea)
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "Tenant id (required)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Instant in RFC3339 (default now)")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Invalidate the cached entry before resolving")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var (
		companyID string
		withAudit bool
	)
	cmd := &cobra.Command{
		Use:   "history <position-id>",
		Short: "Print the assignment history of a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.build(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			history, err := app.Services.Assignments.HistoryOf(cmd.Context(), companyID, args[0])
			if err != nil {
				return err
			}
			out := map[string]any{"positionId": args[0], "assignments": history}
			if withAudit {
				logs, err := app.Services.Audit.QueryByEntity(cmd.Context(), companyID, model.EntityPosition, args[0])
				if err != nil {
					return err
				}
				out["audit"] = logs
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "Tenant id (required)")
	cmd.Flags().BoolVar(&withAudit, "audit", false, "Include the position's audit log")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

// newTokenCmd 签发本地开发用的调用方令牌。生产环境的令牌由上游身份服务签发。
func newTokenCmd(g *globalFlags) *cobra.Command {
	var (
		userID, name, email, companyID string
		ttl                            time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			raw, err := token.NewJWTManager(cfg.JWT.Secret, ttl).GenerateToken(userID, name, email, companyID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), raw)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Actor user id (required)")
	cmd.Flags().StringVar(&companyID, "company", "", "Tenant id (required)")
	cmd.Flags().StringVar(&name, "name", "", "Actor display name")
	cmd.Flags().StringVar(&email, "email", "", "Actor email")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func parseInstant(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of: %w", err)
	}
	return t, nil
}
