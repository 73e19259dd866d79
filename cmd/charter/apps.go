package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"charterline/internal/domain"
	"charterline/internal/engine"
	"charterline/internal/review"
)

func appCmd() *cobra.Command {
	a := &cobra.Command{
		Use:     "app",
		Aliases: []string{"apps"},
		Short:   "Manage the app portfolio",
	}
	a.AddCommand(appIntakeCmd())
	a.AddCommand(appListCmd())
	a.AddCommand(appShowCmd())
	a.AddCommand(appUpdateCmd())
	a.AddCommand(appTransitionCmd("review", "Run the product-spec and risk-integrity agent reviews", engine.Engine.RunAgentReview))
	a.AddCommand(appDecideCmd())
	a.AddCommand(appTransitionCmd("activate", "Make the app the single active app (founder)", engine.Engine.SetActive))
	a.AddCommand(appTransitionCmd("deactivate", "Deactivate the app", engine.Engine.Deactivate))
	a.AddCommand(appAckFlagCmd())
	a.AddCommand(appChecklistCmd())
	a.AddCommand(appLightCmd())
	a.AddCommand(appLaunchStatusCmd("launch-status", "Show launch approval and blockers", false))
	a.AddCommand(appLaunchStatusCmd("blockers", "List what blocks launch", true))
	return a
}

func appIntakeCmd() *cobra.Command {
	var opts engine.AppIntakeOptions
	var lifecycle string
	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Record a new app",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.Lifecycle = domain.Lifecycle(lifecycle)
				opts.Actor = actor()
				a, err := e.IntakeApp(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "app name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "scope")
	cmd.Flags().StringVar(&opts.TargetUsers, "target-users", "", "target users")
	cmd.Flags().StringVar(&lifecycle, "lifecycle", "", "lifecycle (external, internal-only)")
	cmd.Flags().StringVar(&opts.RepoURL, "repo-url", "", "repository url")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func appListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListApps(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, a := range items {
					active := ""
					if a.IsActive {
						active = "*"
					}
					rows = append(rows, table.Row{a.ID, a.Name, a.Status, active, a.Lifecycle, a.TrafficLight})
				}
				return printTable(items, table.Row{"ID", "Name", "Status", "Active", "Lifecycle", "Light"}, rows)
			})
		},
	}
}

func appShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetApp(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func appUpdateCmd() *cobra.Command {
	var name, description, scope, targetUsers, lifecycle, repoURL string
	var owner, assets bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update app metadata and ownership confirmations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := engine.AppUpdate{
				Name:                    optionalString(cmd, "name", name),
				Description:             optionalString(cmd, "description", description),
				Scope:                   optionalString(cmd, "scope", scope),
				TargetUsers:             optionalString(cmd, "target-users", targetUsers),
				RepoURL:                 optionalString(cmd, "repo-url", repoURL),
				OwnerConfirmed:          optionalBool(cmd, "owner-confirmed", owner),
				AssetOwnershipConfirmed: optionalBool(cmd, "asset-ownership-confirmed", assets),
			}
			if cmd.Flags().Changed("lifecycle") {
				l := domain.Lifecycle(lifecycle)
				upd.Lifecycle = &l
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateApp(ctx, args[0], upd, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "app name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&scope, "scope", "", "scope")
	cmd.Flags().StringVar(&targetUsers, "target-users", "", "target users")
	cmd.Flags().StringVar(&lifecycle, "lifecycle", "", "lifecycle (external, internal-only)")
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "repository url")
	cmd.Flags().BoolVar(&owner, "owner-confirmed", false, "owner confirmed")
	cmd.Flags().BoolVar(&assets, "asset-ownership-confirmed", false, "asset ownership confirmed")
	return cmd
}

func appTransitionCmd(use, short string, fn func(engine.Engine, context.Context, string, string) (domain.App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := fn(e, ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func appDecideCmd() *cobra.Command {
	var decision, notes string
	cmd := &cobra.Command{
		Use:   "decide <id>",
		Short: "Approve, pause or kill an app (founder)",
		Long:  "Approval needs a completed agent review and confirmed owner and asset ownership. Kill is terminal.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.MakeFounderDecision(ctx, args[0], domain.FounderDecision(decision), notes, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "approve, pause or kill")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func appAckFlagCmd() *cobra.Command {
	var reviewType string
	cmd := &cobra.Command{
		Use:   "ack-flag <id> <flag-id>",
		Short: "Acknowledge a review flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AcknowledgeFlag(ctx, args[0], domain.ReviewType(reviewType), args[1], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&reviewType, "review", string(domain.ReviewRiskIntegrity), "review type (product_spec, risk_integrity)")
	return cmd
}

func appChecklistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checklist <id> <item> <true|false>",
		Short: "Set a readiness checklist item",
		Long:  fmt.Sprintf("Items: %v", review.ChecklistItems),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := strconv.ParseBool(args[2])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[2], err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetChecklistItem(ctx, args[0], review.ChecklistItem(args[1]), done, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a.Checklist)
			})
		},
	}
}

func appLightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "light <id> <green|yellow|red>",
		Short: "Set the traffic light",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetTrafficLight(ctx, args[0], domain.TrafficLight(args[1]), actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func appLaunchStatusCmd(use, short string, blockersOnly bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				status, err := e.LaunchStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if blockersOnly {
						return printJSON(status.Blockers)
					}
					return printJSON(status)
				}
				if !blockersOnly {
					fmt.Printf("Launch approved: %t\n", status.LaunchApproved)
				}
				for _, b := range status.Blockers {
					fmt.Println("-", b)
				}
				return nil
			})
		},
	}
}
