package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"charterline/internal/domain"
	"charterline/internal/engine"
)

func contributorCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "contributor",
		Aliases: []string{"contributors"},
		Short:   "Onboard and manage contributors",
	}
	c.AddCommand(contributorCreateCmd())
	c.AddCommand(contributorListCmd())
	c.AddCommand(contributorShowCmd())
	c.AddCommand(contributorTransitionCmd("request-docs", "Move an intake contributor to documents", engine.Engine.RequestDocuments))
	c.AddCommand(contributorSendAgreementsCmd())
	c.AddCommand(contributorSignCmd())
	c.AddCommand(contributorTierCmd("provision", "Grant the first access tier (founder)", engine.Engine.ProvisionAccess))
	c.AddCommand(contributorTierCmd("tier", "Change the access tier (founder)", engine.Engine.ChangeAccessTier))
	c.AddCommand(contributorTransitionCmd("start-work", "Move a ready contributor to working", engine.Engine.StartWork))
	c.AddCommand(contributorRevokeCmd())
	c.AddCommand(contributorTransitionCmd("archive", "Archive an exited contributor (founder)", engine.Engine.Archive))
	return c
}

func contributorCreateCmd() *cobra.Command {
	var opts engine.ContributorCreateOptions
	var role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a contributor at intake",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.RoleType = domain.RoleType(role)
				opts.Actor = actor()
				c, err := e.CreateContributor(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.LegalName, "name", "", "legal name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleProductOps), "role type (product_ops, technical, design_ux)")
	cmd.Flags().StringVar(&opts.EngagementType, "engagement", "", "engagement type")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func contributorListCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contributors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListContributors(ctx, domain.Stage(stage))
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, c := range items {
					rows = append(rows, table.Row{c.ID, c.LegalName, c.Email, c.RoleType, c.WorkflowStage, c.NDAStatus, c.IPAssignmentStatus, c.AccessTier})
				}
				return printTable(items, table.Row{"ID", "Name", "Email", "Role", "Stage", "NDA", "IP", "Tier"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage filter")
	return cmd
}

func contributorShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a contributor and their agreements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetContributor(ctx, args[0])
				if err != nil {
					return err
				}
				agreements, err := e.ListAgreements(ctx, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"contributor": c, "agreements": agreements})
				}
				if err := printJSONOrTable(c); err != nil {
					return err
				}
				if len(agreements) == 0 {
					return nil
				}
				rows := make([]table.Row, 0, len(agreements))
				for _, a := range agreements {
					rows = append(rows, table.Row{a.ID, a.Type, a.Version, a.Status, a.SentAt})
				}
				return printTable(agreements, table.Row{"Agreement", "Type", "Version", "Status", "Sent"}, rows)
			})
		},
	}
}

func contributorTransitionCmd(use, short string, fn func(engine.Engine, context.Context, string, string) (domain.Contributor, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := fn(e, ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func contributorSendAgreementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-agreements <id>",
		Short: "Send the NDA and IP assignment",
		Long:  "Requires the contributor's latest evaluation to carry a founder-confirmed ready:sign tag.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, agreements, err := e.SendAgreements(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"contributor": c, "agreements": agreements})
			})
		},
	}
}

func contributorSignCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "sign <id>",
		Short: "Record a signature on the NDA or IP assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SignAgreement(ctx, args[0], domain.AgreementType(typ), actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "agreement type (nda, ip_assignment)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func contributorTierCmd(use, short string, fn func(engine.Engine, context.Context, string, int, string) (domain.Contributor, error)) *cobra.Command {
	var tier int
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := fn(e, ctx, args[0], tier, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().IntVar(&tier, "tier", 0, "access tier (0-3)")
	_ = cmd.MarkFlagRequired("tier")
	return cmd
}

func contributorRevokeCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke agreements and access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.RevokeAccess(ctx, args[0], reason, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "revocation reason")
	return cmd
}
