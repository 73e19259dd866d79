package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"charterline/internal/domain"
	"charterline/internal/engine"
	"charterline/internal/guardrail"
)

func agentCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "agent",
		Short: "Request and resolve agent actions",
	}
	a.AddCommand(agentRequestCmd())
	a.AddCommand(agentListCmd())
	a.AddCommand(agentApproveCmd())
	a.AddCommand(agentRejectCmd())
	a.AddCommand(agentCompleteCmd())
	a.AddCommand(agentRegistryCmd())
	return a
}

func agentRequestCmd() *cobra.Command {
	var agentID, action, input string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Propose an action on behalf of an agent",
		Long:  "Denylisted actions and actions outside the agent's registry entry are refused without a record.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in map[string]any
			if input != "" {
				if err := json.Unmarshal([]byte(input), &in); err != nil {
					return fmt.Errorf("--input must be a JSON object: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RequestAction(ctx, agentID, domain.ActionType(action), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&action, "action", "", "action type")
	cmd.Flags().StringVar(&input, "input", "", "action input as a JSON object")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func agentListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agent actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListActions(ctx, domain.ActionStatus(status))
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, a := range items {
					rows = append(rows, table.Row{a.ID, a.AgentID, a.Action, a.Status, a.RequiresApproval, a.RequestedAt})
				}
				return printTable(items, table.Row{"ID", "Agent", "Action", "Status", "Approval", "Requested"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, approved, rejected, completed)")
	return cmd
}

func agentApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending action (founder)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ApproveAction(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func agentRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending action (founder)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RejectAction(ctx, args[0], actor(), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

func agentCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark an action completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CompleteAction(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func agentRegistryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "Show registered agents and the denylist",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]table.Row, 0, len(guardrail.Agents))
			for _, a := range guardrail.Agents {
				rows = append(rows, table.Row{a.ID, a.Description, fmt.Sprint(a.Allowed), fmt.Sprint(a.RequiresApproval)})
			}
			if err := printTable(guardrail.Agents, table.Row{"Agent", "Description", "Allowed", "Needs approval"}, rows); err != nil {
				return err
			}
			actions := make([]string, 0, len(guardrail.Denylist))
			for action := range guardrail.Denylist {
				actions = append(actions, string(action))
			}
			sort.Strings(actions)
			denied := make([]table.Row, 0, len(actions))
			for _, action := range actions {
				denied = append(denied, table.Row{action, guardrail.Denylist[domain.ActionType(action)]})
			}
			return printTable(guardrail.Denylist, table.Row{"Denied action", "Reason"}, denied)
		},
	}
}
