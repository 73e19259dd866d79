package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"charterline/internal/domain"
	"charterline/internal/engine"
)

func evalCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:     "eval",
		Aliases: []string{"evaluation"},
		Short:   "Score questionnaires and record founder decisions",
	}
	ev.AddCommand(evalSubmitCmd())
	ev.AddCommand(evalListCmd())
	ev.AddCommand(evalShowCmd())
	ev.AddCommand(evalScoreCmd())
	ev.AddCommand(evalTagCmd("confirm-tag", "Confirm a tag (founder)", engine.Engine.ConfirmTag))
	ev.AddCommand(evalTagCmd("remove-tag", "Remove a tag (founder)", engine.Engine.RemoveTag))
	ev.AddCommand(evalDecideCmd())
	ev.AddCommand(evalCanProceedCmd())
	return ev
}

// readResponses parses a questionnaire file: a YAML or JSON list of
// {category, answer, rating} items.
func readResponses(path string) ([]domain.QuestionnaireResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []domain.QuestionnaireResponse
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

func evalSubmitCmd() *cobra.Command {
	var contributorID, role, file string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a questionnaire for scoring",
		RunE: func(cmd *cobra.Command, args []string) error {
			responses, err := readResponses(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.SubmitQuestionnaire(ctx, contributorID, domain.RoleType(role), responses, actor())
				if err != nil {
					return err
				}
				return printEvaluation(ev)
			})
		},
	}
	cmd.Flags().StringVar(&contributorID, "contributor", "", "contributor id")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleProductOps), "role applied for")
	cmd.Flags().StringVarP(&file, "file", "f", "", "questionnaire file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("contributor")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func evalListCmd() *cobra.Command {
	var contributorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List evaluations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvaluations(ctx, contributorID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, ev := range items {
					rows = append(rows, table.Row{ev.ID, ev.ContributorID, fmt.Sprintf("%.2f", ev.OverallScore), tagList(ev.Tags), ev.Decision, ev.IsFinalized})
				}
				return printTable(items, table.Row{"ID", "Contributor", "Overall", "Tags", "Decision", "Final"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&contributorID, "contributor", "", "contributor filter")
	return cmd
}

func evalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.GetEvaluation(ctx, args[0])
				if err != nil {
					return err
				}
				return printEvaluation(ev)
			})
		},
	}
}

func evalScoreCmd() *cobra.Command {
	var category string
	var score int
	cmd := &cobra.Command{
		Use:   "score <id>",
		Short: "Override one category score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.UpdateScore(ctx, args[0], domain.RubricCategory(category), score, actor())
				if err != nil {
					return err
				}
				return printEvaluation(ev)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "rubric category")
	cmd.Flags().IntVar(&score, "score", 0, "score 1-5")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func evalTagCmd(use, short string, fn func(engine.Engine, context.Context, string, domain.Tag, string) (domain.Evaluation, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> <family:value>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := domain.ParseTag(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := fn(e, ctx, args[0], tag, actor())
				if err != nil {
					return err
				}
				return printEvaluation(ev)
			})
		},
	}
}

func evalDecideCmd() *cobra.Command {
	var opts engine.DecideOptions
	var decision string
	cmd := &cobra.Command{
		Use:   "decide <id>",
		Short: "Record the final decision (founder)",
		Long:  "approved, conditional (needs at least one --require), declined or paused. The evaluation is frozen afterwards.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.Decision = domain.Decision(decision)
				opts.Actor = actor()
				ev, err := e.Decide(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printEvaluation(ev)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "decision")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "decision notes")
	cmd.Flags().StringArrayVar(&opts.ConditionalRequirements, "require", nil, "conditional requirement (repeatable)")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func evalCanProceedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can-proceed <contributor-id>",
		Short: "Whether agreements may be sent to a contributor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ok, err := e.CanProceedToAgreements(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"contributor_id": args[0], "can_proceed": ok})
				}
				fmt.Println(ok)
				return nil
			})
		},
	}
}

func printEvaluation(ev domain.Evaluation) error {
	if viper.GetBool("json") {
		return printJSON(ev)
	}
	fmt.Printf("Evaluation %s (contributor %s, %s)\n", ev.ID, ev.ContributorID, ev.RoleAppliedFor)
	fmt.Printf("Overall: %.2f  Decision: %s  Finalized: %t\n", ev.OverallScore, ev.Decision, ev.IsFinalized)
	rows := make([]table.Row, 0, len(ev.Scores))
	for _, s := range ev.Scores {
		rows = append(rows, table.Row{s.Category, s.Score, s.AISuggested})
	}
	if err := printTable(ev.Scores, table.Row{"Category", "Score", "Suggested"}, rows); err != nil {
		return err
	}
	fmt.Println("Tags:", tagList(ev.Tags))
	for _, f := range ev.RiskFlags {
		fmt.Printf("Risk: %s (%s) %s\n", f.Category, f.Severity, f.Note)
	}
	return nil
}

// tagList renders tags as family:value, confirmed ones marked with '*'.
func tagList(tags []domain.TagEntry) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		s := string(t.Family) + ":" + t.Value
		if t.ConfirmedByFounder {
			s += "*"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}
