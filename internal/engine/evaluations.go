package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"charterline/internal/audit"
	"charterline/internal/domain"
	"charterline/internal/rubric"
	"charterline/internal/store"
)

func evaluationID(ev domain.Evaluation) string { return ev.ID }

type evaluationRef struct {
	all []domain.Evaluation
	idx int
}

func (r evaluationRef) get() domain.Evaluation { return r.all[r.idx] }

// openEvaluation loads an evaluation that has not been decided yet.
func (t *tx) openEvaluation(id string) (evaluationRef, error) {
	all, err := load[domain.Evaluation](t, store.KeyEvaluations)
	if err != nil {
		return evaluationRef{}, err
	}
	idx := indexByID(all, id, evaluationID)
	if idx < 0 {
		return evaluationRef{}, domain.NotFoundError{Entity: domain.EntityEvaluation, ID: id}
	}
	if all[idx].IsFinalized {
		return evaluationRef{}, domain.FinalizedError{Entity: domain.EntityEvaluation, ID: id}
	}
	return evaluationRef{all: all, idx: idx}, nil
}

func (t *tx) putEvaluation(ref evaluationRef, ev domain.Evaluation) error {
	ev.UpdatedAt = t.now
	ref.all[ref.idx] = ev
	return save(t, store.KeyEvaluations, ref.all)
}

// latestEvaluation returns the most recently submitted evaluation for a
// contributor; collections keep submission order.
func latestEvaluation(all []domain.Evaluation, contributorID string) (domain.Evaluation, bool) {
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ContributorID == contributorID {
			return all[i], true
		}
	}
	return domain.Evaluation{}, false
}

// canProceed reports whether the contributor's latest evaluation holds a
// founder-confirmed ready:sign tag and was not declined or paused.
func canProceed(all []domain.Evaluation, contributorID string) bool {
	ev, ok := latestEvaluation(all, contributorID)
	if !ok {
		return false
	}
	if ev.Decision == domain.DecisionDeclined || ev.Decision == domain.DecisionPaused {
		return false
	}
	for _, tag := range ev.Tags {
		if tag.Matches(domain.ReadySign) && tag.ConfirmedByFounder {
			return true
		}
	}
	return false
}

// SubmitQuestionnaire scores the responses against the rubric and records a
// pending evaluation carrying AI-suggested tags.
func (e Engine) SubmitQuestionnaire(ctx context.Context, contributorID string, role domain.RoleType, responses []domain.QuestionnaireResponse, actor string) (domain.Evaluation, error) {
	if err := requireActor(actor); err != nil {
		return domain.Evaluation{}, err
	}
	if !role.Valid() {
		return domain.Evaluation{}, domain.ValidationError{Field: "role_applied_for", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	scores, err := rubric.Score(responses)
	if err != nil {
		return domain.Evaluation{}, err
	}
	flags := rubric.DetectRisks(responses)
	overall := rubric.Overall(scores)

	var ev domain.Evaluation
	err = e.write(ctx, "evaluation.submit", func(t *tx) error {
		if _, err := t.mutableContributor(contributorID); err != nil {
			return err
		}
		all, err := load[domain.Evaluation](t, store.KeyEvaluations)
		if err != nil {
			return err
		}
		ev = domain.Evaluation{
			ID:             uuid.NewString(),
			ContributorID:  contributorID,
			RoleAppliedFor: role,
			Responses:      responses,
			Scores:         scores,
			OverallScore:   overall,
			Tags:           rubric.DeriveTags(rubric.Mean(scores), flags),
			RiskFlags:      flags,
			Decision:       domain.DecisionPending,
			CreatedAt:      t.now,
			UpdatedAt:      t.now,
		}
		if err := save(t, store.KeyEvaluations, append(all, ev)); err != nil {
			return err
		}
		tags := make([]string, 0, len(ev.Tags))
		for _, tag := range ev.Tags {
			tags = append(tags, tag.String())
		}
		return t.audit("evaluation.submitted", domain.EntityEvaluation, ev.ID, actor, audit.Details{
			"contributor_id": contributorID,
			"overall_score":  overall,
			"tags":           tags,
			"risk_flags":     len(flags),
		})
	})
	if err != nil {
		return domain.Evaluation{}, err
	}
	return ev, nil
}

// UpdateScore replaces one category score with a manual value and
// recomputes the overall score. Tags are left as suggested at submission.
func (e Engine) UpdateScore(ctx context.Context, id string, category domain.RubricCategory, score int, actor string) (domain.Evaluation, error) {
	if err := requireActor(actor); err != nil {
		return domain.Evaluation{}, err
	}
	var out domain.Evaluation
	err := e.write(ctx, "evaluation.update_score", func(t *tx) error {
		ref, err := t.openEvaluation(id)
		if err != nil {
			return err
		}
		if err := rubric.ValidateScore(category, score); err != nil {
			return err
		}
		ev := ref.get()
		scores := append([]domain.CategoryScore{}, ev.Scores...)
		from := 0
		found := false
		for i := range scores {
			if scores[i].Category == category {
				from = scores[i].Score
				scores[i].Score = score
				scores[i].AISuggested = false
				found = true
			}
		}
		if !found {
			scores = append(scores, domain.CategoryScore{Category: category, Score: score})
		}
		ev.Scores = scores
		ev.OverallScore = rubric.Overall(scores)
		if err := t.putEvaluation(ref, ev); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("evaluation.score_updated", domain.EntityEvaluation, id, actor, audit.Details{
			"category": category, "from": from, "to": score, "overall_score": ev.OverallScore,
		})
	})
	return out, err
}

// ConfirmTag marks a suggested tag as confirmed by the founder.
func (e Engine) ConfirmTag(ctx context.Context, id string, tag domain.Tag, actor string) (domain.Evaluation, error) {
	if err := e.requireFounder(actor); err != nil {
		return domain.Evaluation{}, err
	}
	var out domain.Evaluation
	err := e.write(ctx, "evaluation.confirm_tag", func(t *tx) error {
		ref, err := t.openEvaluation(id)
		if err != nil {
			return err
		}
		ev := ref.get()
		tags := append([]domain.TagEntry{}, ev.Tags...)
		i := -1
		for j, entry := range tags {
			if entry.Matches(tag) {
				i = j
				break
			}
		}
		if i < 0 {
			return domain.NotFoundError{Entity: "tag", ID: tag.String()}
		}
		if tags[i].ConfirmedByFounder {
			return domain.InvalidTransitionError{Entity: "tag", ID: tag.String(), From: "confirmed", To: "confirmed"}
		}
		tags[i].ConfirmedByFounder = true
		ev.Tags = tags
		if err := t.putEvaluation(ref, ev); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("evaluation.tag_confirmed", domain.EntityEvaluation, id, actor, audit.Details{"tag": tag.String()})
	})
	return out, err
}

// RemoveTag drops a tag from an undecided evaluation.
func (e Engine) RemoveTag(ctx context.Context, id string, tag domain.Tag, actor string) (domain.Evaluation, error) {
	if err := e.requireFounder(actor); err != nil {
		return domain.Evaluation{}, err
	}
	var out domain.Evaluation
	err := e.write(ctx, "evaluation.remove_tag", func(t *tx) error {
		ref, err := t.openEvaluation(id)
		if err != nil {
			return err
		}
		ev := ref.get()
		tags := []domain.TagEntry{}
		removed := false
		for _, entry := range ev.Tags {
			if entry.Matches(tag) {
				removed = true
				continue
			}
			tags = append(tags, entry)
		}
		if !removed {
			return domain.NotFoundError{Entity: "tag", ID: tag.String()}
		}
		ev.Tags = tags
		if err := t.putEvaluation(ref, ev); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("evaluation.tag_removed", domain.EntityEvaluation, id, actor, audit.Details{"tag": tag.String()})
	})
	return out, err
}

// DecideOptions carry the founder's decision on an evaluation.
type DecideOptions struct {
	Decision                domain.Decision
	Notes                   string
	ConditionalRequirements []string
	Actor                   string
}

// Decide records the founder's decision. It is one-way: the evaluation is
// finalized and every later mutation fails.
func (e Engine) Decide(ctx context.Context, id string, opts DecideOptions) (domain.Evaluation, error) {
	if err := e.requireFounder(opts.Actor); err != nil {
		return domain.Evaluation{}, err
	}
	switch opts.Decision {
	case domain.DecisionApproved, domain.DecisionConditional, domain.DecisionDeclined, domain.DecisionPaused:
	default:
		return domain.Evaluation{}, domain.ValidationError{Field: "decision", Reason: fmt.Sprintf("%q is not a final decision", opts.Decision)}
	}
	var reqs []string
	for _, r := range opts.ConditionalRequirements {
		if r != "" {
			reqs = append(reqs, r)
		}
	}
	var out domain.Evaluation
	err := e.write(ctx, "evaluation.decide", func(t *tx) error {
		ref, err := t.openEvaluation(id)
		if err != nil {
			return err
		}
		if opts.Decision == domain.DecisionConditional && len(reqs) == 0 {
			return domain.PreconditionError{Op: "evaluation.decide", Rule: "conditional.requirements", Detail: "a conditional decision needs at least one requirement"}
		}
		ev := ref.get()
		ev.Decision = opts.Decision
		ev.DecisionNotes = opts.Notes
		ev.ConditionalRequirements = reqs
		ev.IsFinalized = true
		ev.DecidedBy = opts.Actor
		ev.DecidedAt = optionalString(t.now)
		if err := t.putEvaluation(ref, ev); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("evaluation.decided", domain.EntityEvaluation, id, opts.Actor, audit.Details{
			"decision": opts.Decision, "notes": opts.Notes, "conditional_requirements": reqs,
		})
	})
	return out, err
}

// CanProceedToAgreements is the gate sendAgreements consults.
func (e Engine) CanProceedToAgreements(ctx context.Context, contributorID string) (bool, error) {
	if _, err := e.GetContributor(ctx, contributorID); err != nil {
		return false, err
	}
	all, err := store.LoadCollection[domain.Evaluation](ctx, e.Store, nil, store.KeyEvaluations)
	if err != nil {
		return false, err
	}
	return canProceed(all, contributorID), nil
}

func (e Engine) GetEvaluation(ctx context.Context, id string) (domain.Evaluation, error) {
	all, err := store.LoadCollection[domain.Evaluation](ctx, e.Store, nil, store.KeyEvaluations)
	if err != nil {
		return domain.Evaluation{}, err
	}
	if i := indexByID(all, id, evaluationID); i >= 0 {
		return all[i], nil
	}
	return domain.Evaluation{}, domain.NotFoundError{Entity: domain.EntityEvaluation, ID: id}
}

// ListEvaluations returns evaluations in submission order, optionally for one contributor.
func (e Engine) ListEvaluations(ctx context.Context, contributorID string) ([]domain.Evaluation, error) {
	all, err := store.LoadCollection[domain.Evaluation](ctx, e.Store, nil, store.KeyEvaluations)
	if err != nil {
		return nil, err
	}
	out := []domain.Evaluation{}
	for _, ev := range all {
		if contributorID == "" || ev.ContributorID == contributorID {
			out = append(out, ev)
		}
	}
	return out, nil
}
