package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterline/internal/config"
	"charterline/internal/db"
	"charterline/internal/domain"
	"charterline/internal/engine"
	"charterline/internal/gate"
	"charterline/internal/logging"
	"charterline/internal/rubric"
)

const founder = "founder"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, cfgs ...*config.Config) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cfg := config.Default()
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	ctx := context.Background()
	eng, _, err := engine.Open(ctx, conn,
		engine.WithConfig(cfg),
		engine.WithLogger(logging.Discard()),
		engine.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx}
}

func opCount(e engine.Engine, op, outcome string) float64 {
	return testutil.ToFloat64(e.Metrics.Operations.WithLabelValues(op, outcome))
}

func (env testEnv) auditCount(t *testing.T) int {
	t.Helper()
	n, err := env.Engine.Ledger.Count(env.Ctx, nil)
	require.NoError(t, err)
	return n
}

// expectAudited runs a mutation and checks it wrote exactly one entry on
// the given entity.
func (env testEnv) expectAudited(t *testing.T, entityType, entityID string, fn func() error) {
	t.Helper()
	before := env.auditCount(t)
	require.NoError(t, fn())
	assert.Equal(t, before+1, env.auditCount(t))
	recent, err := env.Engine.AuditRecent(env.Ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, entityType, recent[0].EntityType)
	assert.Equal(t, entityID, recent[0].EntityID)
}

// expectRejected runs a mutation and checks it failed without an audit entry.
func (env testEnv) expectRejected(t *testing.T, target any, fn func() error) {
	t.Helper()
	before := env.auditCount(t)
	err := fn()
	require.Error(t, err)
	if target != nil {
		require.ErrorAs(t, err, target)
	}
	assert.Equal(t, before, env.auditCount(t))
}

func rated(rating int) []domain.QuestionnaireResponse {
	var out []domain.QuestionnaireResponse
	for _, e := range rubric.Table {
		out = append(out, domain.QuestionnaireResponse{Category: e.Category, Answer: "a considered answer", Rating: rating})
	}
	return out
}

func (env testEnv) contributor(t *testing.T, email string) domain.Contributor {
	t.Helper()
	c, err := env.Engine.CreateContributor(env.Ctx, engine.ContributorCreateOptions{
		LegalName: "Ada Lovelace", Email: email, RoleType: domain.RoleTechnical, Actor: founder,
	})
	require.NoError(t, err)
	return c
}

// cleared creates a contributor whose evaluation has a confirmed ready:sign.
func (env testEnv) cleared(t *testing.T, email string) domain.Contributor {
	t.Helper()
	c := env.contributor(t, email)
	ev, err := env.Engine.SubmitQuestionnaire(env.Ctx, c.ID, domain.RoleTechnical, rated(5), founder)
	require.NoError(t, err)
	_, err = env.Engine.ConfirmTag(env.Ctx, ev.ID, domain.ReadySign, founder)
	require.NoError(t, err)
	return c
}

func TestContributorScenario(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	c := env.cleared(t, "ada@example.com")
	assert.Equal(t, 0, c.AccessTier)
	assert.Equal(t, domain.StageIntake, c.WorkflowStage)

	var agreements []domain.Agreement
	env.expectAudited(t, domain.EntityContributor, c.ID, func() error {
		var err error
		c, agreements, err = e.SendAgreements(env.Ctx, c.ID, founder)
		return err
	})
	require.Len(t, agreements, 2)
	assert.Equal(t, domain.StageSigning, c.WorkflowStage)
	assert.Equal(t, "2024.1", agreements[0].Version)

	env.expectAudited(t, domain.EntityContributor, c.ID, func() error {
		var err error
		c, err = e.SignAgreement(env.Ctx, c.ID, domain.AgreementNDA, "ada@example.com")
		return err
	})
	assert.Equal(t, domain.StageSigning, c.WorkflowStage)
	c, err := e.SignAgreement(env.Ctx, c.ID, domain.AgreementIPAssignment, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StageProvisioning, c.WorkflowStage)
	assert.Equal(t, 0, c.AccessTier)
	assert.Equal(t, domain.AccessLimited, c.AccessLevel)

	c, err = e.ProvisionAccess(env.Ctx, c.ID, 2, founder)
	require.NoError(t, err)
	assert.Equal(t, 2, c.AccessTier)
	assert.Equal(t, domain.StageReady, c.WorkflowStage)

	env.expectAudited(t, domain.EntityContributor, c.ID, func() error {
		var err error
		c, err = e.RevokeAccess(env.Ctx, c.ID, "end of contract", founder)
		return err
	})
	assert.Equal(t, 0, c.AccessTier)
	assert.Equal(t, domain.SignatureRevoked, c.NDAStatus)
	assert.Equal(t, domain.SignatureRevoked, c.IPAssignmentStatus)
	assert.Equal(t, domain.StageExit, c.WorkflowStage)
	assert.Equal(t, domain.AccessNone, c.AccessLevel)

	stored, err := e.ListAgreements(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, a := range stored {
		assert.Equal(t, domain.AgreementRevoked, a.Status)
		assert.NotNil(t, a.RevokedAt)
	}

	c, err = e.Archive(env.Ctx, c.ID, founder)
	require.NoError(t, err)
	assert.Equal(t, domain.StageArchived, c.WorkflowStage)

	var fin domain.FinalizedError
	env.expectRejected(t, &fin, func() error {
		_, err := e.RevokeAccess(env.Ctx, c.ID, "again", founder)
		return err
	})
	env.expectRejected(t, &fin, func() error {
		_, err := e.Archive(env.Ctx, c.ID, founder)
		return err
	})

	n, err := e.VerifyAudit(env.Ctx)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestRevokeFailureMidCascadeWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	c := env.cleared(t, "ada@example.com")
	c, _, err := e.SendAgreements(env.Ctx, c.ID, founder)
	require.NoError(t, err)

	// Agreements are saved before the contributor; fail the second write.
	_, err = e.DB.ExecContext(env.Ctx, `CREATE TRIGGER fail_contributors BEFORE UPDATE ON documents
WHEN NEW.key = 'contributors' BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	before := env.auditCount(t)
	_, err = e.RevokeAccess(env.Ctx, c.ID, "end of contract", founder)
	require.ErrorContains(t, err, "put contributors")
	assert.Equal(t, before, env.auditCount(t))

	stored, err := e.ListAgreements(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, a := range stored {
		assert.Equal(t, domain.AgreementSent, a.Status)
		assert.Nil(t, a.RevokedAt)
	}
	got, err := e.GetContributor(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageSigning, got.WorkflowStage)
	assert.Equal(t, domain.SignatureSent, got.NDAStatus)
	assert.Equal(t, domain.SignatureSent, got.IPAssignmentStatus)

	_, err = e.DB.ExecContext(env.Ctx, `DROP TRIGGER fail_contributors`)
	require.NoError(t, err)
	got, err = e.RevokeAccess(env.Ctx, c.ID, "end of contract", founder)
	require.NoError(t, err)
	assert.Equal(t, domain.StageExit, got.WorkflowStage)
	assert.Equal(t, before+1, env.auditCount(t))
}

func TestSendAgreementsRequiresConfirmedReadySign(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	c := env.contributor(t, "bob@example.com")

	var pre domain.PreconditionError
	env.expectRejected(t, &pre, func() error {
		_, _, err := e.SendAgreements(env.Ctx, c.ID, founder)
		return err
	})
	assert.Equal(t, "evaluation.ready_sign_confirmed", pre.Rule)

	ev, err := e.SubmitQuestionnaire(env.Ctx, c.ID, domain.RoleTechnical, rated(5), founder)
	require.NoError(t, err)
	ok, err := e.CanProceedToAgreements(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok, "suggested but unconfirmed")

	_, err = e.ConfirmTag(env.Ctx, ev.ID, domain.ReadySign, founder)
	require.NoError(t, err)
	_, _, err = e.SendAgreements(env.Ctx, c.ID, founder)
	require.NoError(t, err)

	env.expectRejected(t, &pre, func() error {
		_, _, err := e.SendAgreements(env.Ctx, c.ID, founder)
		return err
	})
}

func TestTierRequiresBothSignatures(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	c := env.cleared(t, "cy@example.com")

	var pre domain.PreconditionError
	_, _, err := e.SendAgreements(env.Ctx, c.ID, founder)
	require.NoError(t, err)
	_, err = e.SignAgreement(env.Ctx, c.ID, domain.AgreementNDA, "cy")
	require.NoError(t, err)
	env.expectRejected(t, &pre, func() error {
		_, err := e.ProvisionAccess(env.Ctx, c.ID, 1, founder)
		return err
	})
	assert.Equal(t, "agreements.signed", pre.Rule)

	var transition domain.InvalidTransitionError
	env.expectRejected(t, &transition, func() error {
		_, err := e.SignAgreement(env.Ctx, c.ID, domain.AgreementNDA, "cy")
		return err
	})

	_, err = e.SignAgreement(env.Ctx, c.ID, domain.AgreementIPAssignment, "cy")
	require.NoError(t, err)
	_, err = e.ProvisionAccess(env.Ctx, c.ID, 3, founder)
	require.NoError(t, err)
	env.expectRejected(t, &pre, func() error {
		_, err := e.ProvisionAccess(env.Ctx, c.ID, 1, founder)
		return err
	})
	assert.Equal(t, "tier.zero", pre.Rule)

	c, err = e.ChangeAccessTier(env.Ctx, c.ID, 1, founder)
	require.NoError(t, err)
	assert.Equal(t, 1, c.AccessTier)
	c, err = e.StartWork(env.Ctx, c.ID, "cy")
	require.NoError(t, err)
	assert.Equal(t, domain.StageWorking, c.WorkflowStage)

	history, err := e.ListContributors(env.Ctx, "")
	require.NoError(t, err)
	for _, c := range history {
		assert.NoError(t, gate.CheckInvariant(c))
	}
}

func TestStageTransitionsAreForwardOnly(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	c := env.contributor(t, "dee@example.com")

	_, err := e.RequestDocuments(env.Ctx, c.ID, founder)
	require.NoError(t, err)
	var transition domain.InvalidTransitionError
	env.expectRejected(t, &transition, func() error {
		_, err := e.RequestDocuments(env.Ctx, c.ID, founder)
		return err
	})
	env.expectRejected(t, &transition, func() error {
		_, err := e.Archive(env.Ctx, c.ID, founder)
		return err
	})
	env.expectRejected(t, &transition, func() error {
		_, err := e.StartWork(env.Ctx, c.ID, founder)
		return err
	})

	c, err = e.RevokeAccess(env.Ctx, c.ID, "withdrew", founder)
	require.NoError(t, err)
	assert.Equal(t, domain.StageExit, c.WorkflowStage)
	assert.Equal(t, "withdrew", c.RevocationReason)
}

func TestCreateContributorValidation(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	env.contributor(t, "eve@example.com")

	var validation domain.ValidationError
	env.expectRejected(t, &validation, func() error {
		_, err := e.CreateContributor(env.Ctx, engine.ContributorCreateOptions{LegalName: "X", Email: "nope", RoleType: domain.RoleTechnical, Actor: founder})
		return err
	})
	env.expectRejected(t, &validation, func() error {
		_, err := e.CreateContributor(env.Ctx, engine.ContributorCreateOptions{LegalName: "X", Email: "x@example.com", RoleType: "wizard", Actor: founder})
		return err
	})
	var pre domain.PreconditionError
	env.expectRejected(t, &pre, func() error {
		_, err := e.CreateContributor(env.Ctx, engine.ContributorCreateOptions{LegalName: "Eve", Email: "EVE@example.com", RoleType: domain.RoleDesignUX, Actor: founder})
		return err
	})
	var nf domain.NotFoundError
	env.expectRejected(t, &nf, func() error {
		_, err := e.RequestDocuments(env.Ctx, "missing", founder)
		return err
	})
}

func TestEvaluationScenario(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	c := env.contributor(t, "fay@example.com")

	ev, err := e.SubmitQuestionnaire(env.Ctx, c.ID, domain.RoleTechnical, rated(5), founder)
	require.NoError(t, err)
	assert.Equal(t, 5.0, ev.OverallScore)
	var tags []string
	for _, tag := range ev.Tags {
		tags = append(tags, tag.String())
		assert.True(t, tag.AISuggested)
		assert.False(t, tag.ConfirmedByFounder)
	}
	assert.Equal(t, []string{"fit:strong", "risk:none", "ready:sign"}, tags)
	assert.Empty(t, ev.RiskFlags)

	env.expectAudited(t, domain.EntityEvaluation, ev.ID, func() error {
		_, err := e.ConfirmTag(env.Ctx, ev.ID, domain.ReadySign, founder)
		return err
	})
	env.expectAudited(t, domain.EntityEvaluation, ev.ID, func() error {
		var err error
		ev, err = e.Decide(env.Ctx, ev.ID, engine.DecideOptions{Decision: domain.DecisionApproved, Actor: founder})
		return err
	})
	assert.True(t, ev.IsFinalized)
	ok, err := e.CanProceedToAgreements(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	before, err := e.GetEvaluation(env.Ctx, ev.ID)
	require.NoError(t, err)
	beforeJSON, err := json.Marshal(before)
	require.NoError(t, err)

	var fin domain.FinalizedError
	env.expectRejected(t, &fin, func() error {
		_, err := e.UpdateScore(env.Ctx, ev.ID, domain.CategoryCraft, 2, founder)
		return err
	})
	env.expectRejected(t, &fin, func() error {
		_, err := e.ConfirmTag(env.Ctx, ev.ID, domain.FitStrong, founder)
		return err
	})
	env.expectRejected(t, &fin, func() error {
		_, err := e.RemoveTag(env.Ctx, ev.ID, domain.RiskNone, founder)
		return err
	})
	env.expectRejected(t, &fin, func() error {
		_, err := e.Decide(env.Ctx, ev.ID, engine.DecideOptions{Decision: domain.DecisionDeclined, Actor: founder})
		return err
	})

	after, err := e.GetEvaluation(env.Ctx, ev.ID)
	require.NoError(t, err)
	afterJSON, err := json.Marshal(after)
	require.NoError(t, err)
	assert.Equal(t, string(beforeJSON), string(afterJSON))
}

func TestUpdateScoreClearsSuggestion(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	c := env.contributor(t, "gil@example.com")
	ev, err := e.SubmitQuestionnaire(env.Ctx, c.ID, domain.RoleTechnical, rated(4), founder)
	require.NoError(t, err)
	assert.Equal(t, 4.0, ev.OverallScore)

	ev, err = e.UpdateScore(env.Ctx, ev.ID, domain.CategoryCommunication, 5, founder)
	require.NoError(t, err)
	assert.Equal(t, 4.2, ev.OverallScore)
	for _, s := range ev.Scores {
		assert.Equal(t, s.Category != domain.CategoryCommunication, s.AISuggested, s.Category)
	}

	var validation domain.ValidationError
	env.expectRejected(t, &validation, func() error {
		_, err := e.UpdateScore(env.Ctx, ev.ID, domain.CategoryOwnership, 6, founder)
		return err
	})
	env.expectRejected(t, &validation, func() error {
		_, err := e.UpdateScore(env.Ctx, ev.ID, "charisma", 3, founder)
		return err
	})
}

func TestTagsAndDecisionRules(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	c := env.contributor(t, "hal@example.com")
	responses := rated(2)
	responses[0].Answer = "I also consult for a competitor"
	ev, err := e.SubmitQuestionnaire(env.Ctx, c.ID, domain.RoleProductOps, responses, founder)
	require.NoError(t, err)
	require.Len(t, ev.RiskFlags, 1)

	var tags []string
	for _, tag := range ev.Tags {
		tags = append(tags, tag.String())
	}
	assert.Equal(t, []string{"fit:weak", "risk:conflict_of_interest", "ready:decline"}, tags)

	var nf domain.NotFoundError
	env.expectRejected(t, &nf, func() error {
		_, err := e.ConfirmTag(env.Ctx, ev.ID, domain.ReadySign, founder)
		return err
	})
	ev, err = e.RemoveTag(env.Ctx, ev.ID, domain.ReadyDecline, founder)
	require.NoError(t, err)
	assert.Len(t, ev.Tags, 2)

	var pre domain.PreconditionError
	env.expectRejected(t, &pre, func() error {
		_, err := e.Decide(env.Ctx, ev.ID, engine.DecideOptions{Decision: domain.DecisionConditional, Actor: founder})
		return err
	})
	assert.Equal(t, "conditional.requirements", pre.Rule)

	var validation domain.ValidationError
	env.expectRejected(t, &validation, func() error {
		_, err := e.Decide(env.Ctx, ev.ID, engine.DecideOptions{Decision: domain.DecisionPending, Actor: founder})
		return err
	})

	ev, err = e.Decide(env.Ctx, ev.ID, engine.DecideOptions{
		Decision: domain.DecisionConditional, ConditionalRequirements: []string{"disclose the consulting contract"}, Actor: founder,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionConditional, ev.Decision)
	assert.Equal(t, founder, ev.DecidedBy)
}

func TestFounderOnlyOperations(t *testing.T) {
	cfg := config.Default()
	cfg.Governance.Founders = []string{founder}
	env := newTestEnv(t, cfg)
	e := env.Engine
	c := env.contributor(t, "ivy@example.com")
	ev, err := e.SubmitQuestionnaire(env.Ctx, c.ID, domain.RoleTechnical, rated(5), "ivy")
	require.NoError(t, err)

	var forbidden domain.ForbiddenError
	env.expectRejected(t, &forbidden, func() error {
		_, err := e.ConfirmTag(env.Ctx, ev.ID, domain.ReadySign, "ivy")
		return err
	})
	env.expectRejected(t, &forbidden, func() error {
		_, err := e.Decide(env.Ctx, ev.ID, engine.DecideOptions{Decision: domain.DecisionApproved, Actor: "ivy"})
		return err
	})
	var validation domain.ValidationError
	env.expectRejected(t, &validation, func() error {
		_, err := e.ConfirmTag(env.Ctx, ev.ID, domain.ReadySign, "")
		return err
	})
}

func TestMetricsCountOutcomes(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	env.contributor(t, "jo@example.com")
	_, err := e.RequestDocuments(env.Ctx, "missing", founder)
	require.Error(t, err)

	assert.Equal(t, 1.0, opCount(e, "contributor.create", "ok"))
	assert.Equal(t, 1.0, opCount(e, "contributor.request_documents", "not_found"))
}
