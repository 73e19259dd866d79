package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterline/internal/domain"
	"charterline/internal/engine"
	"charterline/internal/review"
)

func (env testEnv) app(t *testing.T, name string) domain.App {
	t.Helper()
	a, err := env.Engine.IntakeApp(env.Ctx, engine.AppIntakeOptions{
		Name:        name,
		Description: "A bookkeeping helper for small studios that tracks invoices and expenses.",
		Scope:       "Invoice capture, expense tagging, monthly export to CSV.",
		TargetUsers: "studio owners",
		Lifecycle:   domain.LifecycleExternal,
		RepoURL:     "https://git.example.com/" + name,
		Actor:       founder,
	})
	require.NoError(t, err)
	return a
}

// approved takes an app through ownership confirmation, review and approval.
func (env testEnv) approved(t *testing.T, name string) domain.App {
	t.Helper()
	e := env.Engine
	a := env.app(t, name)
	yes := true
	_, err := e.UpdateApp(env.Ctx, a.ID, engine.AppUpdate{OwnerConfirmed: &yes, AssetOwnershipConfirmed: &yes}, founder)
	require.NoError(t, err)
	_, err = e.RunAgentReview(env.Ctx, a.ID, founder)
	require.NoError(t, err)
	a, err = e.MakeFounderDecision(env.Ctx, a.ID, domain.FounderApprove, "ship it", founder)
	require.NoError(t, err)
	require.Equal(t, domain.AppApproved, a.Status)
	return a
}

func TestIntakeAppDefaults(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	a, err := e.IntakeApp(env.Ctx, engine.AppIntakeOptions{Name: "Tiny Notes", Actor: founder})
	require.NoError(t, err)
	assert.Equal(t, domain.AppUnreviewed, a.Status)
	assert.Equal(t, domain.LifecycleInternalOnly, a.Lifecycle)
	assert.Equal(t, domain.LightRed, a.TrafficLight)
	assert.False(t, a.IsActive)

	var pre domain.PreconditionError
	env.expectRejected(t, &pre, func() error {
		_, err := e.IntakeApp(env.Ctx, engine.AppIntakeOptions{Name: "tiny-notes", Actor: founder})
		return err
	})
	assert.Equal(t, "app.name_unique", pre.Rule)
}

func TestApproveRequiresOwnership(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	a := env.app(t, "ledger")

	var transition domain.InvalidTransitionError
	env.expectRejected(t, &transition, func() error {
		_, err := e.MakeFounderDecision(env.Ctx, a.ID, domain.FounderApprove, "", founder)
		return err
	})

	a, err := e.RunAgentReview(env.Ctx, a.ID, founder)
	require.NoError(t, err)
	assert.Equal(t, domain.AppInReview, a.Status)
	assert.True(t, a.AgentReviewComplete)
	require.NotNil(t, a.RiskIntegrityReview)

	var pre domain.PreconditionError
	env.expectRejected(t, &pre, func() error {
		_, err := e.MakeFounderDecision(env.Ctx, a.ID, domain.FounderApprove, "", founder)
		return err
	})
	assert.Equal(t, "owner.confirmed", pre.Rule)

	yes := true
	_, err = e.UpdateApp(env.Ctx, a.ID, engine.AppUpdate{OwnerConfirmed: &yes, AssetOwnershipConfirmed: &yes}, founder)
	require.NoError(t, err)
	env.expectAudited(t, domain.EntityApp, a.ID, func() error {
		var err error
		a, err = e.MakeFounderDecision(env.Ctx, a.ID, domain.FounderApprove, "", founder)
		return err
	})
	assert.Equal(t, domain.AppApproved, a.Status)
	require.NotNil(t, a.FounderDecision)
	assert.Equal(t, domain.FounderApprove, *a.FounderDecision)

	empty := ""
	env.expectRejected(t, &pre, func() error {
		_, err := e.UpdateApp(env.Ctx, a.ID, engine.AppUpdate{RepoURL: &empty}, founder)
		return err
	})
	assert.Equal(t, "repo_url.present", pre.Rule)
}

func TestSingleActiveApp(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	first := env.approved(t, "first")
	second := env.approved(t, "second")

	_, err := e.SetActive(env.Ctx, first.ID, founder)
	require.NoError(t, err)
	var transition domain.InvalidTransitionError
	env.expectRejected(t, &transition, func() error {
		_, err := e.SetActive(env.Ctx, first.ID, founder)
		return err
	})

	env.expectAudited(t, domain.EntityApp, second.ID, func() error {
		_, err := e.SetActive(env.Ctx, second.ID, founder)
		return err
	})
	active, ok, err := e.ActiveApp(env.Ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)

	first, err = e.GetApp(env.Ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, first.IsActive)

	unapproved := env.app(t, "third")
	var pre domain.PreconditionError
	env.expectRejected(t, &pre, func() error {
		_, err := e.SetActive(env.Ctx, unapproved.ID, founder)
		return err
	})

	second, err = e.MakeFounderDecision(env.Ctx, second.ID, domain.FounderPause, "on hold", founder)
	require.NoError(t, err)
	assert.False(t, second.IsActive)
	_, ok, err = e.ActiveApp(env.Ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKillIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	a := env.approved(t, "doomed")
	_, err := e.SetActive(env.Ctx, a.ID, founder)
	require.NoError(t, err)

	a, err = e.MakeFounderDecision(env.Ctx, a.ID, domain.FounderKill, "no market", founder)
	require.NoError(t, err)
	assert.Equal(t, domain.AppKilled, a.Status)
	assert.False(t, a.IsActive)
	assert.NotNil(t, a.ArchivedAt)

	var fin domain.FinalizedError
	for _, fn := range []func() error{
		func() error {
			_, err := e.MakeFounderDecision(env.Ctx, a.ID, domain.FounderApprove, "", founder)
			return err
		},
		func() error {
			_, err := e.SetActive(env.Ctx, a.ID, founder)
			return err
		},
		func() error {
			_, err := e.SetTrafficLight(env.Ctx, a.ID, domain.LightGreen, founder)
			return err
		},
		func() error {
			_, err := e.RunAgentReview(env.Ctx, a.ID, founder)
			return err
		},
	} {
		env.expectRejected(t, &fin, fn)
	}
}

func TestLaunchStatusFollowsState(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	a := env.approved(t, "launcher")

	status, err := e.LaunchStatus(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, status.LaunchApproved)
	assert.Len(t, status.Blockers, len(review.ChecklistItems))

	for _, item := range review.ChecklistItems {
		_, err := e.SetChecklistItem(env.Ctx, a.ID, item, true, founder)
		require.NoError(t, err)
	}
	status, err = e.LaunchStatus(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, status.LaunchApproved, "light is still red")
	assert.Empty(t, status.Blockers)

	_, err = e.SetTrafficLight(env.Ctx, a.ID, domain.LightGreen, founder)
	require.NoError(t, err)
	status, err = e.LaunchStatus(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, status.LaunchApproved)

	_, err = e.SetChecklistItem(env.Ctx, a.ID, review.ItemBackupRestoreTested, false, founder)
	require.NoError(t, err)
	status, err = e.LaunchStatus(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, status.LaunchApproved)
	assert.Equal(t, []string{"checklist item backup_restore_tested incomplete"}, status.Blockers)

	var validation domain.ValidationError
	env.expectRejected(t, &validation, func() error {
		_, err := e.SetChecklistItem(env.Ctx, a.ID, "press_kit", true, founder)
		return err
	})
}

func TestFlagsBlockLaunchUntilAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	a, err := e.IntakeApp(env.Ctx, engine.AppIntakeOptions{
		Name:        "Checkout Helper",
		Description: "A checkout flow for independent shops that want card payments without a platform.",
		Scope:       "Hosted checkout page, receipts by mail, refund tracking.",
		TargetUsers: "shop owners",
		Lifecycle:   domain.LifecycleExternal,
		RepoURL:     "https://git.example.com/checkout",
		Actor:       founder,
	})
	require.NoError(t, err)
	a, err = e.RunAgentReview(env.Ctx, a.ID, founder)
	require.NoError(t, err)

	var risk []string
	for _, f := range a.RiskIntegrityReview.Flags {
		risk = append(risk, f.ID)
	}
	require.Contains(t, risk, "risk.payments")

	env.expectAudited(t, domain.EntityApp, a.ID, func() error {
		_, err := e.AcknowledgeFlag(env.Ctx, a.ID, domain.ReviewRiskIntegrity, "risk.payments", founder)
		return err
	})
	var nf domain.NotFoundError
	env.expectRejected(t, &nf, func() error {
		_, err := e.AcknowledgeFlag(env.Ctx, a.ID, domain.ReviewProductSpec, "risk.payments", founder)
		return err
	})

	status, err := e.LaunchStatus(env.Ctx, a.ID)
	require.NoError(t, err)
	for _, b := range status.Blockers {
		assert.NotContains(t, b, "risk.payments")
	}
}

func TestUpdateAppRejectsNoop(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	a := env.app(t, "noop")
	same := a.Scope

	var validation domain.ValidationError
	env.expectRejected(t, &validation, func() error {
		_, err := e.UpdateApp(env.Ctx, a.ID, engine.AppUpdate{Scope: &same}, founder)
		return err
	})

	scope := "Invoice capture only, exported weekly as CSV."
	env.expectAudited(t, domain.EntityApp, a.ID, func() error {
		var err error
		a, err = e.UpdateApp(env.Ctx, a.ID, engine.AppUpdate{Scope: &scope}, founder)
		return err
	})
	assert.Equal(t, scope, a.Scope)

	trail, err := e.AuditByEntity(env.Ctx, domain.EntityApp, a.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "app.updated", trail[0].Action)
	assert.Equal(t, "app.created", trail[1].Action)
}
