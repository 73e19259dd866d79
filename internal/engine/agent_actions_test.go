package engine_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterline/internal/domain"
	"charterline/internal/engine"
	"charterline/internal/guardrail"
)

func TestDenylistedActionLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine

	var pre domain.PreconditionError
	env.expectRejected(t, &pre, func() error {
		_, err := e.RequestAction(env.Ctx, "ops-assistant", guardrail.ActionGrantAccess, map[string]any{"contributor": "c1"})
		return err
	})
	assert.Equal(t, "guardrail.denylist", pre.Rule)

	env.expectRejected(t, &pre, func() error {
		_, err := e.RequestAction(env.Ctx, "spec-writer", guardrail.ActionOpenPullRequest, nil)
		return err
	})
	assert.Equal(t, "agent.allowed_actions", pre.Rule)

	var nf domain.NotFoundError
	env.expectRejected(t, &nf, func() error {
		_, err := e.RequestAction(env.Ctx, "rogue", guardrail.ActionDraftSpec, nil)
		return err
	})

	actions, err := e.ListActions(env.Ctx, "")
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Equal(t, 2.0, opCount(e, "agent.request", "precondition"))
	assert.Equal(t, 1.0, opCount(e, "agent.request", "not_found"))
}

func TestRequestActionRecordsApprovalNeed(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine

	draft, err := e.RequestAction(env.Ctx, "spec-writer", guardrail.ActionDraftSpec, map[string]any{"app": "ledger"})
	require.NoError(t, err)
	assert.False(t, draft.RequiresApproval)
	assert.Equal(t, domain.ActionPending, draft.Status)

	update, err := e.RequestAction(env.Ctx, "spec-writer", guardrail.ActionUpdateAppMetadata, nil)
	require.NoError(t, err)
	assert.True(t, update.RequiresApproval)

	trail, err := e.AuditByEntity(env.Ctx, domain.EntityAgentAction, update.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, engine.AgentActor("spec-writer"), trail[0].Actor)

	var pre domain.PreconditionError
	env.expectRejected(t, &pre, func() error {
		_, err := e.CompleteAction(env.Ctx, update.ID, "spec-writer")
		return err
	})
	assert.Equal(t, "approval.required", pre.Rule)

	done, err := e.CompleteAction(env.Ctx, draft.ID, "spec-writer")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCompleted, done.Status)

	_, err = e.ApproveAction(env.Ctx, update.ID, founder)
	require.NoError(t, err)
	done, err = e.CompleteAction(env.Ctx, update.ID, "spec-writer")
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)

	var transition domain.InvalidTransitionError
	env.expectRejected(t, &transition, func() error {
		_, err := e.CompleteAction(env.Ctx, update.ID, "spec-writer")
		return err
	})

	completed, err := e.ListActions(env.Ctx, domain.ActionCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 2)
}

func TestRejectedActionCannotComplete(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	a, err := e.RequestAction(env.Ctx, "ops-assistant", guardrail.ActionSendReminder, nil)
	require.NoError(t, err)

	var forbidden domain.ForbiddenError
	env.expectRejected(t, &forbidden, func() error {
		_, err := e.RejectAction(env.Ctx, a.ID, "ops-assistant", "no")
		return err
	})

	a, err = e.RejectAction(env.Ctx, a.ID, founder, "not now")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRejected, a.Status)
	assert.Equal(t, founder, a.ResolvedBy)

	var transition domain.InvalidTransitionError
	env.expectRejected(t, &transition, func() error {
		_, err := e.CompleteAction(env.Ctx, a.ID, founder)
		return err
	})
}

func TestConcurrentResolutionHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	a, err := e.RequestAction(env.Ctx, "code-agent", guardrail.ActionOpenPullRequest, nil)
	require.NoError(t, err)
	before := env.auditCount(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = e.ApproveAction(env.Ctx, a.ID, founder)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = e.RejectAction(env.Ctx, a.ID, founder, "race")
	}()
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		failed++
		var transition domain.InvalidTransitionError
		assert.ErrorAs(t, err, &transition)
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, before+1, env.auditCount(t))

	got, err := e.GetAction(env.Ctx, a.ID)
	require.NoError(t, err)
	if errs[0] == nil {
		assert.Equal(t, domain.ActionApproved, got.Status)
	} else {
		assert.Equal(t, domain.ActionRejected, got.Status)
	}
}
