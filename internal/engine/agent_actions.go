package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"charterline/internal/audit"
	"charterline/internal/domain"
	"charterline/internal/guardrail"
	"charterline/internal/store"
)

func actionID(a domain.AgentAction) string { return a.ID }

// AgentActor is the audit actor recorded for requests made by an agent.
func AgentActor(agentID string) string { return "agent:" + agentID }

// RequestAction queues an action proposed by an agent. Denylisted and
// unregistered actions are refused before anything is recorded. Whether the
// action needs approval is fixed here and never recomputed.
func (e Engine) RequestAction(ctx context.Context, agentID string, action domain.ActionType, input map[string]any) (domain.AgentAction, error) {
	if agentID == "" {
		return domain.AgentAction{}, domain.ValidationError{Field: "agent_id", Reason: "required"}
	}
	var out domain.AgentAction
	err := e.write(ctx, "agent.request", func(t *tx) error {
		requiresApproval, err := guardrail.Check(agentID, action)
		if err != nil {
			return err
		}
		all, err := load[domain.AgentAction](t, store.KeyAgentActions)
		if err != nil {
			return err
		}
		out = domain.AgentAction{
			ID:               uuid.NewString(),
			AgentID:          agentID,
			Action:           action,
			Input:            input,
			Status:           domain.ActionPending,
			RequiresApproval: requiresApproval,
			RequestedAt:      t.now,
		}
		if err := save(t, store.KeyAgentActions, append(all, out)); err != nil {
			return err
		}
		return t.audit("agent_action.requested", domain.EntityAgentAction, out.ID, AgentActor(agentID), audit.Details{
			"agent_id": agentID, "action": action, "requires_approval": requiresApproval,
		})
	})
	if err != nil {
		return domain.AgentAction{}, err
	}
	return out, nil
}

// resolve moves a pending action to approved or rejected. A concurrent
// resolution that already moved the action makes this one fail.
func (e Engine) resolve(ctx context.Context, op, id string, to domain.ActionStatus, actor string, details audit.Details) (domain.AgentAction, error) {
	if err := e.requireFounder(actor); err != nil {
		return domain.AgentAction{}, err
	}
	var out domain.AgentAction
	err := e.write(ctx, op, func(t *tx) error {
		all, err := load[domain.AgentAction](t, store.KeyAgentActions)
		if err != nil {
			return err
		}
		i := indexByID(all, id, actionID)
		if i < 0 {
			return domain.NotFoundError{Entity: domain.EntityAgentAction, ID: id}
		}
		a := all[i]
		if a.Status != domain.ActionPending {
			return domain.InvalidTransitionError{Entity: domain.EntityAgentAction, ID: id, From: string(a.Status), To: string(to)}
		}
		a.Status = to
		a.ResolvedBy = actor
		a.ResolvedAt = optionalString(t.now)
		all[i] = a
		if err := save(t, store.KeyAgentActions, all); err != nil {
			return err
		}
		out = a
		return t.audit("agent_action."+string(to), domain.EntityAgentAction, id, actor, details)
	})
	return out, err
}

func (e Engine) ApproveAction(ctx context.Context, id, approver string) (domain.AgentAction, error) {
	return e.resolve(ctx, "agent.approve", id, domain.ActionApproved, approver, nil)
}

func (e Engine) RejectAction(ctx context.Context, id, actor, reason string) (domain.AgentAction, error) {
	return e.resolve(ctx, "agent.reject", id, domain.ActionRejected, actor, audit.Details{"reason": reason})
}

// CompleteAction marks an action as carried out. Actions that need approval
// must have been approved first.
func (e Engine) CompleteAction(ctx context.Context, id, actor string) (domain.AgentAction, error) {
	if err := requireActor(actor); err != nil {
		return domain.AgentAction{}, err
	}
	var out domain.AgentAction
	err := e.write(ctx, "agent.complete", func(t *tx) error {
		all, err := load[domain.AgentAction](t, store.KeyAgentActions)
		if err != nil {
			return err
		}
		i := indexByID(all, id, actionID)
		if i < 0 {
			return domain.NotFoundError{Entity: domain.EntityAgentAction, ID: id}
		}
		a := all[i]
		switch {
		case a.Status == domain.ActionApproved:
		case a.Status == domain.ActionPending && a.RequiresApproval:
			return domain.PreconditionError{Op: "agent.complete", Rule: "approval.required", Detail: fmt.Sprintf("%s awaits founder approval", a.Action)}
		case a.Status == domain.ActionPending:
		default:
			return domain.InvalidTransitionError{Entity: domain.EntityAgentAction, ID: id, From: string(a.Status), To: string(domain.ActionCompleted)}
		}
		a.Status = domain.ActionCompleted
		a.CompletedAt = optionalString(t.now)
		all[i] = a
		if err := save(t, store.KeyAgentActions, all); err != nil {
			return err
		}
		out = a
		return t.audit("agent_action.completed", domain.EntityAgentAction, id, actor, nil)
	})
	return out, err
}

func (e Engine) GetAction(ctx context.Context, id string) (domain.AgentAction, error) {
	all, err := store.LoadCollection[domain.AgentAction](ctx, e.Store, nil, store.KeyAgentActions)
	if err != nil {
		return domain.AgentAction{}, err
	}
	if i := indexByID(all, id, actionID); i >= 0 {
		return all[i], nil
	}
	return domain.AgentAction{}, domain.NotFoundError{Entity: domain.EntityAgentAction, ID: id}
}

// ListActions returns actions in request order, optionally filtered by status.
func (e Engine) ListActions(ctx context.Context, status domain.ActionStatus) ([]domain.AgentAction, error) {
	all, err := store.LoadCollection[domain.AgentAction](ctx, e.Store, nil, store.KeyAgentActions)
	if err != nil {
		return nil, err
	}
	out := []domain.AgentAction{}
	for _, a := range all {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}
