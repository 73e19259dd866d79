// Package guardrail holds the static agent registry: which action types each
// agent may request, which of those need a human approval, and the action
// types no agent may ever request.
package guardrail

import (
	"fmt"

	"charterline/internal/domain"
)

const (
	ActionDraftSpec              domain.ActionType = "draft_spec"
	ActionSummarizeFeedback      domain.ActionType = "summarize_feedback"
	ActionGenerateReview         domain.ActionType = "generate_review"
	ActionProposeChecklistUpdate domain.ActionType = "propose_checklist_update"
	ActionUpdateAppMetadata      domain.ActionType = "update_app_metadata"
	ActionDraftAgreement         domain.ActionType = "draft_agreement"
	ActionSendReminder           domain.ActionType = "send_reminder"
	ActionScheduleMeeting        domain.ActionType = "schedule_meeting"
	ActionOpenPullRequest        domain.ActionType = "open_pull_request"

	ActionGrantAccess      domain.ActionType = "grant_access"
	ActionChangeAccessTier domain.ActionType = "change_access_tier"
	ActionApproveAgreement domain.ActionType = "approve_agreement"
	ActionSignAgreement    domain.ActionType = "sign_agreement"
	ActionPublishCode      domain.ActionType = "publish_code"
	ActionMergeCode        domain.ActionType = "merge_code"
	ActionOverrideFounder  domain.ActionType = "override_founder"
	ActionDeleteRecord     domain.ActionType = "delete_record"
	ActionEditAuditLog     domain.ActionType = "edit_audit_log"
)

// Denylist is checked before the agent registry and cannot be configured.
var Denylist = map[domain.ActionType]string{
	ActionGrantAccess:      "granting access is a founder decision",
	ActionChangeAccessTier: "access tiers are assigned by the founder",
	ActionApproveAgreement: "agreements are approved by the founder",
	ActionSignAgreement:    "agents cannot sign agreements",
	ActionPublishCode:      "publishing code requires a human",
	ActionMergeCode:        "merging code requires a human",
	ActionOverrideFounder:  "founder decisions cannot be overridden",
	ActionDeleteRecord:     "governance records are never deleted",
	ActionEditAuditLog:     "the audit log is append-only",
}

type Agent struct {
	ID               string
	Description      string
	Allowed          []domain.ActionType
	RequiresApproval []domain.ActionType
}

var Agents = []Agent{
	{
		ID:               "spec-writer",
		Description:      "Drafts product specs and app metadata",
		Allowed:          []domain.ActionType{ActionDraftSpec, ActionSummarizeFeedback, ActionUpdateAppMetadata},
		RequiresApproval: []domain.ActionType{ActionUpdateAppMetadata},
	},
	{
		ID:               "reviewer",
		Description:      "Reviews apps and proposes readiness changes",
		Allowed:          []domain.ActionType{ActionGenerateReview, ActionSummarizeFeedback, ActionProposeChecklistUpdate},
		RequiresApproval: []domain.ActionType{ActionProposeChecklistUpdate},
	},
	{
		ID:               "ops-assistant",
		Description:      "Handles contributor paperwork and scheduling",
		Allowed:          []domain.ActionType{ActionDraftAgreement, ActionSendReminder, ActionScheduleMeeting},
		RequiresApproval: []domain.ActionType{ActionDraftAgreement, ActionSendReminder},
	},
	{
		ID:               "code-agent",
		Description:      "Prepares code changes for human review",
		Allowed:          []domain.ActionType{ActionDraftSpec, ActionOpenPullRequest},
		RequiresApproval: []domain.ActionType{ActionOpenPullRequest},
	},
}

func Lookup(agentID string) (Agent, bool) {
	for _, a := range Agents {
		if a.ID == agentID {
			return a, true
		}
	}
	return Agent{}, false
}

// Check validates a request and returns whether it needs approval. The
// result is meant to be stored on the action and never recomputed.
func Check(agentID string, action domain.ActionType) (requiresApproval bool, err error) {
	if reason, denied := Denylist[action]; denied {
		return false, domain.PreconditionError{Op: "agent.request", Rule: "guardrail.denylist", Detail: fmt.Sprintf("%s: %s", action, reason)}
	}
	agent, ok := Lookup(agentID)
	if !ok {
		return false, domain.NotFoundError{Entity: "agent", ID: agentID}
	}
	if !contains(agent.Allowed, action) {
		return false, domain.PreconditionError{Op: "agent.request", Rule: "agent.allowed_actions", Detail: fmt.Sprintf("agent %s may not request %s", agentID, action)}
	}
	return contains(agent.RequiresApproval, action), nil
}

func contains(list []domain.ActionType, a domain.ActionType) bool {
	for _, v := range list {
		if v == a {
			return true
		}
	}
	return false
}
