package server

import (
	"charterline/internal/domain"
	"charterline/internal/engine"
)

// Request payloads

type CreateContributorRequest struct {
	LegalName      string          `json:"legal_name" minLength:"1"`
	Email          string          `json:"email" format:"email"`
	RoleType       domain.RoleType `json:"role_type" enum:"product_ops,technical,design_ux"`
	EngagementType string          `json:"engagement_type,omitempty"`
}

type SignAgreementRequest struct {
	Type domain.AgreementType `json:"type" enum:"nda,ip_assignment"`
}

type TierRequest struct {
	Tier int `json:"tier" minimum:"0" maximum:"3"`
}

type RevokeRequest struct {
	Reason string `json:"reason,omitempty"`
}

type SubmitQuestionnaireRequest struct {
	ContributorID  string                         `json:"contributor_id"`
	RoleAppliedFor domain.RoleType                `json:"role_applied_for" enum:"product_ops,technical,design_ux"`
	Responses      []domain.QuestionnaireResponse `json:"responses"`
}

type UpdateScoreRequest struct {
	Category domain.RubricCategory `json:"category" enum:"communication,ownership,craft,reliability,value_alignment"`
	Score    int                   `json:"score"`
}

type TagRequest struct {
	Tag string `json:"tag" example:"ready:sign"`
}

type DecideRequest struct {
	Decision                domain.Decision `json:"decision" enum:"approved,conditional,declined,paused"`
	Notes                   string          `json:"notes,omitempty"`
	ConditionalRequirements []string        `json:"conditional_requirements,omitempty"`
}

type IntakeAppRequest struct {
	Name        string           `json:"name" minLength:"1"`
	Description string           `json:"description,omitempty"`
	Scope       string           `json:"scope,omitempty"`
	TargetUsers string           `json:"target_users,omitempty"`
	Lifecycle   domain.Lifecycle `json:"lifecycle,omitempty" enum:"external,internal-only"`
	RepoURL     string           `json:"repo_url,omitempty"`
}

type UpdateAppRequest struct {
	Name                    *string `json:"name,omitempty"`
	Description             *string `json:"description,omitempty"`
	Scope                   *string `json:"scope,omitempty"`
	TargetUsers             *string `json:"target_users,omitempty"`
	Lifecycle               *string `json:"lifecycle,omitempty" enum:"external,internal-only"`
	RepoURL                 *string `json:"repo_url,omitempty"`
	OwnerConfirmed          *bool   `json:"owner_confirmed,omitempty"`
	AssetOwnershipConfirmed *bool   `json:"asset_ownership_confirmed,omitempty"`
}

func (r UpdateAppRequest) update() engine.AppUpdate {
	upd := engine.AppUpdate{
		Name:                    r.Name,
		Description:             r.Description,
		Scope:                   r.Scope,
		TargetUsers:             r.TargetUsers,
		RepoURL:                 r.RepoURL,
		OwnerConfirmed:          r.OwnerConfirmed,
		AssetOwnershipConfirmed: r.AssetOwnershipConfirmed,
	}
	if r.Lifecycle != nil {
		l := domain.Lifecycle(*r.Lifecycle)
		upd.Lifecycle = &l
	}
	return upd
}

type FounderDecisionRequest struct {
	Decision domain.FounderDecision `json:"decision" enum:"approve,pause,kill"`
	Notes    string                 `json:"notes,omitempty"`
}

type AcknowledgeFlagRequest struct {
	ReviewType domain.ReviewType `json:"review_type" enum:"product_spec,risk_integrity"`
	FlagID     string            `json:"flag_id"`
}

type ChecklistItemRequest struct {
	Item string `json:"item" enum:"privacy_policy,terms_of_service,support_channel,error_monitoring,backup_restore_tested,analytics_configured"`
	Done bool   `json:"done"`
}

type TrafficLightRequest struct {
	Light domain.TrafficLight `json:"light" enum:"green,yellow,red"`
}

type RequestActionRequest struct {
	AgentID string         `json:"agent_id"`
	Action  string         `json:"action"`
	Input   map[string]any `json:"input,omitempty"`
}

type RejectActionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Response payloads

type SendAgreementsResponse struct {
	Contributor domain.Contributor `json:"contributor"`
	Agreements  []domain.Agreement `json:"agreements"`
}

type CanProceedResponse struct {
	ContributorID string `json:"contributor_id"`
	CanProceed    bool   `json:"can_proceed"`
}

type ActiveAppResponse struct {
	Active bool        `json:"active"`
	App    *domain.App `json:"app,omitempty"`
}

type AuditPage struct {
	Items      []domain.AuditLogEntry `json:"items"`
	NextCursor int64                  `json:"next_cursor,omitempty"`
}

type AuditVerifyResponse struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
}

type MigrationsResponse struct {
	Applied []string `json:"applied"`
}

// output wraps a response body for huma.
type output[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) *output[T] {
	return &output[T]{Body: v}
}
