package domain

type RoleType string

const (
	RoleProductOps RoleType = "product_ops"
	RoleTechnical  RoleType = "technical"
	RoleDesignUX   RoleType = "design_ux"
)

func (r RoleType) Valid() bool {
	switch r {
	case RoleProductOps, RoleTechnical, RoleDesignUX:
		return true
	}
	return false
}

// SignatureStatus tracks one agreement from the contributor's side.
type SignatureStatus string

const (
	SignatureNotSent SignatureStatus = "not_sent"
	SignatureSent    SignatureStatus = "sent"
	SignatureSigned  SignatureStatus = "signed"
	SignatureRevoked SignatureStatus = "revoked"
	SignatureExpired SignatureStatus = "expired"
)

type Stage string

const (
	StageIntake       Stage = "intake"
	StageDocuments    Stage = "documents"
	StageSigning      Stage = "signing"
	StageProvisioning Stage = "provisioning"
	StageReady        Stage = "ready"
	StageWorking      Stage = "working"
	StageExit         Stage = "exit"
	StageArchived     Stage = "archived"
)

func (s Stage) Valid() bool {
	switch s {
	case StageIntake, StageDocuments, StageSigning, StageProvisioning, StageReady, StageWorking, StageExit, StageArchived:
		return true
	}
	return false
}

// AccessLevel is the coarse access flag, independent of the numeric tier.
type AccessLevel string

const (
	AccessNone    AccessLevel = "none"
	AccessLimited AccessLevel = "limited"
)

type Contributor struct {
	ID                 string          `json:"id"`
	LegalName          string          `json:"legal_name"`
	Email              string          `json:"email"`
	RoleType           RoleType        `json:"role_type" enum:"product_ops,technical,design_ux"`
	EngagementType     string          `json:"engagement_type,omitempty"`
	NDAStatus          SignatureStatus `json:"nda_status" enum:"not_sent,sent,signed,revoked,expired"`
	IPAssignmentStatus SignatureStatus `json:"ip_assignment_status" enum:"not_sent,sent,signed,revoked,expired"`
	AccessTier         int             `json:"access_tier" minimum:"0" maximum:"3"`
	AccessLevel        AccessLevel     `json:"access_level" enum:"none,limited"`
	WorkflowStage      Stage           `json:"workflow_stage" enum:"intake,documents,signing,provisioning,ready,working,exit,archived"`
	RevocationReason   string          `json:"revocation_reason,omitempty"`
	CreatedAt          string          `json:"created_at" format:"date-time"`
	UpdatedAt          string          `json:"updated_at" format:"date-time"`
	ArchivedAt         *string         `json:"archived_at,omitempty" format:"date-time"`
}

// BothSigned reports whether the NDA and IP assignment are both signed.
func (c Contributor) BothSigned() bool {
	return c.NDAStatus == SignatureSigned && c.IPAssignmentStatus == SignatureSigned
}

type AgreementType string

const (
	AgreementNDA          AgreementType = "nda"
	AgreementIPAssignment AgreementType = "ip_assignment"
)

func (t AgreementType) Valid() bool {
	return t == AgreementNDA || t == AgreementIPAssignment
}

type AgreementStatus string

const (
	AgreementSent    AgreementStatus = "sent"
	AgreementSigned  AgreementStatus = "signed"
	AgreementRevoked AgreementStatus = "revoked"
)

type Agreement struct {
	ID            string          `json:"id"`
	ContributorID string          `json:"contributor_id"`
	Type          AgreementType   `json:"type" enum:"nda,ip_assignment"`
	Version       string          `json:"version"`
	Status        AgreementStatus `json:"status" enum:"sent,signed,revoked"`
	SentAt        string          `json:"sent_at" format:"date-time"`
	SignedAt      *string         `json:"signed_at,omitempty" format:"date-time"`
	RevokedAt     *string         `json:"revoked_at,omitempty" format:"date-time"`
}

type Decision string

const (
	DecisionPending     Decision = "pending"
	DecisionApproved    Decision = "approved"
	DecisionConditional Decision = "conditional"
	DecisionDeclined    Decision = "declined"
	DecisionPaused      Decision = "paused"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionPending, DecisionApproved, DecisionConditional, DecisionDeclined, DecisionPaused:
		return true
	}
	return false
}

type RubricCategory string

const (
	CategoryCommunication  RubricCategory = "communication"
	CategoryOwnership      RubricCategory = "ownership"
	CategoryCraft          RubricCategory = "craft"
	CategoryReliability    RubricCategory = "reliability"
	CategoryValueAlignment RubricCategory = "value_alignment"
)

type CategoryScore struct {
	Category    RubricCategory `json:"category"`
	Score       int            `json:"score" minimum:"1" maximum:"5"`
	AISuggested bool           `json:"ai_suggested"`
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type RiskCategory string

const (
	RiskConflictOfInterest RiskCategory = "conflict_of_interest"
	RiskAvailability       RiskCategory = "availability"
	RiskIPEncumbrance      RiskCategory = "ip_encumbrance"
	RiskCapability         RiskCategory = "capability"
	RiskCommunication      RiskCategory = "communication"
)

type RiskFlag struct {
	Category RiskCategory `json:"category"`
	Severity Severity     `json:"severity" enum:"low,medium,high"`
	Note     string       `json:"note,omitempty"`
}

type QuestionnaireResponse struct {
	Category RubricCategory `json:"category"`
	Answer   string         `json:"answer"`
	Rating   int            `json:"rating,omitempty" minimum:"0" maximum:"5"`
}

type Evaluation struct {
	ID                      string                  `json:"id"`
	ContributorID           string                  `json:"contributor_id"`
	RoleAppliedFor          RoleType                `json:"role_applied_for"`
	Responses               []QuestionnaireResponse `json:"responses,omitempty"`
	Scores                  []CategoryScore         `json:"scores"`
	OverallScore            float64                 `json:"overall_score"`
	Tags                    []TagEntry              `json:"tags"`
	RiskFlags               []RiskFlag              `json:"risk_flags"`
	Decision                Decision                `json:"decision" enum:"pending,approved,conditional,declined,paused"`
	DecisionNotes           string                  `json:"decision_notes,omitempty"`
	ConditionalRequirements []string                `json:"conditional_requirements,omitempty"`
	IsFinalized             bool                    `json:"is_finalized"`
	DecidedBy               string                  `json:"decided_by,omitempty"`
	DecidedAt               *string                 `json:"decided_at,omitempty" format:"date-time"`
	CreatedAt               string                  `json:"created_at" format:"date-time"`
	UpdatedAt               string                  `json:"updated_at" format:"date-time"`
}

type AppStatus string

const (
	AppUnreviewed AppStatus = "unreviewed"
	AppInReview   AppStatus = "in_review"
	AppApproved   AppStatus = "approved"
	AppPaused     AppStatus = "paused"
	AppKilled     AppStatus = "killed"
)

type Lifecycle string

const (
	LifecycleExternal     Lifecycle = "external"
	LifecycleInternalOnly Lifecycle = "internal-only"
)

func (l Lifecycle) Valid() bool {
	return l == LifecycleExternal || l == LifecycleInternalOnly
}

type TrafficLight string

const (
	LightGreen  TrafficLight = "green"
	LightYellow TrafficLight = "yellow"
	LightRed    TrafficLight = "red"
)

func (l TrafficLight) Valid() bool {
	switch l {
	case LightGreen, LightYellow, LightRed:
		return true
	}
	return false
}

type ReviewType string

const (
	ReviewProductSpec   ReviewType = "product_spec"
	ReviewRiskIntegrity ReviewType = "risk_integrity"
)

func (t ReviewType) Valid() bool {
	return t == ReviewProductSpec || t == ReviewRiskIntegrity
}

type ReviewFlag struct {
	ID             string   `json:"id"`
	Severity       Severity `json:"severity" enum:"low,medium,high"`
	Message        string   `json:"message"`
	Acknowledged   bool     `json:"acknowledged"`
	AcknowledgedBy string   `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *string  `json:"acknowledged_at,omitempty" format:"date-time"`
}

type AgentReview struct {
	Flags           []ReviewFlag `json:"flags"`
	Recommendations []string     `json:"recommendations"`
	GeneratedAt     string       `json:"generated_at" format:"date-time"`
}

// ReadinessChecklist holds the six launch-readiness items.
type ReadinessChecklist struct {
	PrivacyPolicy       bool `json:"privacy_policy"`
	TermsOfService      bool `json:"terms_of_service"`
	SupportChannel      bool `json:"support_channel"`
	ErrorMonitoring     bool `json:"error_monitoring"`
	BackupRestoreTested bool `json:"backup_restore_tested"`
	AnalyticsConfigured bool `json:"analytics_configured"`
}

type FounderDecision string

const (
	FounderApprove FounderDecision = "approve"
	FounderPause   FounderDecision = "pause"
	FounderKill    FounderDecision = "kill"
)

type App struct {
	ID                      string             `json:"id"`
	Name                    string             `json:"name"`
	Description             string             `json:"description,omitempty"`
	Scope                   string             `json:"scope,omitempty"`
	TargetUsers             string             `json:"target_users,omitempty"`
	Status                  AppStatus          `json:"status" enum:"unreviewed,in_review,approved,paused,killed"`
	IsActive                bool               `json:"is_active"`
	Lifecycle               Lifecycle          `json:"lifecycle" enum:"external,internal-only"`
	OwnerConfirmed          bool               `json:"owner_confirmed"`
	AssetOwnershipConfirmed bool               `json:"asset_ownership_confirmed"`
	RepoURL                 string             `json:"repo_url,omitempty"`
	AgentReviewComplete     bool               `json:"agent_review_complete"`
	ProductSpecReview       *AgentReview       `json:"product_spec_review,omitempty"`
	RiskIntegrityReview     *AgentReview       `json:"risk_integrity_review,omitempty"`
	Checklist               ReadinessChecklist `json:"readiness_checklist"`
	TrafficLight            TrafficLight       `json:"traffic_light" enum:"green,yellow,red"`
	FounderDecision         *FounderDecision   `json:"founder_decision,omitempty"`
	FounderNotes            string             `json:"founder_notes,omitempty"`
	DecidedAt               *string            `json:"decided_at,omitempty" format:"date-time"`
	ArchivedAt              *string            `json:"archived_at,omitempty" format:"date-time"`
	CreatedAt               string             `json:"created_at" format:"date-time"`
	UpdatedAt               string             `json:"updated_at" format:"date-time"`
}

// Review returns the review of the given type, nil if it was never run.
func (a App) Review(t ReviewType) *AgentReview {
	switch t {
	case ReviewProductSpec:
		return a.ProductSpecReview
	case ReviewRiskIntegrity:
		return a.RiskIntegrityReview
	}
	return nil
}

type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionApproved  ActionStatus = "approved"
	ActionRejected  ActionStatus = "rejected"
	ActionCompleted ActionStatus = "completed"
)

type ActionType string

type AgentAction struct {
	ID               string         `json:"id"`
	AgentID          string         `json:"agent_id"`
	Action           ActionType     `json:"action"`
	Input            map[string]any `json:"input,omitempty"`
	Status           ActionStatus   `json:"status" enum:"pending,approved,rejected,completed"`
	RequiresApproval bool           `json:"requires_approval"`
	RequestedAt      string         `json:"requested_at" format:"date-time"`
	ResolvedBy       string         `json:"resolved_by,omitempty"`
	ResolvedAt       *string        `json:"resolved_at,omitempty" format:"date-time"`
	CompletedAt      *string        `json:"completed_at,omitempty" format:"date-time"`
}

type AuditLogEntry struct {
	Seq        int64          `json:"seq"`
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor"`
	Timestamp  string         `json:"timestamp" format:"date-time"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   string         `json:"prev_hash,omitempty"`
	Hash       string         `json:"hash"`
}

// Entity types used in the audit log.
const (
	EntityContributor = "contributor"
	EntityAgreement   = "agreement"
	EntityEvaluation  = "evaluation"
	EntityApp         = "app"
	EntityAgentAction = "agent_action"
	EntityMigration   = "migration"
)
