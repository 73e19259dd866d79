// Package normalize repairs persisted records when the store is opened.
// Everything here works on an in-memory Snapshot and is free of I/O; the
// engine loads the snapshot, runs the passes, and persists the result.
package normalize

import (
	"encoding/json"
	"strings"

	"charterline/internal/domain"
	"charterline/internal/gate"
	"charterline/internal/rubric"
)

// Snapshot is every persisted collection at once.
type Snapshot struct {
	Contributors []domain.Contributor `json:"contributors"`
	Agreements   []domain.Agreement   `json:"agreements"`
	Evaluations  []domain.Evaluation  `json:"evaluations"`
	Apps         []domain.App         `json:"apps"`
	AgentActions []domain.AgentAction `json:"agent_actions"`
}

// Equal reports whether two snapshots would persist identically.
func Equal(a, b Snapshot) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ab) == string(bb)
}

// Normalize drops records missing their identity fields, removes duplicate
// ids (first wins), fills defaults, and repairs the tier and single-active
// invariants. It is idempotent and does not modify s.
func Normalize(s Snapshot, now string) Snapshot {
	out := Snapshot{
		Contributors: []domain.Contributor{},
		Agreements:   []domain.Agreement{},
		Evaluations:  []domain.Evaluation{},
		Apps:         []domain.App{},
		AgentActions: []domain.AgentAction{},
	}

	seen := map[string]bool{}
	for _, c := range s.Contributors {
		c.ID = strings.TrimSpace(c.ID)
		c.Email = strings.ToLower(strings.TrimSpace(c.Email))
		if c.ID == "" || c.Email == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out.Contributors = append(out.Contributors, contributor(c, now))
	}
	contributors := seen

	seen = map[string]bool{}
	for _, a := range s.Agreements {
		if a.ID == "" || !contributors[a.ContributorID] || !a.Type.Valid() || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		switch a.Status {
		case domain.AgreementSent, domain.AgreementSigned, domain.AgreementRevoked:
		default:
			a.Status = domain.AgreementSent
		}
		if a.SentAt == "" {
			a.SentAt = now
		}
		out.Agreements = append(out.Agreements, a)
	}

	seen = map[string]bool{}
	for _, e := range s.Evaluations {
		if e.ID == "" || e.ContributorID == "" || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out.Evaluations = append(out.Evaluations, evaluation(e, now))
	}

	seen = map[string]bool{}
	active := false
	for _, a := range s.Apps {
		a.Name = strings.TrimSpace(a.Name)
		if a.ID == "" || a.Name == "" || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		a = app(a, now)
		if a.IsActive {
			if active {
				a.IsActive = false
			}
			active = true
		}
		out.Apps = append(out.Apps, a)
	}

	seen = map[string]bool{}
	for _, a := range s.AgentActions {
		if a.ID == "" || a.AgentID == "" || a.Action == "" || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		switch a.Status {
		case domain.ActionPending, domain.ActionApproved, domain.ActionRejected, domain.ActionCompleted:
		default:
			a.Status = domain.ActionPending
		}
		if a.RequestedAt == "" {
			a.RequestedAt = now
		}
		out.AgentActions = append(out.AgentActions, a)
	}
	return out
}

func validSignature(s domain.SignatureStatus) bool {
	switch s {
	case domain.SignatureNotSent, domain.SignatureSent, domain.SignatureSigned, domain.SignatureRevoked, domain.SignatureExpired:
		return true
	}
	return false
}

func contributor(c domain.Contributor, now string) domain.Contributor {
	if !c.RoleType.Valid() {
		c.RoleType = domain.RoleProductOps
	}
	if !validSignature(c.NDAStatus) {
		c.NDAStatus = domain.SignatureNotSent
	}
	if !validSignature(c.IPAssignmentStatus) {
		c.IPAssignmentStatus = domain.SignatureNotSent
	}
	if !c.WorkflowStage.Valid() {
		c.WorkflowStage = domain.StageIntake
	}
	if c.AccessTier < 0 || c.AccessTier > gate.MaxTier || gate.CheckInvariant(c) != nil {
		c.AccessTier = 0
	}
	if c.AccessLevel != domain.AccessNone && c.AccessLevel != domain.AccessLimited {
		c.AccessLevel = domain.AccessNone
		if c.BothSigned() {
			c.AccessLevel = domain.AccessLimited
		}
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = c.CreatedAt
	}
	return c
}

func evaluation(e domain.Evaluation, now string) domain.Evaluation {
	if !e.Decision.Valid() {
		e.Decision = domain.DecisionPending
	}
	e.IsFinalized = e.Decision != domain.DecisionPending
	if e.Scores == nil {
		e.Scores = []domain.CategoryScore{}
	}
	if len(e.Scores) > 0 {
		e.OverallScore = rubric.Overall(e.Scores)
	}
	if e.Tags == nil {
		e.Tags = []domain.TagEntry{}
	}
	if e.RiskFlags == nil {
		e.RiskFlags = []domain.RiskFlag{}
	}
	if e.CreatedAt == "" {
		e.CreatedAt = now
	}
	if e.UpdatedAt == "" {
		e.UpdatedAt = e.CreatedAt
	}
	return e
}

func app(a domain.App, now string) domain.App {
	switch a.Status {
	case domain.AppUnreviewed, domain.AppInReview, domain.AppApproved, domain.AppPaused, domain.AppKilled:
	default:
		a.Status = domain.AppUnreviewed
	}
	if !a.Lifecycle.Valid() {
		a.Lifecycle = domain.LifecycleInternalOnly
	}
	if !a.TrafficLight.Valid() {
		a.TrafficLight = domain.LightRed
	}
	if a.Status != domain.AppApproved {
		a.IsActive = false
	}
	if a.CreatedAt == "" {
		a.CreatedAt = now
	}
	if a.UpdatedAt == "" {
		a.UpdatedAt = a.CreatedAt
	}
	return a
}
