// Package gate maps a contributor's agreement-signature state to the access
// tiers it may hold, and validates requests to move between them.
package gate

import (
	"fmt"

	"charterline/internal/domain"
)

const MaxTier = 3

// AllowedTierRange is the inclusive range of tiers a contributor may hold.
type AllowedTierRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r AllowedTierRange) Contains(tier int) bool {
	return tier >= r.Min && tier <= r.Max
}

// Evaluate returns the tiers legal for c. Only tier 0 is legal unless both
// agreements are signed; the choice among 1..3 belongs to the founder.
func Evaluate(c domain.Contributor) AllowedTierRange {
	if c.WorkflowStage == domain.StageArchived || !c.BothSigned() {
		return AllowedTierRange{Min: 0, Max: 0}
	}
	return AllowedTierRange{Min: 0, Max: MaxTier}
}

// RequestTierChange validates a move to target and returns the updated copy.
func RequestTierChange(c domain.Contributor, target int, actor string) (domain.Contributor, error) {
	if actor == "" {
		return c, domain.ValidationError{Field: "actor", Reason: "required"}
	}
	if target < 0 || target > MaxTier {
		return c, domain.ValidationError{Field: "tier", Reason: fmt.Sprintf("%d outside 0..%d", target, MaxTier)}
	}
	if c.WorkflowStage == domain.StageArchived {
		return c, domain.FinalizedError{Entity: domain.EntityContributor, ID: c.ID}
	}
	if !Evaluate(c).Contains(target) {
		return c, domain.PreconditionError{
			Op:     "tier.change",
			Rule:   "agreements.signed",
			Detail: fmt.Sprintf("nda=%s ip_assignment=%s", c.NDAStatus, c.IPAssignmentStatus),
		}
	}
	c.AccessTier = target
	return c, nil
}

// Revoke applies the revocation cascade to the contributor record. It has no
// precondition other than the record not being archived.
func Revoke(c domain.Contributor, reason string) (domain.Contributor, error) {
	if c.WorkflowStage == domain.StageArchived {
		return c, domain.FinalizedError{Entity: domain.EntityContributor, ID: c.ID}
	}
	c.NDAStatus = domain.SignatureRevoked
	c.IPAssignmentStatus = domain.SignatureRevoked
	c.AccessTier = 0
	c.AccessLevel = domain.AccessNone
	c.WorkflowStage = domain.StageExit
	c.RevocationReason = reason
	return c, nil
}

// CheckInvariant rejects any record holding a tier above 0 without both signatures.
func CheckInvariant(c domain.Contributor) error {
	if c.AccessTier > 0 && !c.BothSigned() {
		return domain.InvariantViolationError{
			Invariant: "tier.requires_signatures",
			Detail:    fmt.Sprintf("contributor %s holds tier %d with nda=%s ip_assignment=%s", c.ID, c.AccessTier, c.NDAStatus, c.IPAssignmentStatus),
		}
	}
	return nil
}
