package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"charterline/internal/audit"
	"charterline/internal/domain"
	"charterline/internal/gate"
	"charterline/internal/store"
)

func contributorID(c domain.Contributor) string { return c.ID }

// contributorRef is a contributor loaded for mutation together with its
// collection, so the caller can save the whole collection back.
type contributorRef struct {
	all []domain.Contributor
	idx int
}

func (r contributorRef) get() domain.Contributor { return r.all[r.idx] }

func (t *tx) contributor(id string) (contributorRef, error) {
	all, err := load[domain.Contributor](t, store.KeyContributors)
	if err != nil {
		return contributorRef{}, err
	}
	idx := indexByID(all, id, contributorID)
	if idx < 0 {
		return contributorRef{}, domain.NotFoundError{Entity: domain.EntityContributor, ID: id}
	}
	return contributorRef{all: all, idx: idx}, nil
}

// mutableContributor loads a contributor that is not archived.
func (t *tx) mutableContributor(id string) (contributorRef, error) {
	ref, err := t.contributor(id)
	if err != nil {
		return ref, err
	}
	if ref.get().WorkflowStage == domain.StageArchived {
		return ref, domain.FinalizedError{Entity: domain.EntityContributor, ID: id}
	}
	return ref, nil
}

// putContributor checks the tier invariant and saves the collection.
func (t *tx) putContributor(ref contributorRef, c domain.Contributor) error {
	if err := gate.CheckInvariant(c); err != nil {
		return err
	}
	c.UpdatedAt = t.now
	ref.all[ref.idx] = c
	return save(t, store.KeyContributors, ref.all)
}

func ensureStageTransition(c domain.Contributor, allowed []domain.Stage, to domain.Stage) error {
	for _, s := range allowed {
		if c.WorkflowStage == s {
			return nil
		}
	}
	return domain.InvalidTransitionError{Entity: domain.EntityContributor, ID: c.ID, From: string(c.WorkflowStage), To: string(to)}
}

// ContributorCreateOptions are parameters for creating a contributor.
type ContributorCreateOptions struct {
	LegalName      string
	Email          string
	RoleType       domain.RoleType
	EngagementType string
	Actor          string
}

func (e Engine) CreateContributor(ctx context.Context, opts ContributorCreateOptions) (domain.Contributor, error) {
	if err := requireActor(opts.Actor); err != nil {
		return domain.Contributor{}, err
	}
	name := strings.TrimSpace(opts.LegalName)
	email := strings.ToLower(strings.TrimSpace(opts.Email))
	if name == "" {
		return domain.Contributor{}, domain.ValidationError{Field: "legal_name", Reason: "required"}
	}
	if !strings.Contains(email, "@") {
		return domain.Contributor{}, domain.ValidationError{Field: "email", Reason: fmt.Sprintf("%q is not an email address", opts.Email)}
	}
	if !opts.RoleType.Valid() {
		return domain.Contributor{}, domain.ValidationError{Field: "role_type", Reason: fmt.Sprintf("unknown role %q", opts.RoleType)}
	}
	var c domain.Contributor
	err := e.write(ctx, "contributor.create", func(t *tx) error {
		all, err := load[domain.Contributor](t, store.KeyContributors)
		if err != nil {
			return err
		}
		for _, existing := range all {
			if existing.Email == email {
				return domain.PreconditionError{Op: "contributor.create", Rule: "email.unique", Detail: fmt.Sprintf("%s is already contributor %s", email, existing.ID)}
			}
		}
		c = domain.Contributor{
			ID:                 uuid.NewString(),
			LegalName:          name,
			Email:              email,
			RoleType:           opts.RoleType,
			EngagementType:     opts.EngagementType,
			NDAStatus:          domain.SignatureNotSent,
			IPAssignmentStatus: domain.SignatureNotSent,
			AccessTier:         0,
			AccessLevel:        domain.AccessNone,
			WorkflowStage:      domain.StageIntake,
			CreatedAt:          t.now,
			UpdatedAt:          t.now,
		}
		if err := save(t, store.KeyContributors, append(all, c)); err != nil {
			return err
		}
		return t.audit("contributor.created", domain.EntityContributor, c.ID, opts.Actor, audit.Details{
			"email": c.Email, "role_type": c.RoleType,
		})
	})
	if err != nil {
		return domain.Contributor{}, err
	}
	return c, nil
}

// RequestDocuments moves a contributor from intake to documents.
func (e Engine) RequestDocuments(ctx context.Context, id, actor string) (domain.Contributor, error) {
	if err := requireActor(actor); err != nil {
		return domain.Contributor{}, err
	}
	var out domain.Contributor
	err := e.write(ctx, "contributor.request_documents", func(t *tx) error {
		ref, err := t.mutableContributor(id)
		if err != nil {
			return err
		}
		c := ref.get()
		if err := ensureStageTransition(c, []domain.Stage{domain.StageIntake}, domain.StageDocuments); err != nil {
			return err
		}
		c.WorkflowStage = domain.StageDocuments
		if err := t.putContributor(ref, c); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("contributor.documents_requested", domain.EntityContributor, id, actor, nil)
	})
	return out, err
}

// SendAgreements issues the NDA and IP assignment. The contributor's latest
// evaluation must carry a founder-confirmed ready:sign tag.
func (e Engine) SendAgreements(ctx context.Context, id, actor string) (domain.Contributor, []domain.Agreement, error) {
	if err := requireActor(actor); err != nil {
		return domain.Contributor{}, nil, err
	}
	var (
		out  domain.Contributor
		sent []domain.Agreement
	)
	err := e.write(ctx, "contributor.send_agreements", func(t *tx) error {
		ref, err := t.mutableContributor(id)
		if err != nil {
			return err
		}
		c := ref.get()
		if err := ensureStageTransition(c, []domain.Stage{domain.StageIntake, domain.StageDocuments}, domain.StageSigning); err != nil {
			return err
		}
		if c.NDAStatus != domain.SignatureNotSent || c.IPAssignmentStatus != domain.SignatureNotSent {
			return domain.PreconditionError{Op: "contributor.send_agreements", Rule: "agreements.not_sent",
				Detail: fmt.Sprintf("nda=%s ip_assignment=%s", c.NDAStatus, c.IPAssignmentStatus)}
		}
		evals, err := load[domain.Evaluation](t, store.KeyEvaluations)
		if err != nil {
			return err
		}
		if !canProceed(evals, id) {
			return domain.PreconditionError{Op: "contributor.send_agreements", Rule: "evaluation.ready_sign_confirmed",
				Detail: "the latest evaluation has no founder-confirmed ready:sign tag"}
		}

		agreements, err := load[domain.Agreement](t, store.KeyAgreements)
		if err != nil {
			return err
		}
		versions := map[domain.AgreementType]string{
			domain.AgreementNDA:          e.Config.Agreements.NDAVersion,
			domain.AgreementIPAssignment: e.Config.Agreements.IPAssignmentVersion,
		}
		for _, typ := range []domain.AgreementType{domain.AgreementNDA, domain.AgreementIPAssignment} {
			a := domain.Agreement{
				ID:            uuid.NewString(),
				ContributorID: id,
				Type:          typ,
				Version:       versions[typ],
				Status:        domain.AgreementSent,
				SentAt:        t.now,
			}
			sent = append(sent, a)
			agreements = append(agreements, a)
		}
		if err := save(t, store.KeyAgreements, agreements); err != nil {
			return err
		}
		c.NDAStatus = domain.SignatureSent
		c.IPAssignmentStatus = domain.SignatureSent
		c.WorkflowStage = domain.StageSigning
		if err := t.putContributor(ref, c); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("contributor.agreements_sent", domain.EntityContributor, id, actor, audit.Details{
			"agreements": []string{sent[0].ID, sent[1].ID},
			"versions":   versions,
		})
	})
	if err != nil {
		return domain.Contributor{}, nil, err
	}
	return out, sent, nil
}

func activeAgreement(all []domain.Agreement, contributorID string, typ domain.AgreementType) int {
	found := -1
	for i, a := range all {
		if a.ContributorID == contributorID && a.Type == typ {
			found = i
		}
	}
	return found
}

// SignAgreement records the contributor's signature on one agreement. When
// both are signed the contributor moves to provisioning with limited access.
func (e Engine) SignAgreement(ctx context.Context, id string, typ domain.AgreementType, actor string) (domain.Contributor, error) {
	if err := requireActor(actor); err != nil {
		return domain.Contributor{}, err
	}
	if !typ.Valid() {
		return domain.Contributor{}, domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown agreement type %q", typ)}
	}
	var out domain.Contributor
	err := e.write(ctx, "contributor.sign_agreement", func(t *tx) error {
		ref, err := t.mutableContributor(id)
		if err != nil {
			return err
		}
		agreements, err := load[domain.Agreement](t, store.KeyAgreements)
		if err != nil {
			return err
		}
		i := activeAgreement(agreements, id, typ)
		if i < 0 {
			return domain.NotFoundError{Entity: domain.EntityAgreement, ID: fmt.Sprintf("%s/%s", id, typ)}
		}
		a := agreements[i]
		if a.Status != domain.AgreementSent {
			return domain.InvalidTransitionError{Entity: domain.EntityAgreement, ID: a.ID, From: string(a.Status), To: string(domain.AgreementSigned)}
		}
		a.Status = domain.AgreementSigned
		a.SignedAt = optionalString(t.now)
		agreements[i] = a
		if err := save(t, store.KeyAgreements, agreements); err != nil {
			return err
		}

		c := ref.get()
		if typ == domain.AgreementNDA {
			c.NDAStatus = domain.SignatureSigned
		} else {
			c.IPAssignmentStatus = domain.SignatureSigned
		}
		if c.BothSigned() {
			c.WorkflowStage = domain.StageProvisioning
			c.AccessLevel = domain.AccessLimited
		}
		if err := t.putContributor(ref, c); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("agreement.signed", domain.EntityContributor, id, actor, audit.Details{
			"agreement_id": a.ID, "type": typ, "both_signed": c.BothSigned(),
		})
	})
	return out, err
}

// ProvisionAccess assigns the first non-zero tier once both agreements are signed.
func (e Engine) ProvisionAccess(ctx context.Context, id string, tier int, actor string) (domain.Contributor, error) {
	if err := e.requireFounder(actor); err != nil {
		return domain.Contributor{}, err
	}
	if tier < 1 || tier > gate.MaxTier {
		return domain.Contributor{}, domain.ValidationError{Field: "tier", Reason: fmt.Sprintf("%d outside 1..%d", tier, gate.MaxTier)}
	}
	var out domain.Contributor
	err := e.write(ctx, "contributor.provision_access", func(t *tx) error {
		ref, err := t.mutableContributor(id)
		if err != nil {
			return err
		}
		c := ref.get()
		if c.AccessTier != 0 {
			return domain.PreconditionError{Op: "contributor.provision_access", Rule: "tier.zero",
				Detail: fmt.Sprintf("contributor already holds tier %d", c.AccessTier)}
		}
		c, err = gate.RequestTierChange(c, tier, actor)
		if err != nil {
			return err
		}
		if c.WorkflowStage == domain.StageProvisioning {
			c.WorkflowStage = domain.StageReady
		}
		if err := t.putContributor(ref, c); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("contributor.access_provisioned", domain.EntityContributor, id, actor, audit.Details{"tier": tier})
	})
	return out, err
}

// ChangeAccessTier moves a provisioned contributor to another tier, 0 included.
func (e Engine) ChangeAccessTier(ctx context.Context, id string, tier int, actor string) (domain.Contributor, error) {
	if err := e.requireFounder(actor); err != nil {
		return domain.Contributor{}, err
	}
	var out domain.Contributor
	err := e.write(ctx, "contributor.change_tier", func(t *tx) error {
		ref, err := t.mutableContributor(id)
		if err != nil {
			return err
		}
		c := ref.get()
		if c.WorkflowStage != domain.StageReady && c.WorkflowStage != domain.StageWorking {
			return domain.PreconditionError{Op: "contributor.change_tier", Rule: "stage.provisioned",
				Detail: fmt.Sprintf("stage is %s", c.WorkflowStage)}
		}
		from := c.AccessTier
		c, err = gate.RequestTierChange(c, tier, actor)
		if err != nil {
			return err
		}
		if err := t.putContributor(ref, c); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("contributor.tier_changed", domain.EntityContributor, id, actor, audit.Details{"from": from, "to": tier})
	})
	return out, err
}

// StartWork moves a ready contributor holding a tier above 0 to working.
func (e Engine) StartWork(ctx context.Context, id, actor string) (domain.Contributor, error) {
	if err := requireActor(actor); err != nil {
		return domain.Contributor{}, err
	}
	var out domain.Contributor
	err := e.write(ctx, "contributor.start_work", func(t *tx) error {
		ref, err := t.mutableContributor(id)
		if err != nil {
			return err
		}
		c := ref.get()
		if err := ensureStageTransition(c, []domain.Stage{domain.StageReady}, domain.StageWorking); err != nil {
			return err
		}
		if c.AccessTier == 0 {
			return domain.PreconditionError{Op: "contributor.start_work", Rule: "tier.positive", Detail: "no access tier provisioned"}
		}
		c.WorkflowStage = domain.StageWorking
		if err := t.putContributor(ref, c); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("contributor.work_started", domain.EntityContributor, id, actor, nil)
	})
	return out, err
}

// RevokeAccess revokes both agreements, drops the tier to 0 and moves the
// contributor to exit, from any stage except archived. The contributor and
// its agreements are written in one transaction.
func (e Engine) RevokeAccess(ctx context.Context, id, reason, actor string) (domain.Contributor, error) {
	if err := requireActor(actor); err != nil {
		return domain.Contributor{}, err
	}
	var out domain.Contributor
	err := e.write(ctx, "contributor.revoke_access", func(t *tx) error {
		ref, err := t.mutableContributor(id)
		if err != nil {
			return err
		}
		prev := ref.get()
		c, err := gate.Revoke(prev, reason)
		if err != nil {
			return err
		}
		agreements, err := load[domain.Agreement](t, store.KeyAgreements)
		if err != nil {
			return err
		}
		revoked := []string{}
		for i, a := range agreements {
			if a.ContributorID != id || a.Status == domain.AgreementRevoked {
				continue
			}
			a.Status = domain.AgreementRevoked
			a.RevokedAt = optionalString(t.now)
			agreements[i] = a
			revoked = append(revoked, a.ID)
		}
		if err := save(t, store.KeyAgreements, agreements); err != nil {
			return err
		}
		if err := t.putContributor(ref, c); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("contributor.access_revoked", domain.EntityContributor, id, actor, audit.Details{
			"reason":        reason,
			"previous_tier": prev.AccessTier,
			"from_stage":    prev.WorkflowStage,
			"agreements":    revoked,
		})
	})
	return out, err
}

// Archive closes a contributor record for good. Only exited contributors
// can be archived.
func (e Engine) Archive(ctx context.Context, id, actor string) (domain.Contributor, error) {
	if err := e.requireFounder(actor); err != nil {
		return domain.Contributor{}, err
	}
	var out domain.Contributor
	err := e.write(ctx, "contributor.archive", func(t *tx) error {
		ref, err := t.mutableContributor(id)
		if err != nil {
			return err
		}
		c := ref.get()
		if err := ensureStageTransition(c, []domain.Stage{domain.StageExit}, domain.StageArchived); err != nil {
			return err
		}
		c.WorkflowStage = domain.StageArchived
		c.ArchivedAt = optionalString(t.now)
		if err := t.putContributor(ref, c); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("contributor.archived", domain.EntityContributor, id, actor, nil)
	})
	return out, err
}

func (e Engine) GetContributor(ctx context.Context, id string) (domain.Contributor, error) {
	all, err := store.LoadCollection[domain.Contributor](ctx, e.Store, nil, store.KeyContributors)
	if err != nil {
		return domain.Contributor{}, err
	}
	if i := indexByID(all, id, contributorID); i >= 0 {
		return all[i], nil
	}
	return domain.Contributor{}, domain.NotFoundError{Entity: domain.EntityContributor, ID: id}
}

// ListContributors returns contributors, optionally only those in stage.
func (e Engine) ListContributors(ctx context.Context, stage domain.Stage) ([]domain.Contributor, error) {
	all, err := store.LoadCollection[domain.Contributor](ctx, e.Store, nil, store.KeyContributors)
	if err != nil {
		return nil, err
	}
	if stage == "" {
		return all, nil
	}
	out := []domain.Contributor{}
	for _, c := range all {
		if c.WorkflowStage == stage {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e Engine) ListAgreements(ctx context.Context, contributorID string) ([]domain.Agreement, error) {
	all, err := store.LoadCollection[domain.Agreement](ctx, e.Store, nil, store.KeyAgreements)
	if err != nil {
		return nil, err
	}
	out := []domain.Agreement{}
	for _, a := range all {
		if contributorID == "" || a.ContributorID == contributorID {
			out = append(out, a)
		}
	}
	return out, nil
}
