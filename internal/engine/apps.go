package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"charterline/internal/audit"
	"charterline/internal/domain"
	"charterline/internal/normalize"
	"charterline/internal/review"
	"charterline/internal/store"
)

func appID(a domain.App) string { return a.ID }

type appRef struct {
	all []domain.App
	idx int
}

func (r appRef) get() domain.App { return r.all[r.idx] }

func (t *tx) app(id string) (appRef, error) {
	all, err := load[domain.App](t, store.KeyApps)
	if err != nil {
		return appRef{}, err
	}
	idx := indexByID(all, id, appID)
	if idx < 0 {
		return appRef{}, domain.NotFoundError{Entity: domain.EntityApp, ID: id}
	}
	return appRef{all: all, idx: idx}, nil
}

// liveApp loads an app that has not been killed.
func (t *tx) liveApp(id string) (appRef, error) {
	ref, err := t.app(id)
	if err != nil {
		return ref, err
	}
	if ref.get().Status == domain.AppKilled {
		return ref, domain.FinalizedError{Entity: domain.EntityApp, ID: id}
	}
	return ref, nil
}

// putApp saves the collection after checking the app invariants.
func (t *tx) putApp(ref appRef, a domain.App) error {
	a.UpdatedAt = t.now
	ref.all[ref.idx] = a
	if err := checkAppInvariants(ref.all); err != nil {
		return err
	}
	return save(t, store.KeyApps, ref.all)
}

func checkAppInvariants(all []domain.App) error {
	active := 0
	for _, a := range all {
		if !a.IsActive {
			continue
		}
		active++
		if a.Status != domain.AppApproved {
			return domain.InvariantViolationError{Invariant: "app.active_requires_approval", Detail: fmt.Sprintf("app %s is active with status %s", a.ID, a.Status)}
		}
	}
	if active > 1 {
		return domain.InvariantViolationError{Invariant: "app.single_active", Detail: fmt.Sprintf("%d apps active", active)}
	}
	return nil
}

// AppIntakeOptions describe a new app.
type AppIntakeOptions struct {
	Name        string
	Description string
	Scope       string
	TargetUsers string
	Lifecycle   domain.Lifecycle
	RepoURL     string
	Actor       string
}

func (e Engine) IntakeApp(ctx context.Context, opts AppIntakeOptions) (domain.App, error) {
	if err := requireActor(opts.Actor); err != nil {
		return domain.App{}, err
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.App{}, domain.ValidationError{Field: "name", Reason: "required"}
	}
	if opts.Lifecycle == "" {
		opts.Lifecycle = domain.LifecycleInternalOnly
	}
	if !opts.Lifecycle.Valid() {
		return domain.App{}, domain.ValidationError{Field: "lifecycle", Reason: fmt.Sprintf("unknown lifecycle %q", opts.Lifecycle)}
	}
	var a domain.App
	err := e.write(ctx, "app.intake", func(t *tx) error {
		all, err := load[domain.App](t, store.KeyApps)
		if err != nil {
			return err
		}
		key := normalize.NameKey(name)
		for _, existing := range all {
			if normalize.NameKey(existing.Name) == key {
				return domain.PreconditionError{Op: "app.intake", Rule: "app.name_unique", Detail: fmt.Sprintf("%q matches app %s", name, existing.ID)}
			}
		}
		a = domain.App{
			ID:           uuid.NewString(),
			Name:         name,
			Description:  opts.Description,
			Scope:        opts.Scope,
			TargetUsers:  opts.TargetUsers,
			Status:       domain.AppUnreviewed,
			Lifecycle:    opts.Lifecycle,
			RepoURL:      strings.TrimSpace(opts.RepoURL),
			TrafficLight: domain.LightRed,
			CreatedAt:    t.now,
			UpdatedAt:    t.now,
		}
		if err := save(t, store.KeyApps, append(all, a)); err != nil {
			return err
		}
		return t.audit("app.created", domain.EntityApp, a.ID, opts.Actor, audit.Details{"name": a.Name, "lifecycle": a.Lifecycle})
	})
	if err != nil {
		return domain.App{}, err
	}
	return a, nil
}

// AppUpdate lists the metadata fields to change; nil fields are kept.
type AppUpdate struct {
	Name                    *string           `json:"name,omitempty"`
	Description             *string           `json:"description,omitempty"`
	Scope                   *string           `json:"scope,omitempty"`
	TargetUsers             *string           `json:"target_users,omitempty"`
	Lifecycle               *domain.Lifecycle `json:"lifecycle,omitempty"`
	RepoURL                 *string           `json:"repo_url,omitempty"`
	OwnerConfirmed          *bool             `json:"owner_confirmed,omitempty"`
	AssetOwnershipConfirmed *bool             `json:"asset_ownership_confirmed,omitempty"`
}

func (e Engine) UpdateApp(ctx context.Context, id string, upd AppUpdate, actor string) (domain.App, error) {
	if err := requireActor(actor); err != nil {
		return domain.App{}, err
	}
	if upd.Lifecycle != nil && !upd.Lifecycle.Valid() {
		return domain.App{}, domain.ValidationError{Field: "lifecycle", Reason: fmt.Sprintf("unknown lifecycle %q", *upd.Lifecycle)}
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return domain.App{}, domain.ValidationError{Field: "name", Reason: "required"}
	}
	var out domain.App
	err := e.write(ctx, "app.update", func(t *tx) error {
		ref, err := t.liveApp(id)
		if err != nil {
			return err
		}
		a := ref.get()
		var fields []string
		setString := func(field string, dst *string, v *string) {
			if v != nil && *dst != *v {
				*dst = *v
				fields = append(fields, field)
			}
		}
		setBool := func(field string, dst *bool, v *bool) {
			if v != nil && *dst != *v {
				*dst = *v
				fields = append(fields, field)
			}
		}
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			key := normalize.NameKey(name)
			for i, other := range ref.all {
				if i != ref.idx && normalize.NameKey(other.Name) == key {
					return domain.PreconditionError{Op: "app.update", Rule: "app.name_unique", Detail: fmt.Sprintf("%q matches app %s", name, other.ID)}
				}
			}
			setString("name", &a.Name, &name)
		}
		setString("description", &a.Description, upd.Description)
		setString("scope", &a.Scope, upd.Scope)
		setString("target_users", &a.TargetUsers, upd.TargetUsers)
		if upd.RepoURL != nil {
			repo := strings.TrimSpace(*upd.RepoURL)
			setString("repo_url", &a.RepoURL, &repo)
		}
		if upd.Lifecycle != nil && a.Lifecycle != *upd.Lifecycle {
			a.Lifecycle = *upd.Lifecycle
			fields = append(fields, "lifecycle")
		}
		setBool("owner_confirmed", &a.OwnerConfirmed, upd.OwnerConfirmed)
		setBool("asset_ownership_confirmed", &a.AssetOwnershipConfirmed, upd.AssetOwnershipConfirmed)
		if len(fields) == 0 {
			return domain.ValidationError{Field: "update", Reason: "no field changes"}
		}
		if a.Status == domain.AppApproved {
			if err := approvalPreconditions("app.update", a); err != nil {
				return err
			}
		}
		if err := t.putApp(ref, a); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("app.updated", domain.EntityApp, id, actor, audit.Details{"fields": fields})
	})
	return out, err
}

// approvalPreconditions are the conditions an approved app must keep.
func approvalPreconditions(op string, a domain.App) error {
	switch {
	case !a.OwnerConfirmed:
		return domain.PreconditionError{Op: op, Rule: "owner.confirmed"}
	case !a.AssetOwnershipConfirmed:
		return domain.PreconditionError{Op: op, Rule: "asset_ownership.confirmed"}
	case strings.TrimSpace(a.RepoURL) == "":
		return domain.PreconditionError{Op: op, Rule: "repo_url.present"}
	}
	return nil
}

// RunAgentReview runs the rule-based product-spec and risk-integrity
// reviews and puts the app in review.
func (e Engine) RunAgentReview(ctx context.Context, id, actor string) (domain.App, error) {
	if err := requireActor(actor); err != nil {
		return domain.App{}, err
	}
	var out domain.App
	err := e.write(ctx, "app.review", func(t *tx) error {
		ref, err := t.liveApp(id)
		if err != nil {
			return err
		}
		a := ref.get()
		if a.Status != domain.AppUnreviewed && a.Status != domain.AppInReview {
			return domain.InvalidTransitionError{Entity: domain.EntityApp, ID: id, From: string(a.Status), To: string(domain.AppInReview)}
		}
		product, risk := review.Run(a, t.now)
		a.ProductSpecReview = &product
		a.RiskIntegrityReview = &risk
		a.AgentReviewComplete = true
		a.Status = domain.AppInReview
		if err := t.putApp(ref, a); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("app.reviewed", domain.EntityApp, id, actor, audit.Details{
			"product_spec_flags":   len(product.Flags),
			"risk_integrity_flags": len(risk.Flags),
		})
	})
	return out, err
}

// MakeFounderDecision approves, pauses or kills an app. Pause and kill
// always deactivate; kill is terminal.
func (e Engine) MakeFounderDecision(ctx context.Context, id string, decision domain.FounderDecision, notes, actor string) (domain.App, error) {
	if err := e.requireFounder(actor); err != nil {
		return domain.App{}, err
	}
	var to domain.AppStatus
	switch decision {
	case domain.FounderApprove:
		to = domain.AppApproved
	case domain.FounderPause:
		to = domain.AppPaused
	case domain.FounderKill:
		to = domain.AppKilled
	default:
		return domain.App{}, domain.ValidationError{Field: "decision", Reason: fmt.Sprintf("unknown decision %q", decision)}
	}
	var out domain.App
	err := e.write(ctx, "app.decide", func(t *tx) error {
		ref, err := t.liveApp(id)
		if err != nil {
			return err
		}
		a := ref.get()
		if decision == domain.FounderApprove {
			if a.Status != domain.AppInReview && a.Status != domain.AppPaused {
				return domain.InvalidTransitionError{Entity: domain.EntityApp, ID: id, From: string(a.Status), To: string(to)}
			}
			if err := approvalPreconditions("app.decide", a); err != nil {
				return err
			}
		} else {
			a.IsActive = false
		}
		from := a.Status
		a.Status = to
		a.FounderDecision = &decision
		a.FounderNotes = notes
		a.DecidedAt = optionalString(t.now)
		if decision == domain.FounderKill {
			a.ArchivedAt = optionalString(t.now)
		}
		if err := t.putApp(ref, a); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("app.decided", domain.EntityApp, id, actor, audit.Details{
			"decision": decision, "from": from, "to": to, "notes": notes,
		})
	})
	return out, err
}

// SetActive makes an approved app the single active app, deactivating any
// other in the same write.
func (e Engine) SetActive(ctx context.Context, id, actor string) (domain.App, error) {
	if err := e.requireFounder(actor); err != nil {
		return domain.App{}, err
	}
	var out domain.App
	err := e.write(ctx, "app.activate", func(t *tx) error {
		ref, err := t.liveApp(id)
		if err != nil {
			return err
		}
		a := ref.get()
		if a.Status != domain.AppApproved {
			return domain.PreconditionError{Op: "app.activate", Rule: "status.approved", Detail: fmt.Sprintf("status is %s", a.Status)}
		}
		if a.IsActive {
			return domain.InvalidTransitionError{Entity: domain.EntityApp, ID: id, From: "active", To: "active"}
		}
		deactivated := []string{}
		for i := range ref.all {
			if i != ref.idx && ref.all[i].IsActive {
				ref.all[i].IsActive = false
				ref.all[i].UpdatedAt = t.now
				deactivated = append(deactivated, ref.all[i].ID)
			}
		}
		a.IsActive = true
		if err := t.putApp(ref, a); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("app.activated", domain.EntityApp, id, actor, audit.Details{"deactivated": deactivated})
	})
	return out, err
}

func (e Engine) Deactivate(ctx context.Context, id, actor string) (domain.App, error) {
	if err := e.requireFounder(actor); err != nil {
		return domain.App{}, err
	}
	var out domain.App
	err := e.write(ctx, "app.deactivate", func(t *tx) error {
		ref, err := t.liveApp(id)
		if err != nil {
			return err
		}
		a := ref.get()
		if !a.IsActive {
			return domain.InvalidTransitionError{Entity: domain.EntityApp, ID: id, From: "inactive", To: "inactive"}
		}
		a.IsActive = false
		if err := t.putApp(ref, a); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("app.deactivated", domain.EntityApp, id, actor, nil)
	})
	return out, err
}

// AcknowledgeFlag marks one review flag as seen. It cannot be undone.
func (e Engine) AcknowledgeFlag(ctx context.Context, id string, reviewType domain.ReviewType, flagID, actor string) (domain.App, error) {
	if err := requireActor(actor); err != nil {
		return domain.App{}, err
	}
	if !reviewType.Valid() {
		return domain.App{}, domain.ValidationError{Field: "review_type", Reason: fmt.Sprintf("unknown review type %q", reviewType)}
	}
	var out domain.App
	err := e.write(ctx, "app.acknowledge_flag", func(t *tx) error {
		ref, err := t.liveApp(id)
		if err != nil {
			return err
		}
		a, err := review.Acknowledge(ref.get(), reviewType, flagID, actor, t.now)
		if err != nil {
			return err
		}
		if err := t.putApp(ref, a); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("app.flag_acknowledged", domain.EntityApp, id, actor, audit.Details{"review_type": reviewType, "flag_id": flagID})
	})
	return out, err
}

func (e Engine) SetChecklistItem(ctx context.Context, id string, item review.ChecklistItem, done bool, actor string) (domain.App, error) {
	if err := requireActor(actor); err != nil {
		return domain.App{}, err
	}
	var out domain.App
	err := e.write(ctx, "app.set_checklist_item", func(t *tx) error {
		ref, err := t.liveApp(id)
		if err != nil {
			return err
		}
		a := ref.get()
		cl, err := review.SetItem(a.Checklist, item, done)
		if err != nil {
			return err
		}
		a.Checklist = cl
		if err := t.putApp(ref, a); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("app.checklist_updated", domain.EntityApp, id, actor, audit.Details{"item": item, "done": done})
	})
	return out, err
}

func (e Engine) SetTrafficLight(ctx context.Context, id string, light domain.TrafficLight, actor string) (domain.App, error) {
	if err := requireActor(actor); err != nil {
		return domain.App{}, err
	}
	if !light.Valid() {
		return domain.App{}, domain.ValidationError{Field: "traffic_light", Reason: fmt.Sprintf("unknown light %q", light)}
	}
	var out domain.App
	err := e.write(ctx, "app.set_traffic_light", func(t *tx) error {
		ref, err := t.liveApp(id)
		if err != nil {
			return err
		}
		a := ref.get()
		from := a.TrafficLight
		a.TrafficLight = light
		if err := t.putApp(ref, a); err != nil {
			return err
		}
		out = ref.all[ref.idx]
		return t.audit("app.traffic_light_set", domain.EntityApp, id, actor, audit.Details{"from": from, "to": light})
	})
	return out, err
}

func (e Engine) GetApp(ctx context.Context, id string) (domain.App, error) {
	all, err := e.ListApps(ctx)
	if err != nil {
		return domain.App{}, err
	}
	if i := indexByID(all, id, appID); i >= 0 {
		return all[i], nil
	}
	return domain.App{}, domain.NotFoundError{Entity: domain.EntityApp, ID: id}
}

func (e Engine) ListApps(ctx context.Context) ([]domain.App, error) {
	return store.LoadCollection[domain.App](ctx, e.Store, nil, store.KeyApps)
}

// ActiveApp returns the active app, if any.
func (e Engine) ActiveApp(ctx context.Context) (domain.App, bool, error) {
	all, err := e.ListApps(ctx)
	if err != nil {
		return domain.App{}, false, err
	}
	for _, a := range all {
		if a.IsActive {
			return a, true, nil
		}
	}
	return domain.App{}, false, nil
}

// LaunchStatus is the derived launch state of an app. It is computed on
// every read and never stored.
type LaunchStatus struct {
	AppID          string   `json:"app_id"`
	LaunchApproved bool     `json:"launch_approved"`
	Blockers       []string `json:"blockers"`
}

func (e Engine) LaunchStatus(ctx context.Context, id string) (LaunchStatus, error) {
	a, err := e.GetApp(ctx, id)
	if err != nil {
		return LaunchStatus{}, err
	}
	return LaunchStatus{AppID: a.ID, LaunchApproved: review.IsLaunchApproved(a), Blockers: review.Blockers(a)}, nil
}
