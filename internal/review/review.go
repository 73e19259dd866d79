// Package review produces the rule-based agent reviews for apps and derives
// launch readiness from an app's current state.
package review

import (
	"fmt"
	"strings"

	"charterline/internal/domain"
)

type rule struct {
	id             string
	severity       domain.Severity
	message        string
	recommendation string
	match          func(domain.App) bool
}

func mentions(text string, words ...string) bool {
	text = strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func corpus(a domain.App) string {
	return strings.Join([]string{a.Name, a.Description, a.Scope, a.TargetUsers}, "\n")
}

var productSpecRules = []rule{
	{
		id:             "spec.description_thin",
		severity:       domain.SeverityMedium,
		message:        "Description is too short to evaluate the product",
		recommendation: "Expand the description to at least a paragraph covering problem and solution",
		match:          func(a domain.App) bool { return len(strings.TrimSpace(a.Description)) < 50 },
	},
	{
		id:             "spec.scope_undefined",
		severity:       domain.SeverityHigh,
		message:        "Scope is missing or too vague",
		recommendation: "List the features included in the first release",
		match:          func(a domain.App) bool { return len(strings.TrimSpace(a.Scope)) < 30 },
	},
	{
		id:             "spec.audience_missing",
		severity:       domain.SeverityLow,
		message:        "No target user is named",
		recommendation: "Name the primary user and the job the app does for them",
		match: func(a domain.App) bool {
			return strings.TrimSpace(a.TargetUsers) == "" && !mentions(a.Description+" "+a.Scope, "user", "customer", "client", "team")
		},
	},
	{
		id:             "spec.scope_creep",
		severity:       domain.SeverityMedium,
		message:        "Scope reads as a platform rather than a single product",
		recommendation: "Cut the scope to one core workflow",
		match: func(a domain.App) bool {
			return mentions(a.Scope, "platform", "marketplace", "everything", "all-in-one", "and also")
		},
	},
}

var riskIntegrityRules = []rule{
	{
		id:             "risk.payments",
		severity:       domain.SeverityHigh,
		message:        "App handles payments",
		recommendation: "Use a hosted payment provider and keep card data out of the app",
		match:          func(a domain.App) bool { return mentions(corpus(a), "payment", "billing", "credit card", "checkout") },
	},
	{
		id:             "risk.regulated_data",
		severity:       domain.SeverityHigh,
		message:        "App touches regulated health or financial data",
		recommendation: "Confirm the compliance regime before launch",
		match:          func(a domain.App) bool { return mentions(corpus(a), "health", "medical", "patient", "banking") },
	},
	{
		id:             "risk.personal_data",
		severity:       domain.SeverityMedium,
		message:        "App stores personal data",
		recommendation: "Document retention and deletion for personal data",
		match:          func(a domain.App) bool { return mentions(corpus(a), "personal data", "pii", "email address", "location", "phone number") },
	},
	{
		id:             "risk.scraping",
		severity:       domain.SeverityMedium,
		message:        "App relies on scraping third-party content",
		recommendation: "Check the terms of the scraped sources",
		match:          func(a domain.App) bool { return mentions(corpus(a), "scrape", "scraping", "crawler") },
	},
	{
		id:             "risk.ownership_unconfirmed",
		severity:       domain.SeverityHigh,
		message:        "Owner has not confirmed ownership of the app",
		recommendation: "Have the owner confirm ownership and asset rights",
		match:          func(a domain.App) bool { return !a.OwnerConfirmed || !a.AssetOwnershipConfirmed },
	},
	{
		id:             "risk.repo_missing",
		severity:       domain.SeverityMedium,
		message:        "No repository is linked",
		recommendation: "Link the source repository",
		match:          func(a domain.App) bool { return strings.TrimSpace(a.RepoURL) == "" },
	},
}

// Run evaluates both rule sets. Flags already acknowledged on a previous
// review keep their acknowledgement.
func Run(a domain.App, now string) (product, risk domain.AgentReview) {
	return apply(productSpecRules, a, a.ProductSpecReview, now), apply(riskIntegrityRules, a, a.RiskIntegrityReview, now)
}

func apply(rules []rule, a domain.App, prior *domain.AgentReview, now string) domain.AgentReview {
	out := domain.AgentReview{Flags: []domain.ReviewFlag{}, Recommendations: []string{}, GeneratedAt: now}
	for _, r := range rules {
		if !r.match(a) {
			continue
		}
		flag := domain.ReviewFlag{ID: r.id, Severity: r.severity, Message: r.message}
		if old, ok := findFlag(prior, r.id); ok && old.Acknowledged {
			flag.Acknowledged = true
			flag.AcknowledgedBy = old.AcknowledgedBy
			flag.AcknowledgedAt = old.AcknowledgedAt
		}
		out.Flags = append(out.Flags, flag)
		out.Recommendations = append(out.Recommendations, r.recommendation)
	}
	return out
}

func findFlag(r *domain.AgentReview, id string) (domain.ReviewFlag, bool) {
	if r == nil {
		return domain.ReviewFlag{}, false
	}
	for _, f := range r.Flags {
		if f.ID == id {
			return f, true
		}
	}
	return domain.ReviewFlag{}, false
}

// Acknowledge flips one flag to acknowledged. The flip is one-way.
func Acknowledge(a domain.App, t domain.ReviewType, flagID, actor, now string) (domain.App, error) {
	if !t.Valid() {
		return a, domain.ValidationError{Field: "review_type", Reason: fmt.Sprintf("unknown review type %q", t)}
	}
	src := a.Review(t)
	if src == nil {
		return a, domain.NotFoundError{Entity: "review_flag", ID: string(t) + "/" + flagID}
	}
	rev := *src
	rev.Flags = append([]domain.ReviewFlag(nil), src.Flags...)
	for i, f := range rev.Flags {
		if f.ID != flagID {
			continue
		}
		if f.Acknowledged {
			return a, domain.InvalidTransitionError{Entity: "review_flag", ID: flagID, From: "acknowledged", To: "acknowledged"}
		}
		ts := now
		rev.Flags[i].Acknowledged = true
		rev.Flags[i].AcknowledgedBy = actor
		rev.Flags[i].AcknowledgedAt = &ts
		switch t {
		case domain.ReviewProductSpec:
			a.ProductSpecReview = &rev
		case domain.ReviewRiskIntegrity:
			a.RiskIntegrityReview = &rev
		}
		return a, nil
	}
	return a, domain.NotFoundError{Entity: "review_flag", ID: string(t) + "/" + flagID}
}

func unacknowledged(a domain.App) []string {
	var out []string
	for _, t := range []domain.ReviewType{domain.ReviewProductSpec, domain.ReviewRiskIntegrity} {
		r := a.Review(t)
		if r == nil {
			continue
		}
		for _, f := range r.Flags {
			if !f.Acknowledged {
				out = append(out, fmt.Sprintf("%s flag %s: %s", t, f.ID, f.Message))
			}
		}
	}
	return out
}

// IsLaunchApproved is recomputed from current state on every call.
func IsLaunchApproved(a domain.App) bool {
	return a.Lifecycle == domain.LifecycleExternal &&
		a.TrafficLight == domain.LightGreen &&
		len(Missing(a.Checklist)) == 0 &&
		len(unacknowledged(a)) == 0
}

// Blockers lists unacknowledged flags followed by missing checklist items.
func Blockers(a domain.App) []string {
	out := unacknowledged(a)
	for _, item := range Missing(a.Checklist) {
		out = append(out, fmt.Sprintf("checklist item %s incomplete", item))
	}
	if out == nil {
		out = []string{}
	}
	return out
}
