package normalize

import (
	"strings"
	"unicode"

	"charterline/internal/config"
	"charterline/internal/domain"
)

// Options carries the inputs passes need besides the snapshot.
type Options struct {
	Now           string
	NewID         func() string
	CanonicalApps []config.CanonicalApp
	SeedApps      []config.SeedApp
}

// Pass is one named, one-shot correction. Apply returns the corrected
// snapshot and a summary of what it changed; applying a pass to its own
// output changes nothing.
type Pass struct {
	Name  string
	Apply func(s Snapshot, opts Options) (Snapshot, map[string]any)
}

const (
	PassSchemaBackfill    = "schema-backfill"
	PassCanonicalAppMeta  = "canonical-app-metadata"
	PassDedupeAppVariants = "dedupe-app-name-variants"
	PassInjectMissingApps = "inject-missing-apps"
)

// Passes returns the passes in the order they run at open time.
func Passes() []Pass {
	return []Pass{
		{Name: PassSchemaBackfill, Apply: schemaBackfill},
		{Name: PassCanonicalAppMeta, Apply: canonicalAppMetadata},
		{Name: PassDedupeAppVariants, Apply: dedupeAppVariants},
		{Name: PassInjectMissingApps, Apply: injectMissingApps},
	}
}

// NameKey folds an app name to the form used to detect variants:
// lower case, letters and digits only.
func NameKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func schemaBackfill(s Snapshot, opts Options) (Snapshot, map[string]any) {
	out := Normalize(s, opts.Now)
	return out, map[string]any{
		"contributors_dropped":  len(s.Contributors) - len(out.Contributors),
		"agreements_dropped":    len(s.Agreements) - len(out.Agreements),
		"evaluations_dropped":   len(s.Evaluations) - len(out.Evaluations),
		"apps_dropped":          len(s.Apps) - len(out.Apps),
		"agent_actions_dropped": len(s.AgentActions) - len(out.AgentActions),
	}
}

func canonicalFor(name string, canon []config.CanonicalApp) (config.CanonicalApp, bool) {
	key := NameKey(name)
	for _, c := range canon {
		if NameKey(c.Name) == key {
			return c, true
		}
		for _, alias := range c.Aliases {
			if NameKey(alias) == key {
				return c, true
			}
		}
	}
	return config.CanonicalApp{}, false
}

func canonicalAppMetadata(s Snapshot, opts Options) (Snapshot, map[string]any) {
	apps := make([]domain.App, len(s.Apps))
	var fixed []string
	for i, a := range s.Apps {
		c, ok := canonicalFor(a.Name, opts.CanonicalApps)
		if ok {
			before := a
			a.Name = c.Name
			if c.Description != "" {
				a.Description = c.Description
			}
			if c.RepoURL != "" {
				a.RepoURL = c.RepoURL
			}
			if c.Lifecycle != "" {
				a.Lifecycle = domain.Lifecycle(c.Lifecycle)
			}
			if a.Name != before.Name || a.Description != before.Description || a.RepoURL != before.RepoURL || a.Lifecycle != before.Lifecycle {
				a.UpdatedAt = opts.Now
				fixed = append(fixed, a.ID)
			}
		}
		apps[i] = a
	}
	s.Apps = apps
	return s, map[string]any{"apps": fixed}
}

// dedupeAppVariants collapses apps whose names fold to the same key. The
// active record survives if there is one, otherwise the first; blank
// metadata on the survivor is filled from the merged records.
func dedupeAppVariants(s Snapshot, _ Options) (Snapshot, map[string]any) {
	groups := map[string][]int{}
	var order []string
	for i, a := range s.Apps {
		k := NameKey(a.Name)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	apps := []domain.App{}
	merged := map[string][]string{}
	for _, k := range order {
		idx := groups[k]
		keep := idx[0]
		for _, i := range idx {
			if s.Apps[i].IsActive {
				keep = i
				break
			}
		}
		survivor := s.Apps[keep]
		for _, i := range idx {
			if i == keep {
				continue
			}
			other := s.Apps[i]
			if survivor.Description == "" {
				survivor.Description = other.Description
			}
			if survivor.Scope == "" {
				survivor.Scope = other.Scope
			}
			if survivor.TargetUsers == "" {
				survivor.TargetUsers = other.TargetUsers
			}
			if survivor.RepoURL == "" {
				survivor.RepoURL = other.RepoURL
			}
			merged[survivor.ID] = append(merged[survivor.ID], other.ID)
		}
		apps = append(apps, survivor)
	}
	s.Apps = apps
	return s, map[string]any{"merged": merged}
}

func injectMissingApps(s Snapshot, opts Options) (Snapshot, map[string]any) {
	present := map[string]bool{}
	for _, a := range s.Apps {
		present[NameKey(a.Name)] = true
	}
	apps := append([]domain.App{}, s.Apps...)
	var injected []string
	for _, seed := range opts.SeedApps {
		k := NameKey(seed.Name)
		if k == "" || present[k] {
			continue
		}
		present[k] = true
		lifecycle := domain.Lifecycle(seed.Lifecycle)
		if !lifecycle.Valid() {
			lifecycle = domain.LifecycleInternalOnly
		}
		apps = append(apps, domain.App{
			ID:           opts.NewID(),
			Name:         strings.TrimSpace(seed.Name),
			Description:  seed.Description,
			Scope:        seed.Scope,
			Status:       domain.AppUnreviewed,
			Lifecycle:    lifecycle,
			TrafficLight: domain.LightRed,
			CreatedAt:    opts.Now,
			UpdatedAt:    opts.Now,
		})
		injected = append(injected, seed.Name)
	}
	s.Apps = apps
	return s, map[string]any{"injected": injected}
}
