package normalize_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterline/internal/config"
	"charterline/internal/domain"
	"charterline/internal/normalize"
)

const now = "2024-05-01T00:00:00Z"

func messy() normalize.Snapshot {
	return normalize.Snapshot{
		Contributors: []domain.Contributor{
			{ID: "c1", Email: " Ada@Example.COM ", LegalName: "Ada"},
			{ID: "", Email: "ghost@example.com"},
			{ID: "c2", Email: ""},
			{ID: "c1", Email: "dup@example.com"},
			{ID: "c3", Email: "bob@example.com", AccessTier: 2, NDAStatus: domain.SignatureSigned},
		},
		Agreements: []domain.Agreement{
			{ID: "a1", ContributorID: "c1", Type: domain.AgreementNDA},
			{ID: "a2", ContributorID: "missing", Type: domain.AgreementNDA},
			{ID: "a3", ContributorID: "c1", Type: "contract"},
		},
		Evaluations: []domain.Evaluation{
			{ID: "e1", ContributorID: "c1", Decision: domain.DecisionApproved},
			{ID: "e2"},
		},
		Apps: []domain.App{
			{ID: "p1", Name: "Ledger", Status: domain.AppApproved, IsActive: true},
			{ID: "p2", Name: "Tracker", Status: domain.AppApproved, IsActive: true},
			{ID: "p3", Name: "Draft", IsActive: true},
			{ID: "p4", Name: "  "},
		},
		AgentActions: []domain.AgentAction{
			{ID: "x1", AgentID: "reviewer", Action: "generate_review"},
			{ID: "x2", AgentID: "reviewer"},
		},
	}
}

func TestNormalizeRepairsAndDrops(t *testing.T) {
	out := normalize.Normalize(messy(), now)

	require.Len(t, out.Contributors, 2)
	ada := out.Contributors[0]
	assert.Equal(t, "ada@example.com", ada.Email)
	assert.Equal(t, domain.SignatureNotSent, ada.NDAStatus)
	assert.Equal(t, domain.StageIntake, ada.WorkflowStage)
	assert.Equal(t, domain.AccessNone, ada.AccessLevel)
	assert.Equal(t, now, ada.CreatedAt)
	assert.Zero(t, out.Contributors[1].AccessTier, "tier without both signatures is reset")

	require.Len(t, out.Agreements, 1)
	assert.Equal(t, domain.AgreementSent, out.Agreements[0].Status)

	require.Len(t, out.Evaluations, 1)
	assert.True(t, out.Evaluations[0].IsFinalized)
	assert.NotNil(t, out.Evaluations[0].Tags)

	require.Len(t, out.Apps, 3)
	active := 0
	for _, a := range out.Apps {
		if a.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.True(t, out.Apps[0].IsActive)
	assert.Equal(t, domain.LightRed, out.Apps[2].TrafficLight)
	assert.Equal(t, domain.LifecycleInternalOnly, out.Apps[2].Lifecycle)

	require.Len(t, out.AgentActions, 1)
	assert.Equal(t, domain.ActionPending, out.AgentActions[0].Status)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []normalize.Snapshot{{}, messy()}
	for i, in := range inputs {
		once := normalize.Normalize(in, now)
		twice := normalize.Normalize(once, "2030-01-01T00:00:00Z")
		assert.True(t, normalize.Equal(once, twice), "input %d", i)
	}
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	in := messy()
	normalize.Normalize(in, now)
	assert.Equal(t, " Ada@Example.COM ", in.Contributors[0].Email)
	assert.True(t, in.Apps[1].IsActive)
}

func TestNormalizeResetsUnknownStageAndDecision(t *testing.T) {
	in := normalize.Snapshot{
		Contributors: []domain.Contributor{{ID: "c1", Email: "ada@example.com", WorkflowStage: "onboarding"}},
		Evaluations:  []domain.Evaluation{{ID: "e1", ContributorID: "c1", Decision: "accepted", IsFinalized: true}},
	}
	out := normalize.Normalize(in, now)

	require.Len(t, out.Contributors, 1)
	assert.Equal(t, domain.StageIntake, out.Contributors[0].WorkflowStage)
	require.Len(t, out.Evaluations, 1)
	assert.Equal(t, domain.DecisionPending, out.Evaluations[0].Decision)
	assert.False(t, out.Evaluations[0].IsFinalized)
}

func TestNameKey(t *testing.T) {
	assert.Equal(t, "ledgerpro", normalize.NameKey("Ledger-Pro"))
	assert.Equal(t, "ledgerpro", normalize.NameKey(" ledger pro "))
}

func runAll(s normalize.Snapshot, opts normalize.Options) (normalize.Snapshot, []string) {
	var mutated []string
	for _, p := range normalize.Passes() {
		next, _ := p.Apply(s, opts)
		if !normalize.Equal(s, next) {
			mutated = append(mutated, p.Name)
		}
		s = next
	}
	return s, mutated
}

func TestPassesAreOneShot(t *testing.T) {
	n := 0
	opts := normalize.Options{
		Now:   now,
		NewID: func() string { n++; return fmt.Sprintf("seed-%d", n) },
		CanonicalApps: []config.CanonicalApp{
			{Name: "Ledger Pro", Aliases: []string{"ledger"}, RepoURL: "https://git.example.com/ledger", Lifecycle: "external"},
		},
		SeedApps: []config.SeedApp{{Name: "Ledger Pro"}, {Name: "Hub", Scope: "internal tools"}},
	}
	in := messy()
	in.Apps = append(in.Apps, domain.App{ID: "p5", Name: "LEDGER-PRO", Description: "variant", Status: domain.AppUnreviewed})

	out, mutated := runAll(in, opts)
	assert.Equal(t, []string{
		normalize.PassSchemaBackfill,
		normalize.PassCanonicalAppMeta,
		normalize.PassDedupeAppVariants,
		normalize.PassInjectMissingApps,
	}, mutated)

	var names []string
	for _, a := range out.Apps {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"Ledger Pro", "Tracker", "Draft", "Hub"}, names)
	assert.Equal(t, "p1", out.Apps[0].ID)
	assert.Equal(t, "variant", out.Apps[0].Description)
	assert.Equal(t, domain.LifecycleExternal, out.Apps[0].Lifecycle)
	assert.Equal(t, "seed-1", out.Apps[3].ID)

	again, mutated := runAll(out, opts)
	assert.Empty(t, mutated)
	assert.True(t, normalize.Equal(out, again))
	assert.Equal(t, 1, n)
}
