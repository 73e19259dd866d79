package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"founder"}, cfg.Governance.Founders)
	assert.Equal(t, "2024.1", cfg.Agreements.NDAVersion)
	assert.True(t, cfg.IsFounder("founder"))
	assert.False(t, cfg.IsFounder("mallory"))
}

func TestEmptyFoundersDisablesCheck(t *testing.T) {
	cfg := Default()
	cfg.Governance.Founders = nil
	assert.True(t, cfg.IsFounder("anyone"))
	var nilCfg *Config
	assert.True(t, nilCfg.IsFounder("anyone"))
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":        "governance: [",
		"no versions":     "agreements: {}\n",
		"bad level":       "agreements: {nda_version: a, ip_assignment_version: b}\nlogging: {level: loud}\n",
		"bad lifecycle":   "agreements: {nda_version: a, ip_assignment_version: b}\nnormalization: {canonical_apps: [{name: X, lifecycle: public}]}\n",
		"duplicate canon": "agreements: {nda_version: a, ip_assignment_version: b}\nnormalization: {canonical_apps: [{name: X}, {name: x}]}\n",
		"bad webhook":     "agreements: {nda_version: a, ip_assignment_version: b}\nwebhooks: [{url: not-a-url}]\n",
		"empty founder":   "agreements: {nda_version: a, ip_assignment_version: b}\ngovernance: {founders: ['']}\n",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(dir)
	assert.Error(t, err)

	doc := `governance:
  founders: [ada]
agreements:
  nda_version: "v2"
  ip_assignment_version: "v3"
normalization:
  canonical_apps:
    - name: Ledger Lite
      aliases: [ledgerlite, "Ledger-Lite"]
      repo_url: https://git.example.com/ledger-lite
      lifecycle: external
  seed_apps:
    - name: Internal Wiki
      lifecycle: internal-only
webhooks:
  - url: https://hooks.example.com/audit
    secret: s3cret
    actions: [contributor.revoked]
`
	require.NoError(t, os.WriteFile(Path(dir), []byte(doc), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ada"}, cfg.Governance.Founders)
	require.Len(t, cfg.Normalization.CanonicalApps, 1)
	assert.Equal(t, []string{"ledgerlite", "Ledger-Lite"}, cfg.Normalization.CanonicalApps[0].Aliases)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, "s3cret", cfg.Webhooks[0].Secret)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "staging.yml")
	require.NoError(t, os.WriteFile(path, []byte(GenerateDefault()), 0o644))
	cfg, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(path, []byte("logging: {level: loud}\n"), 0o644))
	_, err = FromFile(path)
	assert.Error(t, err)

	_, err = FromFile(filepath.Join(dir, "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
