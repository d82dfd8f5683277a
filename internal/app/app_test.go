package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/accessql/internal/access"
	"github.com/atlekbai/accessql/internal/config"
)

const mappingYAML = `entities:
  - name: Document
    properties:
      - {name: owner, kind: BASIC, type: string}
      - {name: tenant, kind: BASIC, type: string}
`

func fileConfig(t *testing.T, rules string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	mapping := filepath.Join(dir, "mapping.yaml")
	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(mapping, []byte(mappingYAML), 0o644))
	require.NoError(t, os.WriteFile(rulesPath, []byte(rules), 0o644))
	return &config.Config{
		Mapping:      config.SourceConfig{Source: config.SourceFile, File: mapping},
		Rules:        config.SourceConfig{Source: config.SourceFile, File: rulesPath},
		Placeholders: []string{"TENANT"},
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpenFromFiles(t *testing.T) {
	cfg := fileConfig(t, `rules:
  - name: own
    rule: GRANT READ ACCESS TO Document d WHERE d.owner = CURRENT_PRINCIPAL AND d.tenant = TENANT
`)
	env, err := Open(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, 1, env.Cache.EntityCount())
	require.Len(t, env.Filter.Rules(), 1)

	res, err := env.Filter.FilterQuery("SELECT d FROM Document d", access.AccessRead, access.StaticContext{
		Principal: "alice",
		Values:    map[string]any{"TENANT": "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT d FROM Document d WHERE (d.owner = :CURRENT_PRINCIPAL AND d.tenant = :TENANT)", res.Query)
	assert.Equal(t, map[string]any{"CURRENT_PRINCIPAL": "alice", "TENANT": "acme"}, res.Parameters)
}

func TestOpenErrors(t *testing.T) {
	cfg := fileConfig(t, "rules:\n  - name: broken\n    rule: GRANT READ ACCESS TO Document\n")
	_, err := Open(context.Background(), cfg, discard())
	assert.True(t, access.IsRuleConfigurationErr(err))

	cfg = fileConfig(t, "rules: []\n")
	cfg.Mapping.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Open(context.Background(), cfg, discard())
	assert.True(t, errors.Is(err, ErrMapping))

	cfg = fileConfig(t, "rules: []\n")
	cfg.Rules.Source = config.SourcePostgres
	cfg.DatabaseURL = "postgres://%zz"
	_, err = Open(context.Background(), cfg, discard())
	assert.True(t, errors.Is(err, ErrDatabase))
}
