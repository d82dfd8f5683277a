// Package store loads access rule sources from YAML files and Postgres.
package store

import (
	"context"
	"fmt"
	"os"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"github.com/atlekbai/accessql/internal/access"
)

// Querier is the subset of pgxpool.Pool used to load rules.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Source yields the rule texts to compile.
type Source interface {
	Rules(ctx context.Context) ([]access.RuleSource, error)
}

// ruleFile is the YAML layout of a rule file:
//
//	rules:
//	  - name: own-records
//	    rule: GRANT READ ACCESS TO Record r WHERE r.owner = CURRENT_PRINCIPAL
type ruleFile struct {
	Rules []access.RuleSource `yaml:"rules"`
}

// ParseRules decodes YAML rule data.
func ParseRules(data []byte) ([]access.RuleSource, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("rule file: %w", err)
	}
	for i, r := range f.Rules {
		if r.Text == "" {
			return nil, fmt.Errorf("rule file: entry %d (%s) has no rule", i, r.Name)
		}
	}
	return f.Rules, nil
}

// FileSource reads rules from a YAML file on every call.
type FileSource struct {
	Path string
}

func (s FileSource) Rules(context.Context) ([]access.RuleSource, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("rule file: %w", err)
	}
	return ParseRules(data)
}

// PostgresSource reads enabled rules from security.access_rules.
type PostgresSource struct {
	q Querier
}

func NewPostgresSource(q Querier) *PostgresSource {
	return &PostgresSource{q: q}
}

func rulesQuery() (string, []any, error) {
	return sq.Select("id", "name", "rule").
		From("security.access_rules").
		Where(sq.Eq{"enabled": true}).
		OrderBy("name", "id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (s *PostgresSource) Rules(ctx context.Context) ([]access.RuleSource, error) {
	query, args, err := rulesQuery()
	if err != nil {
		return nil, fmt.Errorf("access rules query: %w", err)
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("access rules load: %w", err)
	}
	defer rows.Close()

	var out []access.RuleSource
	for rows.Next() {
		var (
			id   uuid.UUID
			name string
			text string
		)
		if err := rows.Scan(&id, &name, &text); err != nil {
			return nil, fmt.Errorf("access rules scan: %w", err)
		}
		out = append(out, access.RuleSource{ID: id, Name: name, Text: text})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("access rules rows: %w", err)
	}
	return out, nil
}

// Load compiles every rule of src against c.
func Load(ctx context.Context, src Source, c *access.Compiler) ([]*access.AccessRule, error) {
	sources, err := src.Rules(ctx)
	if err != nil {
		return nil, err
	}
	return c.CompileAll(ctx, sources)
}
