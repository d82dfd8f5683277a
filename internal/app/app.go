// Package app assembles the mapping, the compiled rules and the filter from
// configuration. The server and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlekbai/accessql/internal/access"
	"github.com/atlekbai/accessql/internal/config"
	"github.com/atlekbai/accessql/internal/db"
	"github.com/atlekbai/accessql/internal/schema"
	"github.com/atlekbai/accessql/internal/store"
)

var (
	// ErrDatabase marks failures to reach or read the database.
	ErrDatabase = errors.New("database unavailable")
	// ErrMapping marks an entity mapping that cannot be loaded.
	ErrMapping = errors.New("invalid entity mapping")
)

// Env holds everything built from one configuration.
type Env struct {
	Cache    *schema.Cache
	Compiler *access.Compiler
	Filter   *access.Filter
	pool     *pgxpool.Pool
}

// Open connects to the database when a source needs it, loads the mapping
// and compiles the rules. A rule that fails to compile fails Open.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Env, error) {
	env := &Env{Cache: schema.NewCache()}
	if cfg.NeedsDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
		}
		env.pool = pool
	}

	if err := env.loadMapping(ctx, cfg.Mapping); err != nil {
		env.Close()
		return nil, err
	}
	logger.Info("mapping loaded", "entities", env.Cache.EntityCount(), "source", cfg.Mapping.Source)

	env.Compiler = NewCompiler(env.Cache, cfg)
	rules, err := store.Load(ctx, env.ruleSource(cfg.Rules), env.Compiler)
	if err != nil {
		env.Close()
		if access.IsRuleConfigurationErr(err) {
			return nil, err
		}
		if cfg.Rules.Source == config.SourcePostgres {
			return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
		}
		return nil, err
	}
	logger.Info("access rules loaded", "rules", len(rules), "source", cfg.Rules.Source)

	env.Filter = access.NewFilter(env.Cache, rules, access.WithLogger(logger))
	return env, nil
}

// NewCompiler builds a compiler accepting the default placeholders plus the
// configured ones.
func NewCompiler(m access.Mapping, cfg *config.Config) *access.Compiler {
	if len(cfg.Placeholders) == 0 {
		return access.NewCompiler(m)
	}
	names := append([]string{access.CurrentPrincipal, access.CurrentRoles}, cfg.Placeholders...)
	return access.NewCompiler(m, access.WithPlaceholders(names...))
}

func (e *Env) loadMapping(ctx context.Context, src config.SourceConfig) error {
	if src.Source == config.SourcePostgres {
		if err := e.Cache.Load(ctx, e.pool); err != nil {
			return fmt.Errorf("%w: %w", ErrDatabase, err)
		}
		return nil
	}
	if err := e.Cache.LoadFile(src.File); err != nil {
		return fmt.Errorf("%w: %w", ErrMapping, err)
	}
	return nil
}

func (e *Env) ruleSource(src config.SourceConfig) store.Source {
	if src.Source == config.SourcePostgres {
		return store.NewPostgresSource(e.pool)
	}
	return store.FileSource{Path: src.File}
}

// Close releases the database pool, if any.
func (e *Env) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}
