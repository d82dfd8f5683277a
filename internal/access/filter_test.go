package access

import (
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/accessql/internal/oql"
)

func TestFilterQueryGolden(t *testing.T) {
	f := newTestFilter(t, principalRule)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name  string
		query string
	}{
		{"select_alias", "SELECT t FROM T t"},
		{"select_map_key", "SELECT KEY(related) FROM T t LEFT OUTER JOIN t.related related"},
		{"select_map_entry", "SELECT ENTRY(related) FROM T t LEFT OUTER JOIN t.related related"},
		{"select_case", "SELECT CASE WHEN child IS NULL THEN t.id WHEN child.name = :name THEN child.id " +
			"ELSE child.parent.id END FROM T t LEFT OUTER JOIN t.children child"},
		{"select_coalesce", "SELECT COALESCE(t.parent, t) FROM T t"},
		{"select_nullif", "SELECT NULLIF(t.parent, t) FROM T t"},
		{"select_constructor", "SELECT NEW com.example.Pair(t.name, child) FROM T t JOIN t.children child"},
		{"existing_where", "SELECT t FROM T t WHERE t.id = 1 OR t.id = 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.FilterQuery(tt.query, AccessRead, junit())
			require.NoError(t, err)
			assert.True(t, res.Modified)
			assert.False(t, res.AlwaysFalse)
			assert.Equal(t, map[string]any{CurrentPrincipal: "JUnit"}, res.Parameters)
			g.Assert(t, tt.name, []byte(res.Query+"\n"))
		})
	}
}

func TestFilterQueryScenarioClauses(t *testing.T) {
	f := newTestFilter(t, principalRule)
	tests := []struct {
		query string
		where string
		paths []string
	}{
		{
			query: "SELECT t FROM T t",
			where: "(t.name = :CURRENT_PRINCIPAL)",
			paths: []string{"t"},
		},
		{
			query: "SELECT KEY(related) FROM T t LEFT OUTER JOIN t.related related",
			where: "(KEY(related).name = :CURRENT_PRINCIPAL)",
			paths: []string{"KEY(related)"},
		},
		{
			query: "SELECT ENTRY(related) FROM T t LEFT OUTER JOIN t.related related",
			where: "(VALUE(related).name = :CURRENT_PRINCIPAL) AND (KEY(related).name = :CURRENT_PRINCIPAL)",
			paths: []string{"VALUE(related)", "KEY(related)"},
		},
		{
			query: "SELECT CASE WHEN child IS NULL THEN t.id WHEN child.name = :name THEN child.id " +
				"ELSE child.parent.id END FROM T t LEFT OUTER JOIN t.children child",
			where: "(child IS NOT NULL OR (t.name = :CURRENT_PRINCIPAL)) AND " +
				"(child IS NULL OR child.name <> :name OR (child.name = :CURRENT_PRINCIPAL)) AND " +
				"(child IS NULL OR child.name = :name OR (child.parent.name = :CURRENT_PRINCIPAL))",
			paths: []string{"t", "child", "child.parent"},
		},
		{
			query: "SELECT t.parent.name, t FROM T t",
			where: "(t.parent.name = :CURRENT_PRINCIPAL) AND (t.name = :CURRENT_PRINCIPAL)",
			paths: []string{"t.parent", "t"},
		},
		{
			query: "SELECT t, t.name, UPPER(t.name) FROM T t",
			where: "(t.name = :CURRENT_PRINCIPAL)",
			paths: []string{"t"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := f.FilterQuery(tt.query, AccessRead, junit())
			require.NoError(t, err)
			where := res.Tree.Find(res.Tree.Root(), oql.KindWhere)
			require.NotEqual(t, oql.NoNode, where)
			assert.Equal(t, tt.where, oql.Render(res.Tree, res.Tree.Child(where, 0)))
			assert.Equal(t, tt.paths, res.SelectedPaths)
		})
	}
}

func TestFilterQueryIsIdempotent(t *testing.T) {
	f := newTestFilter(t,
		principalRule,
		"GRANT READ ACCESS TO T t WHERE t.role IN (CURRENT_ROLES)",
	)
	queries := []string{
		"SELECT t FROM T t",
		"SELECT t FROM T t WHERE t.id > 5",
		"SELECT ENTRY(related) FROM T t LEFT OUTER JOIN t.related related",
		"SELECT CASE WHEN child IS NULL THEN t.id WHEN child.name = :name THEN child.id " +
			"ELSE child.parent.id END FROM T t LEFT OUTER JOIN t.children child",
		"SELECT t, child FROM T t JOIN t.children child WHERE child.id = 3",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			first, err := f.FilterQuery(q, AccessRead, junit())
			require.NoError(t, err)
			require.True(t, first.Modified)

			second, err := f.FilterQuery(first.Query, AccessRead, junit())
			require.NoError(t, err)
			assert.False(t, second.Modified)
			assert.Equal(t, first.Query, second.Query)
			assert.Equal(t, first.Parameters, second.Parameters)
		})
	}
}

func TestFilterQueryExistingWhere(t *testing.T) {
	f := newTestFilter(t, principalRule)

	res, err := f.FilterQuery("SELECT t FROM T t WHERE t.id > 5 ORDER BY t.name", AccessRead, junit())
	require.NoError(t, err)
	assert.Equal(t, "SELECT t FROM T t WHERE (t.id > 5) AND (t.name = :CURRENT_PRINCIPAL) ORDER BY t.name", res.Query)

	res, err = f.FilterQuery("SELECT t FROM T t WHERE (t.id > 5)", AccessRead, junit())
	require.NoError(t, err)
	assert.Equal(t, "SELECT t FROM T t WHERE (t.id > 5) AND (t.name = :CURRENT_PRINCIPAL)", res.Query)

	res, err = f.FilterQuery("SELECT t.name, COUNT(t) FROM T t GROUP BY t.name", AccessRead, junit())
	require.NoError(t, err)
	assert.Equal(t, "SELECT t.name, COUNT(t) FROM T t WHERE (t.name = :CURRENT_PRINCIPAL) GROUP BY t.name", res.Query)
}

func TestFilterQueryUnrestricted(t *testing.T) {
	tests := []struct {
		name   string
		rules  []string
		query  string
		access AccessType
	}{
		{"no rule for entity", []string{principalRule}, "SELECT o FROM Open o WHERE o.name = 'x'", AccessRead},
		{"no rule for access type", []string{principalRule}, "SELECT t FROM T t", AccessDelete},
		{"unconditional rule", []string{principalRule, "GRANT READ ACCESS TO T t"}, "SELECT t FROM T t", AccessRead},
		{"basic values only", []string{principalRule}, "SELECT l FROM T t JOIN t.labels l", AccessRead},
		{"aggregate over open entity", []string{principalRule}, "SELECT COUNT(o) FROM Open o", AccessRead},
		{"negated empty roles", []string{"GRANT READ ACCESS TO T t WHERE t.role NOT IN (CURRENT_ROLES)"}, "SELECT t FROM T t", AccessRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFilter(t, tt.rules...)
			tree, err := oql.Parse(tt.query)
			require.NoError(t, err)
			want := tree.String()

			res, err := f.FilterQuery(tt.query, tt.access, StaticContext{Principal: "JUnit"})
			require.NoError(t, err)
			assert.False(t, res.Modified)
			assert.False(t, res.AlwaysFalse)
			assert.Equal(t, want, res.Query)
		})
	}
}

func TestFilterQueryPolymorphicRules(t *testing.T) {
	f := newTestFilter(t,
		"GRANT READ ACCESS TO Animal a WHERE a.owner = CURRENT_PRINCIPAL",
		"GRANT READ ACCESS TO Dog d WHERE d.name = 'Rex'",
	)
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT a FROM Animal a", "SELECT a FROM Animal a WHERE (a.owner = :CURRENT_PRINCIPAL)"},
		{"SELECT c FROM Cat c", "SELECT c FROM Cat c WHERE (c.owner = :CURRENT_PRINCIPAL)"},
		{"SELECT d FROM Dog d", "SELECT d FROM Dog d WHERE (d.owner = :CURRENT_PRINCIPAL) OR (d.name = 'Rex')"},
		{"SELECT p FROM Puppy p", "SELECT p FROM Puppy p WHERE (p.owner = :CURRENT_PRINCIPAL) OR (p.name = 'Rex')"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := f.FilterQuery(tt.query, AccessRead, junit())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Query)
		})
	}

	assert.Len(t, f.RulesFor("Puppy", AccessRead), 2)
	assert.Len(t, f.RulesFor("Animal", AccessRead), 1)
	assert.Empty(t, f.RulesFor("Puppy", AccessUpdate))
	assert.Len(t, f.Rules(), 2)
}

func TestFilterQueryRoleExpansion(t *testing.T) {
	f := newTestFilter(t, "GRANT READ ACCESS TO T t WHERE t.name = CURRENT_PRINCIPAL OR t.role IN (CURRENT_ROLES)")

	res, err := f.FilterQuery("SELECT t FROM T t", AccessRead, junit())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT t FROM T t WHERE (t.name = :CURRENT_PRINCIPAL OR t.role IN (:CURRENT_ROLES_0, :CURRENT_ROLES_1))",
		res.Query)
	assert.Equal(t, map[string]any{
		CurrentPrincipal:  "JUnit",
		"CURRENT_ROLES_0": "admin",
		"CURRENT_ROLES_1": "user",
	}, res.Parameters)

	res, err = f.FilterQuery("SELECT t FROM T t", AccessRead, StaticContext{Principal: "JUnit"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT t FROM T t WHERE (t.name = :CURRENT_PRINCIPAL)", res.Query)
}

func TestFilterQueryAlwaysFalse(t *testing.T) {
	f := newTestFilter(t, "GRANT READ ACCESS TO T t WHERE t.role IN (CURRENT_ROLES)")

	res, err := f.FilterQuery("SELECT t FROM T t WHERE t.id = 1", AccessRead, StaticContext{Principal: "JUnit"})
	require.NoError(t, err)
	assert.True(t, res.AlwaysFalse)
	assert.True(t, res.Modified)
	assert.Equal(t, "SELECT t FROM T t WHERE (t.id = 1) AND FALSE", res.Query)

	again, err := f.FilterQuery(res.Query, AccessRead, StaticContext{Principal: "JUnit"})
	require.NoError(t, err)
	assert.True(t, again.AlwaysFalse)
	assert.False(t, again.Modified)
}

func TestFilterQueryDeniesUnresolvable(t *testing.T) {
	f := newTestFilter(t, principalRule)

	res, err := f.FilterQuery("SELECT t FROM T t", AccessRead, emptyContext{})
	require.NoError(t, err)
	assert.True(t, res.AlwaysFalse, "a placeholder without value denies")
	assert.Equal(t, "SELECT t FROM T t WHERE FALSE", res.Query)

	res, err = f.FilterQuery("SELECT t.nope FROM T t", AccessRead, junit())
	require.NoError(t, err)
	assert.True(t, res.AlwaysFalse, "an unresolvable selected path denies")
}

func TestFilterQueryUpdateAndDelete(t *testing.T) {
	f := newTestFilter(t,
		"GRANT UPDATE DELETE ACCESS TO T t WHERE t.name = CURRENT_PRINCIPAL",
	)

	res, err := f.FilterQuery("UPDATE T t SET t.role = 'x'", AccessUpdate, junit())
	require.NoError(t, err)
	assert.Equal(t, "UPDATE T t SET t.role = 'x' WHERE (t.name = :CURRENT_PRINCIPAL)", res.Query)

	res, err = f.FilterQuery("DELETE FROM T x WHERE x.id = 3", AccessDelete, junit())
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM T x WHERE (x.id = 3) AND (x.name = :CURRENT_PRINCIPAL)", res.Query)

	res, err = f.FilterQuery("DELETE FROM T", AccessDelete, junit())
	require.NoError(t, err)
	assert.True(t, res.AlwaysFalse)
	assert.Equal(t, "DELETE FROM T WHERE FALSE", res.Query)

	res, err = f.FilterQuery("UPDATE T t SET t.role = 'x'", AccessRead, junit())
	require.NoError(t, err)
	assert.False(t, res.Modified)
}

func TestFilterQueryRuleSubqueries(t *testing.T) {
	f := newTestFilter(t,
		"GRANT READ ACCESS TO T t WHERE EXISTS (SELECT x FROM T x WHERE x.parent = t AND x.name = CURRENT_PRINCIPAL)",
		"GRANT READ ACCESS TO T t WHERE EXISTS (SELECT t FROM T t WHERE t.name = CURRENT_PRINCIPAL)",
	)
	res, err := f.FilterQuery("SELECT c FROM T c", AccessRead, junit())
	require.NoError(t, err)
	assert.Equal(t, "SELECT c FROM T c WHERE "+
		"(EXISTS (SELECT x FROM T x WHERE x.parent = c AND x.name = :CURRENT_PRINCIPAL)) OR "+
		"(EXISTS (SELECT t FROM T t WHERE t.name = :CURRENT_PRINCIPAL))", res.Query)
}

func TestFilterQueryRuleSubqueryVariablesAreRenamed(t *testing.T) {
	f := newTestFilter(t,
		"GRANT READ ACCESS TO T t WHERE NOT EXISTS (SELECT x FROM T x WHERE x.parent = t AND x.name = 'blocked')",
	)

	res, err := f.FilterQuery("SELECT x FROM T x", AccessRead, junit())
	require.NoError(t, err)
	assert.Equal(t, "SELECT x FROM T x WHERE "+
		"(NOT EXISTS (SELECT x_1 FROM T x_1 WHERE x_1.parent = x AND x_1.name = 'blocked'))", res.Query)

	again, err := f.FilterQuery(res.Query, AccessRead, junit())
	require.NoError(t, err)
	assert.False(t, again.Modified)

	res, err = f.FilterQuery("SELECT y FROM T y", AccessRead, junit())
	require.NoError(t, err)
	assert.Equal(t, "SELECT y FROM T y WHERE "+
		"(NOT EXISTS (SELECT x FROM T x WHERE x.parent = y AND x.name = 'blocked'))", res.Query)
}

func TestFilterQueryRuleDerivedRange(t *testing.T) {
	f := newTestFilter(t,
		"GRANT READ ACCESS TO T t WHERE EXISTS (SELECT c FROM t.children c WHERE c.name = CURRENT_PRINCIPAL)",
	)
	tests := []struct {
		query string
		want  string
	}{
		{
			"SELECT q FROM T q",
			"SELECT q FROM T q WHERE (EXISTS (SELECT c FROM q.children c WHERE c.name = :CURRENT_PRINCIPAL))",
		},
		{
			"SELECT t.parent FROM T t",
			"SELECT t.parent FROM T t WHERE (EXISTS (SELECT c FROM t.parent.children c WHERE c.name = :CURRENT_PRINCIPAL))",
		},
		{
			"SELECT c FROM T c",
			"SELECT c FROM T c WHERE (EXISTS (SELECT c_1 FROM c.children c_1 WHERE c_1.name = :CURRENT_PRINCIPAL))",
		},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := f.FilterQuery(tt.query, AccessRead, junit())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Query)
		})
	}

	res, err := f.FilterQuery("SELECT KEY(r) FROM T t JOIN t.related r", AccessRead, junit())
	require.NoError(t, err)
	assert.True(t, res.AlwaysFalse, "a map key cannot root a derived range")
}

func TestFilterQueryCollectionValuedSelection(t *testing.T) {
	f := newTestFilter(t, principalRule)
	tests := []struct {
		query       string
		want        string
		paths       []string
		alwaysFalse bool
	}{
		{"SELECT t.children FROM T t", "SELECT t.children FROM T t WHERE FALSE", []string{"t.children"}, true},
		{"SELECT t.related FROM T t", "SELECT t.related FROM T t WHERE FALSE", []string{"t.related"}, true},
		{"SELECT t.labels FROM T t", "SELECT t.labels FROM T t WHERE (t.name = :CURRENT_PRINCIPAL)", []string{"t"}, false},
		{"SELECT SIZE(t.children) FROM T t", "SELECT SIZE(t.children) FROM T t WHERE (t.name = :CURRENT_PRINCIPAL)", []string{"t"}, false},
		{
			"SELECT child FROM T t JOIN t.children child",
			"SELECT child FROM T t JOIN t.children child WHERE (child.name = :CURRENT_PRINCIPAL)",
			[]string{"child"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := f.FilterQuery(tt.query, AccessRead, junit())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Query)
			assert.Equal(t, tt.paths, res.SelectedPaths)
			assert.Equal(t, tt.alwaysFalse, res.AlwaysFalse)
		})
	}
}

func TestFilterQueryParameterNamesDoNotClash(t *testing.T) {
	f := newTestFilter(t, principalRule)

	res, err := f.FilterQuery("SELECT t FROM T t WHERE t.name <> :CURRENT_PRINCIPAL", AccessRead, junit())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT t FROM T t WHERE (t.name <> :CURRENT_PRINCIPAL) AND (t.name = :CURRENT_PRINCIPAL_1)",
		res.Query)
	assert.Equal(t, map[string]any{"CURRENT_PRINCIPAL_1": "JUnit"}, res.Parameters)

	again, err := f.FilterQuery(res.Query, AccessRead, junit())
	require.NoError(t, err)
	assert.False(t, again.Modified)
	assert.Equal(t, res.Parameters, again.Parameters)

	f = newTestFilter(t, "GRANT READ ACCESS TO T t WHERE t.role IN (CURRENT_ROLES)")
	res, err = f.FilterQuery("SELECT t FROM T t WHERE t.id = :CURRENT_ROLES_1", AccessRead, junit())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT t FROM T t WHERE (t.id = :CURRENT_ROLES_1) AND (t.role IN (:CURRENT_ROLES_0_1, :CURRENT_ROLES_1_1))",
		res.Query)
	assert.Equal(t, map[string]any{"CURRENT_ROLES_0_1": "admin", "CURRENT_ROLES_1_1": "user"}, res.Parameters)
}

func TestFilterQuerySubqueryDefinitions(t *testing.T) {
	f := newTestFilter(t, principalRule)
	res, err := f.FilterQuery("SELECT t FROM T t WHERE EXISTS (SELECT c FROM T c WHERE c.parent = t)", AccessRead, junit())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT t FROM T t WHERE (EXISTS (SELECT c FROM T c WHERE c.parent = t)) AND (t.name = :CURRENT_PRINCIPAL)",
		res.Query)
	require.Len(t, res.TypeDefinitions, 2)
	assert.Equal(t, "t", res.TypeDefinitions[0].Alias)
	assert.Equal(t, "c", res.TypeDefinitions[1].Alias)
	assert.Equal(t, []string{"t"}, res.SelectedPaths)
}

func TestFilterQueryErrors(t *testing.T) {
	f := newTestFilter(t, principalRule)

	_, err := f.FilterQuery("SELECT FROM T t", AccessRead, junit())
	var pe *oql.ParseError
	assert.True(t, errors.As(err, &pe))

	_, err = f.FilterQuery("SELECT x FROM Nope x", AccessRead, junit())
	assert.True(t, IsUnknownEntityErr(err))

	tree, err := oql.ParseWhereClause("t.id = 1")
	require.NoError(t, err)
	_, err = f.FilterTree(tree, AccessRead, junit())
	assert.Error(t, err)
}

func TestFilterQueryMonotonic(t *testing.T) {
	base := newTestFilter(t, principalRule)
	more := newTestFilter(t, principalRule, "GRANT READ ACCESS TO T t WHERE t.role = 'admin'")

	entities := []*MapEntity{
		{Name: "T", Values: map[string]any{"name": "JUnit", "role": "user"}},
		{Name: "T", Values: map[string]any{"name": "other", "role": "admin"}},
		{Name: "T", Values: map[string]any{"name": "other", "role": "user"}},
		{Name: "T", Values: map[string]any{}},
	}
	for _, e := range entities {
		before, err := base.IsAccessible(e, AccessRead, junit())
		require.NoError(t, err)
		after, err := more.IsAccessible(e, AccessRead, junit())
		require.NoError(t, err)
		if before {
			assert.True(t, after, "adding a rule must not revoke access: %v", e.Values)
		}
	}
}

func TestFilterQuerySoundness(t *testing.T) {
	f := newTestFilter(t,
		principalRule,
		"GRANT READ ACCESS TO T t WHERE t.role IN (CURRENT_ROLES) AND t.parent IS NOT NULL",
		"GRANT READ ACCESS TO T t WHERE LOWER(t.name) LIKE 'adm%' OR SIZE(t.children) > 1",
	)
	parent := &MapEntity{Name: "T", Values: map[string]any{"name": "root"}}
	entities := []*MapEntity{
		{Name: "T", Values: map[string]any{"name": "JUnit"}},
		{Name: "T", Values: map[string]any{"name": "x", "role": "admin"}},
		{Name: "T", Values: map[string]any{"name": "x", "role": "admin", "parent": parent}},
		{Name: "T", Values: map[string]any{"name": "Administrator"}},
		{Name: "T", Values: map[string]any{"name": "x", "children": []any{parent, parent}}},
		{Name: "T", Values: map[string]any{"role": "guest"}},
	}

	res, err := f.FilterQuery("SELECT x FROM T x", AccessRead, junit())
	require.NoError(t, err)
	where := res.Tree.Child(res.Tree.Find(res.Tree.Root(), oql.KindWhere), 0)

	for _, e := range entities {
		accessible, err := f.IsAccessible(e, AccessRead, junit())
		require.NoError(t, err)

		ev := newEvaluator(res.Tree, junit())
		ev.bind("x", e)
		ev.params = res.Parameters
		v, err := ev.eval(where)
		require.NoError(t, err)
		assert.Equal(t, accessible, v == true, "entity %v", e.Values)
	}
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a = 1 AND TRUE", "a = 1"},
		{"a = 1 AND FALSE", "FALSE"},
		{"a = 1 OR TRUE", "TRUE"},
		{"(FALSE OR a = 1) AND b = 2", "(a = 1) AND b = 2"},
		{"NOT (TRUE)", "FALSE"},
		{"a = 1 AND b = 2", "a = 1 AND b = 2"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tree, err := oql.ParseWhereClause(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, oql.Render(tree, simplify(tree, tree.Root())))
		})
	}
}

func TestNegate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a IS NULL", "a IS NOT NULL"},
		{"a NOT LIKE 'x%'", "a LIKE 'x%'"},
		{"a = 1", "a <> 1"},
		{"a != 1", "a = 1"},
		{"a < 1", "a >= 1"},
		{"a > 1", "a <= 1"},
		{"a = 1 AND b IN (1, 2)", "a <> 1 OR b NOT IN (1, 2)"},
		{"a = 1 OR b = 2", "a <> 1 AND b <> 2"},
		{"NOT (a = 1 OR b = 2)", "(a = 1 OR b = 2)"},
		{"(a = 1)", "(a <> 1)"},
		{"TRUE", "FALSE"},
		{"a", "NOT a"},
		{"a = ALL (SELECT x.id FROM T x)", "NOT a = ALL (SELECT x.id FROM T x)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tree, err := oql.ParseWhereClause(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, oql.Render(tree, negate(tree, tree.Root())))
		})
	}
}
