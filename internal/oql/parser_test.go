package oql

import (
	"errors"
	"strings"
	"testing"
)

// --- Helpers ---

func mustParse(t *testing.T, input string) *Tree {
	t.Helper()
	tree, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", input, err)
	}
	return tree
}

func expectParseError(t *testing.T, input, wantSubstr string) *ParseError {
	t.Helper()
	_, err := Parse(input)
	if err == nil {
		t.Fatalf("Parse(%q): expected error containing %q, got nil", input, wantSubstr)
	}
	if !strings.Contains(err.Error(), wantSubstr) {
		t.Fatalf("Parse(%q): expected error containing %q, got %q", input, wantSubstr, err.Error())
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Parse(%q): expected *ParseError, got %T", input, err)
	}
	return perr
}

// whereCond returns the condition of the statement's WHERE clause.
func whereCond(t *testing.T, tree *Tree) NodeID {
	t.Helper()
	w := tree.Find(tree.Root(), KindWhere)
	if w == NoNode {
		t.Fatalf("statement has no WHERE clause: %s", tree)
	}
	return tree.Child(w, 0)
}

func selectItem(t *testing.T, tree *Tree, i int) NodeID {
	t.Helper()
	sel := tree.Find(tree.Root(), KindSelectClause)
	if sel == NoNode || tree.NumChildren(sel) <= i {
		t.Fatalf("no select item %d in %s", i, tree)
	}
	return tree.Child(sel, i)
}

func checkParents(t *testing.T, tree *Tree) {
	t.Helper()
	tree.Walk(tree.Root(), func(id NodeID) bool {
		for _, c := range tree.Children(id) {
			if tree.Parent(c) != id {
				t.Errorf("node %d (%s): parent %d, expected %d", c, tree.Kind(c), tree.Parent(c), id)
			}
		}
		return true
	})
}

// --- Statements ---

func TestParseSimpleSelect(t *testing.T) {
	tree := mustParse(t, "SELECT t FROM T t")
	root := tree.Root()
	if tree.Kind(root) != KindSelect {
		t.Fatalf("expected Select, got %s", tree.Kind(root))
	}
	item := selectItem(t, tree, 0)
	if tree.Kind(item) != KindIdent || tree.Text(item) != "t" {
		t.Fatalf("expected Ident t, got %s %q", tree.Kind(item), tree.Text(item))
	}
	from := tree.Find(root, KindFrom)
	rng := tree.Child(from, 0)
	if tree.Kind(rng) != KindRangeDecl || tree.Text(rng) != "T" {
		t.Fatalf("expected RangeDecl T, got %s %q", tree.Kind(rng), tree.Text(rng))
	}
	alias := tree.Find(rng, KindAlias)
	if alias == NoNode || tree.Text(alias) != "t" {
		t.Fatalf("expected alias t")
	}
	if tree.Find(root, KindWhere) != NoNode {
		t.Fatalf("unexpected WHERE clause")
	}
}

func TestParseKeywordsAreCaseInsensitive(t *testing.T) {
	tree := mustParse(t, "select distinct t from T as t where t.id = 1 order by t.id desc")
	sel := tree.Find(tree.Root(), KindSelectClause)
	if !tree.Has(sel, FlagDistinct) {
		t.Fatalf("expected DISTINCT flag")
	}
	order := tree.Find(tree.Root(), KindOrderBy)
	if order == NoNode || !tree.Has(tree.Child(order, 0), FlagDesc) {
		t.Fatalf("expected descending order item")
	}
}

func TestParseJoins(t *testing.T) {
	tree := mustParse(t, "SELECT c FROM T t LEFT OUTER JOIN t.children c JOIN FETCH t.parent p INNER JOIN t.owner o ON o.active = TRUE")
	rng := tree.Child(tree.Find(tree.Root(), KindFrom), 0)
	var joins []NodeID
	for _, c := range tree.Children(rng) {
		if tree.Kind(c) == KindJoin {
			joins = append(joins, c)
		}
	}
	if len(joins) != 3 {
		t.Fatalf("expected 3 joins, got %d", len(joins))
	}
	if !tree.Has(joins[0], FlagOuter) || tree.Has(joins[0], FlagFetch) {
		t.Errorf("join 0: expected outer, non-fetch")
	}
	if tree.Has(joins[1], FlagOuter) || !tree.Has(joins[1], FlagFetch) {
		t.Errorf("join 1: expected inner fetch")
	}
	if n := tree.NumChildren(joins[2]); n != 3 {
		t.Fatalf("join 2: expected path, alias and condition, got %d children", n)
	}
	path := tree.Child(joins[0], 0)
	if tree.Kind(path) != KindPath || tree.Text(path) != "children" {
		t.Errorf("join 0: expected path children, got %s %q", tree.Kind(path), tree.Text(path))
	}
}

func TestParseCollectionMember(t *testing.T) {
	tree := mustParse(t, "SELECT c FROM T t, IN(t.children) c")
	from := tree.Find(tree.Root(), KindFrom)
	if tree.NumChildren(from) != 2 {
		t.Fatalf("expected 2 from items, got %d", tree.NumChildren(from))
	}
	cm := tree.Child(from, 1)
	if tree.Kind(cm) != KindCollectionMember {
		t.Fatalf("expected CollectionMember, got %s", tree.Kind(cm))
	}
}

func TestParseUpdate(t *testing.T) {
	tree := mustParse(t, "UPDATE T t SET t.name = 'x', t.count = t.count + 1 WHERE t.id = :id")
	root := tree.Root()
	if tree.Kind(root) != KindUpdate {
		t.Fatalf("expected Update, got %s", tree.Kind(root))
	}
	set := tree.Find(root, KindSet)
	if tree.NumChildren(set) != 2 {
		t.Fatalf("expected 2 assignments, got %d", tree.NumChildren(set))
	}
	if tree.Find(root, KindWhere) == NoNode {
		t.Fatalf("expected WHERE clause")
	}
}

func TestParseDelete(t *testing.T) {
	tree := mustParse(t, "DELETE FROM T t WHERE t.name LIKE 'a%'")
	if tree.Kind(tree.Root()) != KindDelete {
		t.Fatalf("expected Delete, got %s", tree.Kind(tree.Root()))
	}
	if tree.Kind(whereCond(t, tree)) != KindLike {
		t.Fatalf("expected Like condition")
	}
}

// --- Conditions ---

func TestParseNotFoldsIntoPredicates(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
	}{
		{"SELECT t FROM T t WHERE t.a NOT BETWEEN 1 AND 2", KindBetween},
		{"SELECT t FROM T t WHERE NOT t.a BETWEEN 1 AND 2", KindBetween},
		{"SELECT t FROM T t WHERE t.a NOT LIKE 'x'", KindLike},
		{"SELECT t FROM T t WHERE t.a IS NOT NULL", KindIsNull},
		{"SELECT t FROM T t WHERE NOT t.a IS NULL", KindIsNull},
		{"SELECT t FROM T t WHERE t.c IS NOT EMPTY", KindIsEmpty},
		{"SELECT t FROM T t WHERE t.a NOT IN (1, 2)", KindIn},
		{"SELECT t FROM T t WHERE t NOT MEMBER OF t.parent.children", KindMemberOf},
		{"SELECT t FROM T t WHERE NOT EXISTS (SELECT c FROM C c)", KindExists},
	}
	for _, tt := range tests {
		tree := mustParse(t, tt.input)
		cond := whereCond(t, tree)
		if tree.Kind(cond) != tt.kind {
			t.Errorf("%q: expected %s, got %s", tt.input, tt.kind, tree.Kind(cond))
			continue
		}
		if !tree.Has(cond, FlagNegated) {
			t.Errorf("%q: expected negated flag", tt.input)
		}
	}
}

func TestParseDoubleNotCancels(t *testing.T) {
	tree := mustParse(t, "SELECT t FROM T t WHERE NOT NOT t.a IS NULL")
	cond := whereCond(t, tree)
	if tree.Kind(cond) != KindIsNull || tree.Has(cond, FlagNegated) {
		t.Fatalf("expected plain IsNull, got %s negated=%v", tree.Kind(cond), tree.Has(cond, FlagNegated))
	}
}

func TestParseNotWrapsComparison(t *testing.T) {
	tree := mustParse(t, "SELECT t FROM T t WHERE NOT t.a = 1")
	cond := whereCond(t, tree)
	if tree.Kind(cond) != KindNot {
		t.Fatalf("expected Not, got %s", tree.Kind(cond))
	}
}

func TestParseAndOrPrecedence(t *testing.T) {
	tree := mustParse(t, "SELECT t FROM T t WHERE t.a = 1 OR t.b = 2 AND t.c = 3")
	cond := whereCond(t, tree)
	if tree.Kind(cond) != KindOr || tree.NumChildren(cond) != 2 {
		t.Fatalf("expected binary Or, got %s", tree.Kind(cond))
	}
	if tree.Kind(tree.Child(cond, 1)) != KindAnd {
		t.Fatalf("expected And on the right")
	}
}

func TestParseParenthesizedCondition(t *testing.T) {
	tree := mustParse(t, "SELECT t FROM T t WHERE (t.a = 1 OR t.b = 2) AND t.c = 3")
	cond := whereCond(t, tree)
	if tree.Kind(cond) != KindAnd {
		t.Fatalf("expected And, got %s", tree.Kind(cond))
	}
	if tree.Kind(tree.Child(cond, 0)) != KindParen {
		t.Fatalf("expected Paren, got %s", tree.Kind(tree.Child(cond, 0)))
	}
}

func TestParseParenthesizedArithmetic(t *testing.T) {
	tree := mustParse(t, "SELECT t FROM T t WHERE (t.a + 1) * 2 > 10")
	cond := whereCond(t, tree)
	if tree.Kind(cond) != KindCompare {
		t.Fatalf("expected Compare, got %s", tree.Kind(cond))
	}
	left := tree.Child(cond, 0)
	if tree.Kind(left) != KindArith || tree.Text(left) != "*" {
		t.Fatalf("expected multiplication, got %s %q", tree.Kind(left), tree.Text(left))
	}
	checkParents(t, tree)
}

func TestParseInForms(t *testing.T) {
	tree := mustParse(t, "SELECT t FROM T t WHERE t.a IN :values")
	cond := whereCond(t, tree)
	if !tree.Has(cond, FlagBare) {
		t.Errorf("expected bare IN parameter")
	}
	tree = mustParse(t, "SELECT t FROM T t WHERE t.id IN (SELECT c.id FROM C c)")
	cond = whereCond(t, tree)
	if tree.Kind(tree.Child(cond, 1)) != KindSubquery {
		t.Errorf("expected subquery operand")
	}
}

func TestParseAllAny(t *testing.T) {
	tree := mustParse(t, "SELECT t FROM T t WHERE t.n > ALL (SELECT c.n FROM C c)")
	cond := whereCond(t, tree)
	right := tree.Child(cond, 1)
	if tree.Kind(right) != KindAllAny || tree.Text(right) != "ALL" {
		t.Fatalf("expected ALL quantifier, got %s %q", tree.Kind(right), tree.Text(right))
	}
}

// --- Scalar expressions ---

func TestParseCase(t *testing.T) {
	tree := mustParse(t, "SELECT CASE WHEN child IS NULL THEN t.id WHEN child.name = :name THEN child.id ELSE child.parent.id END FROM T t LEFT OUTER JOIN t.children child")
	item := selectItem(t, tree, 0)
	if tree.Kind(item) != KindCase || tree.Has(item, FlagOperand) {
		t.Fatalf("expected searched Case, got %s", tree.Kind(item))
	}
	kids := tree.Children(item)
	if len(kids) != 3 || tree.Kind(kids[0]) != KindWhen || tree.Kind(kids[2]) != KindElse {
		t.Fatalf("expected When, When, Else")
	}
	res := tree.Child(kids[2], 0)
	if tree.Kind(res) != KindPath || tree.Text(res) != "parent.id" {
		t.Fatalf("expected path parent.id, got %q", tree.Text(res))
	}
}

func TestParseSimpleCase(t *testing.T) {
	tree := mustParse(t, "SELECT CASE t.kind WHEN 1 THEN 'one' ELSE 'other' END FROM T t")
	item := selectItem(t, tree, 0)
	if !tree.Has(item, FlagOperand) {
		t.Fatalf("expected simple case with operand")
	}
}

func TestParseMapAccessors(t *testing.T) {
	tree := mustParse(t, "SELECT KEY(related).name, VALUE(related), ENTRY(related) FROM T t LEFT OUTER JOIN t.related related")
	first := selectItem(t, tree, 0)
	if tree.Kind(first) != KindPath || tree.Kind(tree.Child(first, 0)) != KindKey {
		t.Fatalf("expected KEY(related).name path")
	}
	if tree.Kind(selectItem(t, tree, 1)) != KindValue {
		t.Errorf("expected VALUE accessor")
	}
	if tree.Kind(selectItem(t, tree, 2)) != KindEntry {
		t.Errorf("expected ENTRY accessor")
	}
}

func TestParseConstructorAndResultVariables(t *testing.T) {
	tree := mustParse(t, "SELECT NEW com.example.Dto(t.id, COALESCE(t.a, t.b)), t.name AS n FROM T t")
	ctor := selectItem(t, tree, 0)
	if tree.Kind(ctor) != KindConstructor || tree.Text(ctor) != "com.example.Dto" {
		t.Fatalf("expected constructor, got %s %q", tree.Kind(ctor), tree.Text(ctor))
	}
	if tree.Kind(tree.Child(ctor, 1)) != KindCoalesce {
		t.Errorf("expected COALESCE argument")
	}
	as := selectItem(t, tree, 1)
	if tree.Kind(as) != KindAs || tree.Text(as) != "n" {
		t.Errorf("expected result variable n")
	}
}

func TestParseFunctions(t *testing.T) {
	inputs := []string{
		"SELECT UPPER(t.name) FROM T t",
		"SELECT CONCAT(t.a, t.b, 'c') FROM T t",
		"SELECT SUBSTRING(t.a, 1, 2) FROM T t",
		"SELECT TRIM(LEADING 'x' FROM t.a) FROM T t",
		"SELECT TRIM(t.a) FROM T t",
		"SELECT COUNT(DISTINCT t.id) FROM T t GROUP BY t.kind HAVING COUNT(t.id) > 1",
		"SELECT t FROM T t WHERE t.created < CURRENT_TIMESTAMP",
		"SELECT NULLIF(t.a, 0) FROM T t",
	}
	for _, input := range inputs {
		checkParents(t, mustParse(t, input))
	}
}

// --- Rules and fragments ---

func TestParseRule(t *testing.T) {
	tree, err := ParseRule("GRANT READ UPDATE ACCESS TO T t WHERE t.name = CURRENT_PRINCIPAL")
	if err != nil {
		t.Fatalf("ParseRule failed: %v", err)
	}
	root := tree.Root()
	if tree.Kind(root) != KindRule {
		t.Fatalf("expected Rule, got %s", tree.Kind(root))
	}
	if !tree.Has(root, FlagRead|FlagUpdate) || tree.Has(root, FlagCreate) || tree.Has(root, FlagDelete) {
		t.Fatalf("unexpected access flags %b", tree.Flags(root))
	}
}

func TestParseRuleWithoutAccessKeywordsOrWhere(t *testing.T) {
	tree, err := ParseRule("grant access to T t")
	if err != nil {
		t.Fatalf("ParseRule failed: %v", err)
	}
	if tree.Flags(tree.Root()) != 0 {
		t.Fatalf("expected no access flags")
	}
	if tree.Find(tree.Root(), KindWhere) != NoNode {
		t.Fatalf("expected no WHERE clause")
	}
}

func TestParseWhereClause(t *testing.T) {
	tree, err := ParseWhereClause("WHERE t.a = 1 AND t.b IS NULL")
	if err != nil {
		t.Fatalf("ParseWhereClause failed: %v", err)
	}
	if tree.Kind(tree.Root()) != KindAnd {
		t.Fatalf("expected And root, got %s", tree.Kind(tree.Root()))
	}
}

// --- Errors ---

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "expected SELECT or UPDATE or DELETE"},
		{"SELECT t", "expected FROM"},
		{"SELECT t FROM T t WHERE", "unexpected end of input"},
		{"SELECT t FROM T t WHERE t.a BETWEEN 1", "expected AND"},
		{"SELECT t FROM T t extra tokens", "expected end of input"},
		{"SELECT FOO(t) FROM T t", "unknown function FOO"},
		{"SELECT NULLIF(t.a) FROM T t", "wrong number of arguments"},
		{"SELECT CASE t.a END FROM T t", "expected WHEN"},
		{"SELECT t FROM T t WHERE t.a IS 1", "expected NULL or EMPTY"},
	}
	for _, tt := range tests {
		expectParseError(t, tt.input, tt.want)
	}
}

func TestParseErrorCarriesPositionAndExpected(t *testing.T) {
	perr := expectParseError(t, "SELECT t FROM T t WHERE t.a IS 1", "expected")
	if perr.Pos != 31 {
		t.Errorf("expected position 31, got %d", perr.Pos)
	}
	if len(perr.Expected) != 2 || perr.Found != "1" {
		t.Errorf("unexpected error detail: %+v", perr)
	}
}

func TestParseRuleErrors(t *testing.T) {
	for _, input := range []string{
		"READ ACCESS TO T t",
		"GRANT READ TO T t",
		"GRANT READ ACCESS TO",
	} {
		if _, err := ParseRule(input); err == nil {
			t.Errorf("ParseRule(%q): expected error", input)
		}
	}
}
