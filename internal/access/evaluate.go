package access

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/atlekbai/accessql/internal/oql"
	"github.com/atlekbai/accessql/internal/schema"
)

// Entity is an in-memory instance checked by IsAccessible. Property returns
// nil for NULL, an Entity for references, a slice for collections and a map
// for map-valued properties.
type Entity interface {
	EntityName() string
	Property(name string) (any, error)
}

// MapEntity is an Entity backed by a map of property values.
type MapEntity struct {
	Name   string
	Values map[string]any
}

func (e *MapEntity) EntityName() string { return e.Name }

func (e *MapEntity) Property(name string) (any, error) {
	return e.Values[name], nil
}

// EntityKey names the concrete entity of a nested object decoded by
// NewMapEntity when it is a subtype of the declared target.
const EntityKey = "$entity"

// NewMapEntity builds a MapEntity graph from decoded JSON or YAML values.
// Nested objects under relationship properties become entities of the
// property's target type; unknown properties are rejected.
func NewMapEntity(m Mapping, name string, values map[string]any) (*MapEntity, error) {
	def := m.Get(name)
	if def == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownEntity, name)
	}
	e := &MapEntity{Name: def.Name, Values: make(map[string]any, len(values))}
	for key, v := range values {
		if key == EntityKey {
			continue
		}
		p, ok := def.Property(key)
		if !ok {
			return nil, fmt.Errorf("%s has no property %q", def.Name, key)
		}
		conv, err := propertyValue(m, p, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", def.Name, key, err)
		}
		e.Values[key] = conv
	}
	return e, nil
}

func propertyValue(m Mapping, p *schema.PropertyDef, v any) (any, error) {
	if v == nil || p.Target == "" {
		return v, nil
	}
	switch p.Kind {
	case schema.PropertyReference:
		return nestedEntity(m, p.Target, v)
	case schema.PropertyCollection:
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected a list, got %T", v)
		}
		out := make([]any, len(list))
		for i, item := range list {
			e, err := nestedEntity(m, p.Target, item)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case schema.PropertyMap:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object, got %T", v)
		}
		out := make(map[string]any, len(obj))
		for k, item := range obj {
			e, err := nestedEntity(m, p.Target, item)
			if err != nil {
				return nil, err
			}
			out[k] = e
		}
		return out, nil
	}
	return v, nil
}

func nestedEntity(m Mapping, target string, v any) (Entity, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	name := target
	if concrete, ok := obj[EntityKey].(string); ok {
		if !m.IsAssignable(target, concrete) {
			return nil, fmt.Errorf("%s is not a %s", concrete, target)
		}
		name = concrete
	}
	return NewMapEntity(m, name, obj)
}

// IsAccessible reports whether entity passes any rule granting access. With
// no applicable rule the entity is accessible. An error is returned only
// when no rule grants access and at least one could not be evaluated.
func (f *Filter) IsAccessible(entity Entity, access AccessType, sc SecurityContext) (bool, error) {
	def := f.mapping.Get(entity.EntityName())
	if def == nil {
		return false, fmt.Errorf("%w %q", ErrUnknownEntity, entity.EntityName())
	}
	rules := f.RulesFor(def.Name, access)
	if len(rules) == 0 {
		return true, nil
	}
	var firstErr error
	for _, r := range rules {
		if r.Unrestricted() {
			return true, nil
		}
		ev := newEvaluator(r.tree, sc)
		ev.bind(r.Alias, entity)
		ev.placeholders = r.Placeholders
		v, err := ev.eval(r.where)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %s: %w", r.Name, err)
			}
			continue
		}
		if v == true {
			return true, nil
		}
	}
	return false, firstErr
}

// CheckAccess is IsAccessible returning an error wrapping
// ErrSecurityViolation when access is denied.
func (f *Filter) CheckAccess(entity Entity, access AccessType, sc SecurityContext) error {
	ok, err := f.IsAccessible(entity, access, sc)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s access to %s denied", ErrSecurityViolation, access, entity.EntityName())
	}
	return nil
}

// evaluator computes a condition over in-memory values with SQL
// three-valued logic; nil stands for NULL and for unknown.
type evaluator struct {
	tree         *oql.Tree
	sc           SecurityContext
	fold         cases.Caser
	vars         map[string]Entity
	params       map[string]any
	placeholders []string
	now          time.Time
}

func newEvaluator(tree *oql.Tree, sc SecurityContext) *evaluator {
	return &evaluator{
		tree: tree,
		sc:   sc,
		fold: cases.Fold(),
		vars: make(map[string]Entity),
		now:  time.Now(),
	}
}

func (ev *evaluator) bind(alias string, e Entity) {
	ev.vars[ev.fold.String(alias)] = e
}

func (ev *evaluator) fail(id oql.NodeID, format string, args ...any) error {
	return notEvaluatable(oql.Render(ev.tree, id), format, args...)
}

func (ev *evaluator) eval(id oql.NodeID) (any, error) {
	t := ev.tree
	kids := t.Children(id)
	switch t.Kind(id) {
	case oql.KindAnd, oql.KindOr:
		stop := t.Kind(id) == oql.KindOr // OR stops at TRUE, AND at FALSE
		unknown := false
		for _, c := range kids {
			v, err := ev.evalBool(c)
			if err != nil {
				return nil, err
			}
			if v == nil {
				unknown = true
				continue
			}
			if v == stop {
				return stop, nil
			}
		}
		if unknown {
			return nil, nil
		}
		return !stop, nil
	case oql.KindNot:
		v, err := ev.evalBool(kids[0])
		return not3(v), err
	case oql.KindParen, oql.KindWhere:
		return ev.eval(kids[0])
	case oql.KindCompare:
		if t.Kind(kids[1]) == oql.KindAllAny {
			return nil, ev.fail(id, "quantified comparison needs a query")
		}
		l, r, err := ev.pair(kids[0], kids[1])
		if err != nil || isNull(l) || isNull(r) {
			return nil, err
		}
		return compare(t.Text(id), l, r)
	case oql.KindBetween:
		x, lo, err := ev.pair(kids[0], kids[1])
		if err != nil {
			return nil, err
		}
		hi, err := ev.eval(kids[2])
		if err != nil {
			return nil, err
		}
		var ge, le any
		if x != nil && lo != nil {
			if ge, err = compare(">=", x, lo); err != nil {
				return nil, err
			}
		}
		if x != nil && hi != nil {
			if le, err = compare("<=", x, hi); err != nil {
				return nil, err
			}
		}
		return ev.negated(id, and3(ge, le)), nil
	case oql.KindLike:
		return ev.like(id)
	case oql.KindIsNull:
		v, err := ev.eval(kids[0])
		if err != nil {
			return nil, err
		}
		return ev.negated(id, isNull(v)), nil
	case oql.KindIsEmpty:
		v, err := ev.eval(kids[0])
		if err != nil {
			return nil, err
		}
		elems, _ := collection(v)
		return ev.negated(id, len(elems) == 0), nil
	case oql.KindIn:
		return ev.in(id)
	case oql.KindMemberOf:
		x, coll, err := ev.pair(kids[0], kids[1])
		if err != nil {
			return nil, err
		}
		elems, ok := collection(coll)
		if coll != nil && !ok {
			return nil, ev.fail(kids[1], "not a collection")
		}
		return ev.negated(id, member(x, elems)), nil
	case oql.KindExists, oql.KindSubquery, oql.KindAllAny:
		return nil, ev.fail(id, "subquery needs a query")
	case oql.KindAggregate:
		return nil, ev.fail(id, "aggregate needs a query")
	case oql.KindKey, oql.KindValue, oql.KindEntry:
		return nil, ev.fail(id, "map accessor needs a query")
	case oql.KindPositionalParam:
		return nil, ev.fail(id, "positional parameter has no value")
	case oql.KindNamedParam:
		if v, ok := ev.params[t.Text(id)]; ok {
			return v, nil
		}
		return nil, ev.fail(id, "parameter has no value")

	case oql.KindIdent:
		return ev.ident(id)
	case oql.KindPath:
		v, err := ev.eval(kids[0])
		if err != nil {
			return nil, err
		}
		for _, seg := range strings.Split(t.Text(id), ".") {
			if isNull(v) {
				return nil, nil
			}
			e, ok := v.(Entity)
			if !ok {
				return nil, ev.fail(id, "cannot navigate %q on %T", seg, v)
			}
			if v, err = e.Property(seg); err != nil {
				return nil, err
			}
		}
		return v, nil

	case oql.KindString:
		return t.Text(id), nil
	case oql.KindNumber:
		return parseNumber(t.Text(id))
	case oql.KindBoolean:
		return t.Text(id) == "TRUE", nil
	case oql.KindNull:
		return nil, nil

	case oql.KindArith:
		l, r, err := ev.pair(kids[0], kids[1])
		if err != nil || isNull(l) || isNull(r) {
			return nil, err
		}
		return ev.arith(id, l, r)
	case oql.KindNegate:
		v, err := ev.eval(kids[0])
		if err != nil || v == nil {
			return nil, err
		}
		if i, ok := v.(int64); ok && i != math.MinInt64 {
			return -i, nil
		}
		n, ok := toNumber(v)
		if !ok {
			return nil, ev.fail(id, "not a number")
		}
		return -n, nil
	case oql.KindFunc:
		return ev.function(id)
	case oql.KindTrim:
		return ev.trim(id)
	case oql.KindCase:
		return ev.caseExpr(id)
	case oql.KindCoalesce:
		for _, c := range kids {
			v, err := ev.eval(c)
			if err != nil {
				return nil, err
			}
			if !isNull(v) {
				return v, nil
			}
		}
		return nil, nil
	case oql.KindNullIf:
		a, b, err := ev.pair(kids[0], kids[1])
		if err != nil {
			return nil, err
		}
		if eq := equal(a, b); eq == true {
			return nil, nil
		}
		return a, nil
	}
	return nil, ev.fail(id, "%s is not evaluatable", t.Kind(id))
}

func (ev *evaluator) evalBool(id oql.NodeID) (any, error) {
	v, err := ev.eval(id)
	if err != nil || v == nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, ev.fail(id, "not a condition")
	}
	return b, nil
}

func (ev *evaluator) pair(a, b oql.NodeID) (any, any, error) {
	x, err := ev.eval(a)
	if err != nil {
		return nil, nil, err
	}
	y, err := ev.eval(b)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func (ev *evaluator) negated(id oql.NodeID, v any) any {
	if ev.tree.Has(id, oql.FlagNegated) {
		return not3(v)
	}
	return v
}

func (ev *evaluator) ident(id oql.NodeID) (any, error) {
	name := ev.tree.Text(id)
	if e, ok := ev.vars[ev.fold.String(name)]; ok {
		return e, nil
	}
	for _, p := range ev.placeholders {
		if strings.EqualFold(p, name) && ev.sc != nil {
			if v, ok := ev.sc.ValueOf(p); ok {
				return v, nil
			}
		}
	}
	return nil, ev.fail(id, "unbound identifier")
}

func (ev *evaluator) like(id oql.NodeID) (any, error) {
	kids := ev.tree.Children(id)
	x, pattern, err := ev.pair(kids[0], kids[1])
	if err != nil || x == nil || pattern == nil {
		return nil, err
	}
	var escape rune
	if len(kids) > 2 {
		e, err := ev.eval(kids[2])
		if err != nil || e == nil {
			return nil, err
		}
		if s, ok := e.(string); ok && len([]rune(s)) == 1 {
			escape = []rune(s)[0]
		} else {
			return nil, ev.fail(kids[2], "escape must be a single character")
		}
	}
	s, ok1 := x.(string)
	p, ok2 := pattern.(string)
	if !ok1 || !ok2 {
		return nil, ev.fail(id, "LIKE needs strings")
	}
	re, err := likePattern(p, escape)
	if err != nil {
		return nil, ev.fail(id, "%v", err)
	}
	return ev.negated(id, re.MatchString(s)), nil
}

// likePattern translates % and _ wildcards into an anchored regexp.
func likePattern(p string, escape rune) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)^")
	escaped := false
	for _, r := range p {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case escape != 0 && r == escape:
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		return nil, fmt.Errorf("pattern %q ends with the escape character", p)
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func (ev *evaluator) in(id oql.NodeID) (any, error) {
	t := ev.tree
	kids := t.Children(id)
	if t.Kind(kids[1]) == oql.KindSubquery {
		return nil, ev.fail(id, "subquery needs a query")
	}
	x, err := ev.eval(kids[0])
	if err != nil {
		return nil, err
	}
	var items []any
	for _, c := range kids[1:] {
		v, err := ev.eval(c)
		if err != nil {
			return nil, err
		}
		if elems, ok := sliceValues(v); ok {
			items = append(items, elems...)
			continue
		}
		items = append(items, v)
	}
	return ev.negated(id, member(x, items)), nil
}

func (ev *evaluator) arith(id oql.NodeID, l, r any) (any, error) {
	a, ok1 := toNumber(l)
	b, ok2 := toNumber(r)
	if !ok1 || !ok2 {
		return nil, ev.fail(id, "arithmetic needs numbers")
	}
	switch ev.tree.Text(id) {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, ev.fail(id, "division by zero")
		}
		return a / b, nil
	}
	return nil, ev.fail(id, "unknown operator")
}

func (ev *evaluator) function(id oql.NodeID) (any, error) {
	t := ev.tree
	name := t.Text(id)
	switch name {
	case "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP":
		return ev.now, nil
	case "INDEX":
		return nil, ev.fail(id, "INDEX needs a query")
	}
	args := make([]any, t.NumChildren(id))
	for i, c := range t.Children(id) {
		v, err := ev.eval(c)
		if err != nil {
			return nil, err
		}
		if v == nil && name != "SIZE" {
			return nil, nil
		}
		args[i] = v
	}
	str := func(i int) (string, bool) { s, ok := args[i].(string); return s, ok }
	num := func(i int) (float64, bool) { return toNumber(args[i]) }

	switch name {
	case "CONCAT":
		var b strings.Builder
		for i := range args {
			s, ok := str(i)
			if !ok {
				return nil, ev.fail(id, "CONCAT needs strings")
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case "LOWER", "UPPER", "LENGTH":
		s, ok := str(0)
		if !ok {
			return nil, ev.fail(id, "%s needs a string", name)
		}
		switch name {
		case "LOWER":
			return strings.ToLower(s), nil
		case "UPPER":
			return strings.ToUpper(s), nil
		}
		return float64(len([]rune(s))), nil
	case "SUBSTRING":
		s, ok := str(0)
		start, ok2 := num(1)
		if !ok || !ok2 {
			return nil, ev.fail(id, "SUBSTRING needs a string and a position")
		}
		runes := []rune(s)
		from := max(int(start)-1, 0)
		if from > len(runes) {
			return "", nil
		}
		to := len(runes)
		if len(args) > 2 {
			n, ok := num(2)
			if !ok {
				return nil, ev.fail(id, "SUBSTRING length must be a number")
			}
			to = min(from+max(int(n), 0), len(runes))
		}
		return string(runes[from:to]), nil
	case "LOCATE":
		needle, ok := str(0)
		hay, ok2 := str(1)
		if !ok || !ok2 {
			return nil, ev.fail(id, "LOCATE needs strings")
		}
		runes := []rune(hay)
		from := 0
		if len(args) > 2 {
			n, ok := num(2)
			if !ok {
				return nil, ev.fail(id, "LOCATE start must be a number")
			}
			from = min(max(int(n)-1, 0), len(runes))
		}
		i := strings.Index(string(runes[from:]), needle)
		if i < 0 {
			return float64(0), nil
		}
		return float64(from + len([]rune(string(runes[from:])[:i])) + 1), nil
	case "ABS", "SQRT":
		n, ok := num(0)
		if !ok {
			return nil, ev.fail(id, "%s needs a number", name)
		}
		if name == "ABS" {
			return math.Abs(n), nil
		}
		return math.Sqrt(n), nil
	case "MOD":
		a, ok := num(0)
		b, ok2 := num(1)
		if !ok || !ok2 || b == 0 {
			return nil, ev.fail(id, "MOD needs a non-zero divisor")
		}
		return math.Mod(a, b), nil
	case "SIZE":
		elems, ok := collection(args[0])
		if args[0] != nil && !ok {
			return nil, ev.fail(id, "SIZE needs a collection")
		}
		return float64(len(elems)), nil
	}
	return nil, ev.fail(id, "unknown function")
}

func (ev *evaluator) trim(id oql.NodeID) (any, error) {
	t := ev.tree
	kids := t.Children(id)
	src, err := ev.eval(kids[len(kids)-1])
	if err != nil || src == nil {
		return nil, err
	}
	s, ok := src.(string)
	if !ok {
		return nil, ev.fail(id, "TRIM needs a string")
	}
	cut := " "
	if t.Has(id, oql.FlagTrimChar) {
		c, err := ev.eval(kids[0])
		if err != nil || c == nil {
			return nil, err
		}
		if cut, ok = c.(string); !ok {
			return nil, ev.fail(id, "trim character must be a string")
		}
	}
	switch t.Text(id) {
	case "LEADING":
		return strings.TrimLeft(s, cut), nil
	case "TRAILING":
		return strings.TrimRight(s, cut), nil
	}
	return strings.Trim(s, cut), nil
}

func (ev *evaluator) caseExpr(id oql.NodeID) (any, error) {
	t := ev.tree
	kids := t.Children(id)
	var operand any
	simple := t.Has(id, oql.FlagOperand)
	if simple {
		v, err := ev.eval(kids[0])
		if err != nil {
			return nil, err
		}
		operand, kids = v, kids[1:]
	}
	for _, c := range kids {
		if t.Kind(c) == oql.KindElse {
			return ev.eval(t.Child(c, 0))
		}
		var hit any
		if simple {
			w, err := ev.eval(t.Child(c, 0))
			if err != nil {
				return nil, err
			}
			hit = equal(operand, w)
		} else {
			v, err := ev.evalBool(t.Child(c, 0))
			if err != nil {
				return nil, err
			}
			hit = v
		}
		if hit == true {
			return ev.eval(t.Child(c, 1))
		}
	}
	return nil, nil
}

func not3(v any) any {
	if b, ok := v.(bool); ok {
		return !b
	}
	return nil
}

func and3(a, b any) any {
	if a == false || b == false {
		return false
	}
	if a == nil || b == nil {
		return nil
	}
	return true
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// collection returns the elements of a collection or the values of a map.
func collection(v any) ([]any, bool) {
	if isNull(v) {
		return nil, true
	}
	if elems, ok := sliceValues(v); ok {
		return elems, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	out := make([]any, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out = append(out, iter.Value().Interface())
	}
	return out, true
}

// member implements IN and MEMBER OF under three-valued logic.
func member(x any, items []any) any {
	if isNull(x) {
		return nil
	}
	unknown := false
	for _, it := range items {
		switch equal(x, it) {
		case true:
			return true
		case nil:
			unknown = true
		}
	}
	if unknown {
		return nil
	}
	return false
}

func equal(a, b any) any {
	if isNull(a) || isNull(b) {
		return nil
	}
	v, err := compare("=", a, b)
	if err != nil {
		return false
	}
	return v
}

func compare(op string, a, b any) (any, error) {
	var c int
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return nil, fmt.Errorf("cannot compare string with %T", b)
		}
		c = strings.Compare(x, y)
	case bool:
		y, ok := b.(bool)
		if !ok {
			return nil, fmt.Errorf("cannot compare bool with %T", b)
		}
		if op != "=" && op != "<>" && op != "!=" {
			return nil, fmt.Errorf("cannot order booleans")
		}
		if x != y {
			c = 1
		}
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return nil, fmt.Errorf("cannot compare time with %T", b)
		}
		c = x.Compare(y)
	default:
		if _, ok := toNumber(a); ok {
			n, ok := compareNumbers(a, b)
			if !ok {
				return nil, fmt.Errorf("cannot compare number with %T", b)
			}
			c = n
			break
		}
		if op != "=" && op != "<>" && op != "!=" {
			return nil, fmt.Errorf("cannot order %T", a)
		}
		ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
		if ta != tb || !ta.Comparable() || a != b {
			c = 1
		}
	}
	switch op {
	case "=":
		return c == 0, nil
	case "<>", "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// compareNumbers orders two numbers exactly. Integers beyond 2^53 keep
// their identity, also against floats. NaN does not compare.
func compareNumbers(a, b any) (int, bool) {
	x, ok := exactNumber(a)
	if !ok {
		return 0, false
	}
	y, ok := exactNumber(b)
	if !ok {
		return 0, false
	}
	return x.Cmp(y), true
}

func exactNumber(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case int, int8, int16, int32, int64:
		return new(big.Float).SetInt64(reflect.ValueOf(n).Int()), true
	case uint, uint8, uint16, uint32, uint64:
		return new(big.Float).SetUint64(reflect.ValueOf(n).Uint()), true
	case float32, float64:
		f := reflect.ValueOf(n).Float()
		if math.IsNaN(f) {
			return nil, false
		}
		return new(big.Float).SetFloat64(f), true
	}
	return nil, false
}

// parseNumber returns an int64 for integer literals and a float64 otherwise.
func parseNumber(lit string) (any, error) {
	if !strings.ContainsAny(lit, ".eEdDfF") {
		if i, err := strconv.ParseInt(strings.TrimRight(lit, "lL"), 10, 64); err == nil {
			return i, nil
		}
	}
	trimmed := strings.TrimRight(lit, "lLdDfF")
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", lit, err)
	}
	return n, nil
}
