package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlekbai/accessql/internal/schema"
)

const principalRule = "GRANT READ ACCESS TO T t WHERE t.name = CURRENT_PRINCIPAL"

func testMapping(t *testing.T) *schema.Cache {
	t.Helper()
	c, err := schema.NewCacheFromEntities([]*schema.EntityDef{
		{Name: "T", Properties: []schema.PropertyDef{
			{Name: "id", Kind: schema.PropertyBasic, Type: "number"},
			{Name: "name", Kind: schema.PropertyBasic, Type: "string"},
			{Name: "role", Kind: schema.PropertyBasic, Type: "string"},
			{Name: "parent", Kind: schema.PropertyReference, Target: "T"},
			{Name: "children", Kind: schema.PropertyCollection, Target: "T"},
			{Name: "related", Kind: schema.PropertyMap, Target: "T", KeyTarget: "T"},
			{Name: "labels", Kind: schema.PropertyMap, Type: "string", KeyType: "string"},
		}},
		{Name: "Animal", Properties: []schema.PropertyDef{
			{Name: "name", Kind: schema.PropertyBasic, Type: "string"},
			{Name: "owner", Kind: schema.PropertyBasic, Type: "string"},
		}},
		{Name: "Dog", Extends: "Animal"},
		{Name: "Puppy", Extends: "Dog"},
		{Name: "Cat", Extends: "Animal"},
		{Name: "Open", Properties: []schema.PropertyDef{
			{Name: "name", Kind: schema.PropertyBasic, Type: "string"},
		}},
	})
	require.NoError(t, err)
	return c
}

func compileRules(t *testing.T, m Mapping, texts ...string) []*AccessRule {
	t.Helper()
	c := NewCompiler(m)
	rules := make([]*AccessRule, len(texts))
	for i, text := range texts {
		r, err := c.Compile(RuleSource{Text: text})
		require.NoError(t, err, text)
		rules[i] = r
	}
	return rules
}

func newTestFilter(t *testing.T, texts ...string) *Filter {
	t.Helper()
	m := testMapping(t)
	return NewFilter(m, compileRules(t, m, texts...))
}

func junit() StaticContext {
	return StaticContext{Principal: "JUnit", Roles: []string{"admin", "user"}}
}

// emptyContext resolves no placeholder at all.
type emptyContext struct{}

func (emptyContext) AliasNames() []string       { return nil }
func (emptyContext) ValueOf(string) (any, bool) { return nil, false }

func schemaWithPets(t *testing.T) (*schema.Cache, error) {
	t.Helper()
	return schema.NewCacheFromEntities([]*schema.EntityDef{
		{Name: "Animal", Properties: []schema.PropertyDef{
			{Name: "name", Kind: schema.PropertyBasic, Type: "string"},
		}},
		{Name: "Dog", Extends: "Animal"},
		{Name: "Owner", Properties: []schema.PropertyDef{
			{Name: "pet", Kind: schema.PropertyReference, Target: "Animal"},
		}},
	})
}
