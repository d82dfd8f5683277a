package access

import (
	"fmt"
	"strings"

	"github.com/atlekbai/accessql/internal/oql"
)

// AccessType is a set of operations a rule grants.
type AccessType uint8

const (
	AccessCreate AccessType = 1 << iota
	AccessRead
	AccessUpdate
	AccessDelete

	AccessAll = AccessCreate | AccessRead | AccessUpdate | AccessDelete
)

var accessNames = []struct {
	bit  AccessType
	name string
	flag oql.Flags
}{
	{AccessCreate, "CREATE", oql.FlagCreate},
	{AccessRead, "READ", oql.FlagRead},
	{AccessUpdate, "UPDATE", oql.FlagUpdate},
	{AccessDelete, "DELETE", oql.FlagDelete},
}

// Has reports whether every operation in other is in a.
func (a AccessType) Has(other AccessType) bool {
	return other != 0 && a&other == other
}

func (a AccessType) String() string {
	var parts []string
	for _, n := range accessNames {
		if a&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// ParseAccessType parses "READ", "read|update" or "ALL".
func ParseAccessType(s string) (AccessType, error) {
	var a AccessType
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
		word := strings.ToUpper(part)
		if word == "ALL" {
			a |= AccessAll
			continue
		}
		found := false
		for _, n := range accessNames {
			if n.name == word {
				a |= n.bit
				found = true
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown access type %q", part)
		}
	}
	if a == 0 {
		return 0, fmt.Errorf("empty access type %q", s)
	}
	return a, nil
}

// accessFromFlags maps rule head keywords to an access set; no keywords
// means every access type.
func accessFromFlags(f oql.Flags) AccessType {
	var a AccessType
	for _, n := range accessNames {
		if f&n.flag != 0 {
			a |= n.bit
		}
	}
	if a == 0 {
		return AccessAll
	}
	return a
}
