package oql

// ValueKind classifies what a function produces.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueTemporal
)

// FuncDef describes a call-style scalar function.
type FuncDef struct {
	Name     string
	Args     int // required arguments
	Variadic int // optional trailing arguments; -1 for unbounded
	Returns  ValueKind
}

// Functions is the registry of scalar functions. Aggregates, TRIM, CASE,
// COALESCE, NULLIF and the map accessors have dedicated nodes and are not
// listed here.
var Functions = map[string]*FuncDef{
	// String functions
	"CONCAT":    {Name: "CONCAT", Args: 2, Variadic: -1, Returns: ValueString},
	"SUBSTRING": {Name: "SUBSTRING", Args: 2, Variadic: 1, Returns: ValueString},
	"LOWER":     {Name: "LOWER", Args: 1, Returns: ValueString},
	"UPPER":     {Name: "UPPER", Args: 1, Returns: ValueString},

	// Numeric functions
	"LENGTH": {Name: "LENGTH", Args: 1, Returns: ValueNumber},
	"LOCATE": {Name: "LOCATE", Args: 2, Variadic: 1, Returns: ValueNumber},
	"ABS":    {Name: "ABS", Args: 1, Returns: ValueNumber},
	"SQRT":   {Name: "SQRT", Args: 1, Returns: ValueNumber},
	"MOD":    {Name: "MOD", Args: 2, Returns: ValueNumber},
	"SIZE":   {Name: "SIZE", Args: 1, Returns: ValueNumber},
	"INDEX":  {Name: "INDEX", Args: 1, Returns: ValueNumber},

	// Date functions (written without parentheses)
	"CURRENT_DATE":      {Name: "CURRENT_DATE", Returns: ValueTemporal},
	"CURRENT_TIME":      {Name: "CURRENT_TIME", Returns: ValueTemporal},
	"CURRENT_TIMESTAMP": {Name: "CURRENT_TIMESTAMP", Returns: ValueTemporal},
}

// GetFunction returns the FuncDef for an upper-case name.
func GetFunction(name string) (*FuncDef, bool) {
	fn, ok := Functions[name]
	return fn, ok
}

// maxArgs returns the upper argument bound, or -1 when unbounded.
func (f *FuncDef) maxArgs() int {
	if f.Variadic < 0 {
		return -1
	}
	return f.Args + f.Variadic
}
