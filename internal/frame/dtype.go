package frame

// DType is the engine's closed set of column types.
type DType uint8

const (
	Invalid DType = iota
	String
	Float32
	Float64
	Int32
	Int64
	Bool
	Date
	Datetime
)

var dtypeNames = [...]string{
	Invalid:  "invalid",
	String:   "string",
	Float32:  "float32",
	Float64:  "float64",
	Int32:    "int32",
	Int64:    "int64",
	Bool:     "bool",
	Date:     "date",
	Datetime: "datetime",
}

func (d DType) String() string {
	if int(d) < len(dtypeNames) {
		return dtypeNames[d]
	}
	return dtypeNames[Invalid]
}

// Valid reports whether d is one of the concrete types.
func (d DType) Valid() bool { return d > Invalid && d <= Datetime }

func (d DType) IsFloat() bool    { return d == Float32 || d == Float64 }
func (d DType) IsInteger() bool  { return d == Int32 || d == Int64 }
func (d DType) IsNumeric() bool  { return d.IsFloat() || d.IsInteger() }
func (d DType) IsTemporal() bool { return d == Date || d == Datetime }

// ParseDType maps a type name ("float64", "date", ...) to its DType.
func ParseDType(s string) (DType, bool) {
	for i, n := range dtypeNames {
		if DType(i) != Invalid && n == s {
			return DType(i), true
		}
	}
	return Invalid, false
}
