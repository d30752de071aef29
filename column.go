package mig

// ColumnType identifies one entry of the semantic column type vocabulary.
// The authoritative set is whatever an adapter advertises via ColumnTypes;
// the constants below cover the vocabulary the bundled drivers understand.
type ColumnType string

const (
	TypePrimaryKey ColumnType = "primary_key"
	TypeString     ColumnType = "string"
	TypeText       ColumnType = "text"
	TypeInteger    ColumnType = "integer"
	TypeFloat      ColumnType = "float"
	TypeDecimal    ColumnType = "decimal"
	TypeDateTime   ColumnType = "datetime"
	TypeTimestamp  ColumnType = "timestamp"
	TypeTime       ColumnType = "time"
	TypeDate       ColumnType = "date"
	TypeBinary     ColumnType = "binary"
	TypeBoolean    ColumnType = "boolean"
)

// ColumnOptions holds the recognized per-column options plus any
// adapter-specific extras, which are carried opaquely in Extra.
type ColumnOptions struct {
	Limit     int    // length/size (VARCHAR length etc.); 0 means dialect default
	Default   any    // literal default value; nil means no default clause
	Null      bool   // nullable flag; columns are NOT NULL unless set
	Precision int    // numeric precision (decimal)
	Scale     int    // numeric scale (decimal)
	After     string // ordering hint; honored only by dialects with column ordering
	Identity  bool   // auto-increment flag
	Extra     map[string]any
}

// Column describes a single column to add or change. It has value semantics:
// no identity beyond its attributes, owned by the table's pending queue once
// staged.
type Column struct {
	// Name may be empty when the column is used as a change target; ChangeColumn
	// fills it in from the original column name before it reaches the adapter.
	Name    string
	Type    ColumnType
	Options ColumnOptions
}

// NewColumn builds a Column from primitives. opts may be nil.
func NewColumn(name string, typ ColumnType, opts *ColumnOptions) *Column {
	col := &Column{Name: name, Type: typ}
	if opts != nil {
		col.Options = *opts
	}
	return col
}
