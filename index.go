package mig

// IndexOptions holds the recognized per-index options.
type IndexOptions struct {
	Unique bool
	Name   string // explicit index name; empty means the adapter's conventional default
}

// Index describes a single index over an ordered, non-empty list of column
// names. Same value semantics and staging lifecycle as Column.
type Index struct {
	Columns []string
	Options IndexOptions
}

// NewIndex builds an Index from primitives. opts may be nil.
func NewIndex(columns []string, opts *IndexOptions) *Index {
	idx := &Index{Columns: columns}
	if opts != nil {
		idx.Options = *opts
	}
	return idx
}

// normalizeIndex resolves the accepted column argument shapes once at the API
// boundary: a single column name, a list of names, or a pre-built *Index
// (used as-is, ignoring opts).
func normalizeIndex(columns any, opts *IndexOptions) (*Index, error) {
	switch v := columns.(type) {
	case *Index:
		if len(v.Columns) == 0 {
			return nil, ErrIndexColumnsEmpty
		}
		return v, nil
	case string:
		if v == "" {
			return nil, ErrIndexColumnsEmpty
		}
		return NewIndex([]string{v}, opts), nil
	case []string:
		if len(v) == 0 {
			return nil, ErrIndexColumnsEmpty
		}
		return NewIndex(v, opts), nil
	default:
		return nil, ErrInvalidIndexColumns
	}
}
