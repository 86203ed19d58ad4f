package store

import (
	"strings"

	"gorm.io/gorm"
)

// Filter accumulates AND-ed WHERE conditions. Every condition carries its
// own positional placeholders; values are never interpolated.
type Filter struct {
	conds []string
	args  []any
}

// Add appends a condition such as "player_id = ?" bound to args.
func (f *Filter) Add(cond string, args ...any) *Filter {
	f.conds = append(f.conds, cond)
	f.args = append(f.args, args...)
	return f
}

func (f *Filter) Empty() bool {
	return len(f.conds) == 0
}

// Build returns the combined condition and its bound values.
func (f *Filter) Build() (string, []any) {
	if f.Empty() {
		return "", nil
	}
	parts := make([]string, len(f.conds))
	for i, c := range f.conds {
		parts[i] = "(" + c + ")"
	}
	return strings.Join(parts, " AND "), f.args
}

// Apply adds the filter to a query.
func (f *Filter) Apply(db *gorm.DB) *gorm.DB {
	if f.Empty() {
		return db
	}
	cond, args := f.Build()
	return db.Where(cond, args...)
}

// Update accumulates column assignments. Only columns that were Set are
// written; everything else is left untouched.
type Update struct {
	columns []string
	values  map[string]any
}

// Set assigns value to column. Setting the same column twice keeps the
// last value.
func (u *Update) Set(column string, value any) *Update {
	if u.values == nil {
		u.values = make(map[string]any)
	}
	if _, ok := u.values[column]; !ok {
		u.columns = append(u.columns, column)
	}
	u.values[column] = value
	return u
}

func (u *Update) Empty() bool {
	return len(u.columns) == 0
}

// Columns lists the assigned columns in the order they were first set.
func (u *Update) Columns() []string {
	return append([]string(nil), u.columns...)
}

// Build returns the assignments for gorm's Updates.
func (u *Update) Build() map[string]any {
	out := make(map[string]any, len(u.values))
	for k, v := range u.values {
		out[k] = v
	}
	return out
}
