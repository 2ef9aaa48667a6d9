// Package query models observation predicates as a small boolean AST and
// lowers them to PostgreSQL expressions over the observations table. Field
// predicates project typed values out of the JSONB properties column.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	dateLayout     = "YYYY-MM-DD"
	dateTimeLayout = "YYYY-MM-DD HH24:MI"
)

// Node is a boolean predicate over observation rows.
type Node interface {
	lower(w *writer)
}

// Lower renders the node into a SQL expression with positional arguments
// starting at $argOffset+1.
func Lower(n Node, argOffset int) (string, []interface{}) {
	w := &writer{offset: argOffset}
	n.lower(w)
	return w.sb.String(), w.args
}

type writer struct {
	sb     strings.Builder
	args   []interface{}
	offset int
}

func (w *writer) write(s string) {
	w.sb.WriteString(s)
}

func (w *writer) arg(v interface{}) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", w.offset+len(w.args))
}

// And matches rows satisfying every child. An empty And matches everything.
type And []Node

func (n And) lower(w *writer) {
	if len(n) == 0 {
		w.write("TRUE")
		return
	}
	w.write("(")
	for i, child := range n {
		if i > 0 {
			w.write(" AND ")
		}
		child.lower(w)
	}
	w.write(")")
}

// Or matches rows satisfying at least one child. An empty Or matches nothing.
type Or []Node

func (n Or) lower(w *writer) {
	if len(n) == 0 {
		w.write("FALSE")
		return
	}
	w.write("(")
	for i, child := range n {
		if i > 0 {
			w.write(" OR ")
		}
		child.lower(w)
	}
	w.write(")")
}

// Nothing matches no rows.
type Nothing struct{}

func (Nothing) lower(w *writer) {
	w.write("FALSE")
}

// ProjectIs scopes rows to one project.
type ProjectIs struct {
	ID string
}

func (n ProjectIs) lower(w *writer) {
	w.write("(project_id = " + w.arg(n.ID) + ")")
}

// CategoryIs scopes rows to one category.
type CategoryIs struct {
	ID string
}

func (n CategoryIs) lower(w *writer) {
	w.write("(category_id = " + w.arg(n.ID) + ")")
}

// StatusIn matches rows whose status is one of the given values.
type StatusIn []string

func (n StatusIn) lower(w *writer) {
	if len(n) == 0 {
		w.write("FALSE")
		return
	}
	w.write("(status = ANY(" + w.arg(pq.Array([]string(n))) + "))")
}

// CreatorIs matches rows created by the given user.
type CreatorIs struct {
	ID string
}

func (n CreatorIs) lower(w *writer) {
	w.write("(creator_id = " + w.arg(n.ID) + ")")
}

// CreatedBetween bounds created_at; either side is optional.
type CreatedBetween struct {
	Min *time.Time
	Max *time.Time
}

func (n CreatedBetween) lower(w *writer) {
	var parts []string
	if n.Min != nil {
		parts = append(parts, "created_at >= "+w.arg(*n.Min))
	}
	if n.Max != nil {
		parts = append(parts, "created_at <= "+w.arg(*n.Max))
	}
	if len(parts) == 0 {
		w.write("TRUE")
		return
	}
	w.write("(" + strings.Join(parts, " AND ") + ")")
}

// TextContains matches rows whose property holds the term as a
// case-insensitive substring.
type TextContains struct {
	Key  string
	Term string
}

func (n TextContains) lower(w *writer) {
	w.write("((properties->>" + w.arg(n.Key) + ") ILIKE " + w.arg("%"+n.Term+"%") + ")")
}

// NumberRange bounds a numeric property; either side is optional.
type NumberRange struct {
	Key string
	Min *float64
	Max *float64
}

func (n NumberRange) lower(w *writer) {
	cast := "(properties->>" + w.arg(n.Key) + ")::double precision"
	var parts []string
	if n.Min != nil {
		parts = append(parts, cast+" >= "+w.arg(*n.Min))
	}
	if n.Max != nil {
		parts = append(parts, cast+" <= "+w.arg(*n.Max))
	}
	if len(parts) == 0 {
		w.write("TRUE")
		return
	}
	w.write("(" + strings.Join(parts, " AND ") + ")")
}

// DateRange bounds a date or datetime property given as an ISO string.
type DateRange struct {
	Key      string
	WithTime bool
	Min      *string
	Max      *string
}

func (n DateRange) lower(w *writer) {
	layout := dateLayout
	if n.WithTime {
		layout = dateTimeLayout
	}
	cast := "to_timestamp(properties->>" + w.arg(n.Key) + ", '" + layout + "')"
	var parts []string
	if n.Min != nil {
		parts = append(parts, cast+" >= to_timestamp("+w.arg(*n.Min)+", '"+layout+"')")
	}
	if n.Max != nil {
		parts = append(parts, cast+" <= to_timestamp("+w.arg(*n.Max)+", '"+layout+"')")
	}
	if len(parts) == 0 {
		w.write("TRUE")
		return
	}
	w.write("(" + strings.Join(parts, " AND ") + ")")
}

// TimeRange bounds an HH:MM property. Zero-padded times order lexically, so
// plain string comparison suffices. When min > max the window wraps around
// midnight and the halves combine disjunctively.
type TimeRange struct {
	Key string
	Min *string
	Max *string
}

func (n TimeRange) lower(w *writer) {
	prop := "(properties->>" + w.arg(n.Key) + ")"
	switch {
	case n.Min != nil && n.Max != nil && *n.Min > *n.Max:
		w.write("(" + prop + " >= " + w.arg(*n.Min) + " OR " + prop + " <= " + w.arg(*n.Max) + ")")
	case n.Min != nil && n.Max != nil:
		w.write("(" + prop + " >= " + w.arg(*n.Min) + " AND " + prop + " <= " + w.arg(*n.Max) + ")")
	case n.Min != nil:
		w.write("(" + prop + " >= " + w.arg(*n.Min) + ")")
	case n.Max != nil:
		w.write("(" + prop + " <= " + w.arg(*n.Max) + ")")
	default:
		w.write("TRUE")
	}
}

// SingleLookupIn matches rows whose lookup property is one of the given ids.
type SingleLookupIn struct {
	Key string
	IDs []int64
}

func (n SingleLookupIn) lower(w *writer) {
	if len(n.IDs) == 0 {
		w.write("FALSE")
		return
	}
	w.write("((properties->>" + w.arg(n.Key) + ")::int = ANY(" + w.arg(pq.Array(n.IDs)) + "))")
}

// MultipleLookupOverlaps matches rows whose stored id array intersects the
// given ids.
type MultipleLookupOverlaps struct {
	Key string
	IDs []int64
}

func (n MultipleLookupOverlaps) lower(w *writer) {
	if len(n.IDs) == 0 {
		w.write("FALSE")
		return
	}
	w.write("(ARRAY(SELECT jsonb_array_elements_text(properties->" + w.arg(n.Key) + "))::int[] && " + w.arg(pq.Array(n.IDs)) + ")")
}

// SearchTokens requires every token to appear case-insensitively in the
// pre-computed search index.
type SearchTokens []string

func (n SearchTokens) lower(w *writer) {
	if len(n) == 0 {
		w.write("TRUE")
		return
	}
	w.write("(")
	for i, token := range n {
		if i > 0 {
			w.write(" AND ")
		}
		w.write("search_index ILIKE " + w.arg("%"+token+"%"))
	}
	w.write(")")
}
