package api

import (
	"fmt"
	"sort"
	"strings"
)

// Clause is a single filter condition. Exact clauses match when the tag has
// exactly the Value, otherwise the tag only needs to be present.
type Clause struct {
	Tag   string `json:"tag"`
	Value string `json:"value,omitempty"`
	Exact bool   `json:"exact,omitempty"`
}

// Has returns a presence clause for the tag.
func Has(tag string) Clause {
	return Clause{Tag: tag}
}

// Eq returns an exact match clause for the tag.
func Eq(tag, value string) Clause {
	return Clause{Tag: tag, Value: value, Exact: true}
}

// Match tells if the clause holds for the tags.
func (c Clause) Match(tags Tags) bool {
	v, ok := tags[c.Tag]
	if !ok {
		return false
	}
	return !c.Exact || v == c.Value
}

func (c Clause) String() string {
	if c.Exact {
		return fmt.Sprintf("%s==%q", c.Tag, c.Value)
	}
	return "has(" + c.Tag + ")"
}

// Filter is a conjunction of clauses. An empty filter matches every record.
// There is no disjunction or negation.
type Filter []Clause

// Match returns true when every clause holds for the tags.
func (f Filter) Match(tags Tags) bool {
	for _, c := range f {
		if !c.Match(tags) {
			return false
		}
	}
	return true
}

// And returns a new filter which has the clauses of both filters.
func (f Filter) And(o ...Clause) Filter {
	n := make(Filter, 0, len(f)+len(o))
	n = append(n, f...)
	return append(n, o...)
}

// Normalize returns the clauses sorted and deduplicated. It doesn't change
// the meaning of the filter, but makes filters comparable.
func (f Filter) Normalize() Filter {
	if len(f) == 0 {
		return nil
	}
	n := append(f[:0:0], f...)
	sort.Slice(n, func(i, j int) bool {
		if n[i].Tag != n[j].Tag {
			return n[i].Tag < n[j].Tag
		}
		if n[i].Exact != n[j].Exact {
			return !n[i].Exact
		}
		return n[i].Value < n[j].Value
	})
	out := n[:1]
	for _, c := range n[1:] {
		if c != out[len(out)-1] {
			out = append(out, c)
		}
	}
	return out
}

func (f Filter) String() string {
	if len(f) == 0 {
		return "*"
	}
	s := make([]string, len(f))
	for i, c := range f {
		s[i] = c.String()
	}
	return strings.Join(s, " AND ")
}

// ListOptions narrow List and Count calls.
type ListOptions struct {
	IDPrefix string
	Filter   Filter
}

// Match tells if the record is selected by the options. Record type isn't
// checked.
func (o ListOptions) Match(r Record) bool {
	return strings.HasPrefix(r.ID, o.IDPrefix) && o.Filter.Match(r.Tags)
}
