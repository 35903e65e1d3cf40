/*
Package filter builds wallet list filters from proof requests. The filters
select credential records by their tags. Every credential record is tagged
with a marker tag per attribute, the attribute values, and the identifiers of
its schema, credential definition and issuer (see CredentialTags).

Only attribute presence and exact values are pushed to the storage. Range
predicates are checked after the records are read with
PredicateInfo.Satisfied.
*/
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Tag names of the credential identifiers.
const (
	TagSchemaID        = "schema_id"
	TagSchemaIssuerDID = "schema_issuer_did"
	TagSchemaName      = "schema_name"
	TagSchemaVersion   = "schema_version"
	TagIssuerDID       = "issuer_did"
	TagCredDefID       = "cred_def_id"
)

// Schema is the credential schema the filters are built against.
type Schema struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Version string   `json:"version,omitempty"`
	Attrs   []string `json:"attrNames,omitempty"`
}

// Has tells if the schema has the attribute. Names are compared normalized.
func (s Schema) Has(name string) bool {
	n := Normalize(name)
	for _, a := range s.Attrs {
		if Normalize(a) == n {
			return true
		}
	}
	return false
}

// Restriction is one alternative of the requirements of a referent. All the
// set fields must match.
type Restriction struct {
	SchemaID        string `json:"schema_id,omitempty"`
	SchemaIssuerDID string `json:"schema_issuer_did,omitempty"`
	SchemaName      string `json:"schema_name,omitempty"`
	SchemaVersion   string `json:"schema_version,omitempty"`
	IssuerDID       string `json:"issuer_did,omitempty"`
	CredDefID       string `json:"cred_def_id,omitempty"`

	// AttrValues are the required attribute values by attribute name.
	AttrValues map[string]string `json:"attr_values,omitempty"`
}

// AttrInfo is a requested attribute. Either Name or Names is used.
type AttrInfo struct {
	Name         string        `json:"name,omitempty"`
	Names        []string      `json:"names,omitempty"`
	Restrictions []Restriction `json:"restrictions,omitempty"`
}

func (a AttrInfo) names() []string {
	if a.Name != "" {
		return append([]string{a.Name}, a.Names...)
	}
	return a.Names
}

// PredicateInfo is a requested predicate, e.g. age >= 18.
type PredicateInfo struct {
	Name         string        `json:"name"`
	PType        string        `json:"p_type"`
	PValue       int           `json:"p_value"`
	Restrictions []Restriction `json:"restrictions,omitempty"`
}

// ProofRequest is the part of a proof request the filters are built from.
type ProofRequest struct {
	Name                string                   `json:"name,omitempty"`
	Version             string                   `json:"version,omitempty"`
	Nonce               string                   `json:"nonce,omitempty"`
	RequestedAttributes map[string]AttrInfo      `json:"requested_attributes,omitempty"`
	RequestedPredicates map[string]PredicateInfo `json:"requested_predicates,omitempty"`
}

// Normalize returns the attribute name in lower case without spaces.
func Normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ""))
}

// MarkerTag is the tag which every credential having the attribute has.
func MarkerTag(name string) string {
	return "attr::" + Normalize(name) + "::marker"
}

// ValueTag is the tag which has the attribute's raw value.
func ValueTag(name string) string {
	return "attr::" + Normalize(name) + "::value"
}

// CredentialTags returns the tags of a credential record. ids has the
// identifier tags, e.g. TagSchemaID, and values the attribute values.
func CredentialTags(ids map[string]string, values map[string]string) api.Tags {
	t := make(api.Tags, len(ids)+2*len(values))
	for k, v := range ids {
		if v != "" {
			t[k] = v
		}
	}
	for name, v := range values {
		t[MarkerTag(name)] = "1"
		t[ValueTag(name)] = v
	}
	return t
}

func checkAttr(schema Schema, name string) error {
	if Normalize(name) == "" || !schema.Has(name) {
		return fmt.Errorf("%w: %q not in schema %s",
			api.ErrInvalidFilterAttribute, name, schema.ID)
	}
	return nil
}

func (r Restriction) clauses(schema Schema) (f api.Filter, err error) {
	defer err2.Handle(&err)

	for _, c := range []struct{ tag, value string }{
		{TagSchemaID, r.SchemaID},
		{TagSchemaIssuerDID, r.SchemaIssuerDID},
		{TagSchemaName, r.SchemaName},
		{TagSchemaVersion, r.SchemaVersion},
		{TagIssuerDID, r.IssuerDID},
		{TagCredDefID, r.CredDefID},
	} {
		if c.value != "" {
			f = append(f, api.Eq(c.tag, c.value))
		}
	}
	for name, v := range r.AttrValues {
		try.To(checkAttr(schema, name))
		f = append(f, api.Eq(ValueTag(name), v))
	}
	return f, nil
}

func markers(schema Schema, names []string) (f api.Filter, err error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: attribute name missing", api.ErrInvalidFilterAttribute)
	}
	for _, n := range names {
		if err := checkAttr(schema, n); err != nil {
			return nil, err
		}
		f = append(f, api.Has(MarkerTag(n)))
	}
	return f, nil
}

type referent struct {
	names        []string
	restrictions []Restriction
}

func referents(req ProofRequest) map[string]referent {
	m := make(map[string]referent, len(req.RequestedAttributes)+len(req.RequestedPredicates))
	for id, a := range req.RequestedAttributes {
		m[id] = referent{names: a.names(), restrictions: a.Restrictions}
	}
	for id, p := range req.RequestedPredicates {
		m[id] = referent{names: []string{p.Name}, restrictions: p.Restrictions}
	}
	return m
}

func sortedKeys(m map[string]referent) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build returns one conjunctive filter for the whole proof request: presence
// of every requested attribute and predicate name, and the clauses of the
// referents which have exactly one restriction. Referents with many
// restrictions need ForReferent, because filters have no disjunction.
func Build(req ProofRequest, schema Schema) (f api.Filter, err error) {
	defer err2.Handle(&err, "build filter")

	refs := referents(req)
	for _, id := range sortedKeys(refs) {
		r := refs[id]
		f = append(f, try.To1(markers(schema, r.names))...)
		if len(r.restrictions) == 1 {
			f = append(f, try.To1(r.restrictions[0].clauses(schema))...)
		}
	}
	return f.Normalize(), nil
}

// ForReferent returns a filter per restriction alternative of the referent.
// The caller lists with each and combines the results.
func ForReferent(req ProofRequest, schema Schema, id string) (fs []api.Filter, err error) {
	defer err2.Handle(&err, "filter for %s", id)

	r, ok := referents(req)[id]
	if !ok {
		return nil, fmt.Errorf("unknown referent %q", id)
	}
	base := try.To1(markers(schema, r.names))
	if len(r.restrictions) == 0 {
		return []api.Filter{base.Normalize()}, nil
	}
	fs = make([]api.Filter, 0, len(r.restrictions))
	for _, rs := range r.restrictions {
		fs = append(fs, base.And(try.To1(rs.clauses(schema))...).Normalize())
	}
	return fs, nil
}

// Satisfied evaluates the predicate against the attribute value of the
// credential tags.
func (p PredicateInfo) Satisfied(tags api.Tags) (ok bool, err error) {
	raw, found := tags[ValueTag(p.Name)]
	if !found {
		return false, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("predicate %s: value %q is not an integer", p.Name, raw)
	}
	switch p.PType {
	case ">=":
		return v >= p.PValue, nil
	case ">":
		return v > p.PValue, nil
	case "<=":
		return v <= p.PValue, nil
	case "<":
		return v < p.PValue, nil
	}
	return false, fmt.Errorf("predicate %s: unknown type %q", p.Name, p.PType)
}
