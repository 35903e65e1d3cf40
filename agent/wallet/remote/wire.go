package remote

import (
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
)

// The JSON bodies of the remote wallet service. Records go over the wire as
// api.Record: value in base64 and expiresAt in RFC 3339.

// AuthRequest is the body of the token request.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse carries the issued token.
type AuthResponse struct {
	Token string `json:"token"`
}

// Update operations of the record PUT.
const (
	OpValue      = "value"
	OpExpiry     = "expiry"
	OpAddTags    = "add_tags"
	OpUpdateTags = "update_tags"
	OpDeleteTags = "delete_tags"
)

// UpdateRequest is the body of the record PUT. Op selects the fields which
// are used.
type UpdateRequest struct {
	Op        string     `json:"op"`
	Value     []byte     `json:"value,omitempty"`
	Tags      api.Tags   `json:"tags,omitempty"`
	Names     []string   `json:"names,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Apply runs the update on the record. It's used by the service side.
func (u UpdateRequest) Apply(r *api.Record) bool {
	switch u.Op {
	case OpValue:
		r.Value = u.Value
	case OpExpiry:
		r.ExpiresAt = u.ExpiresAt
	case OpAddTags:
		if r.Tags == nil {
			r.Tags = make(api.Tags, len(u.Tags))
		}
		for k, v := range u.Tags {
			r.Tags[k] = v
		}
	case OpUpdateTags:
		r.Tags = u.Tags.Clone()
	case OpDeleteTags:
		for _, n := range u.Names {
			delete(r.Tags, n)
		}
	default:
		return false
	}
	return true
}

// ListRequest is the body of the filtered list POST.
type ListRequest struct {
	Prefix string     `json:"prefix,omitempty"`
	Filter api.Filter `json:"filter,omitempty"`
	After  string     `json:"after,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

// ListResponse is one page of records. Next is the cursor of the following
// page, empty on the last one.
type ListResponse struct {
	Records []api.Record `json:"records"`
	Next    string       `json:"next,omitempty"`
}
