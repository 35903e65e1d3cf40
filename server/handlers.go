package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/findy-network/findy-wallet/agent/registry"
	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/agent/wallet/remote"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const (
	maxBodySize  = 1 << 20
	maxPageLimit = 1000
)

// errBadRequest is the base of the request validation errors.
var errBadRequest = errors.New("bad request")

func badRequest(format string, a ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, a...))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, api.ErrInvalidFilterAttribute):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, api.ErrItemNotFound),
		errors.Is(err, api.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrItemAlreadyExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		glog.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		glog.V(3).Infof("%s %s: %d %v", r.Method, r.URL.Path, status, err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningln("write response:", err)
	}
}

func readJSON(r *http.Request, v any) error {
	d := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := d.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if i := strings.IndexByte(h, ' '); i > 0 {
		return strings.TrimSpace(h[i+1:])
	}
	return h
}

func (s *Service) auth(w http.ResponseWriter, r *http.Request) {
	var ar remote.AuthRequest
	if err := readJSON(r, &ar); err != nil {
		errorResponse(w, r, err)
		return
	}
	tok, err := s.Authenticate(r.Context(), ar.Username, ar.Password)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	glog.V(2).Infoln("token issued for", ar.Username)
	writeJSON(w, http.StatusOK, remote.AuthResponse{Token: tok})
}

func (s *Service) ping(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.tokens.tenant(bearer(r))
	if !ok {
		errorResponse(w, r, fmt.Errorf("%w: invalid token", api.ErrAuthenticationFailed))
		return
	}
	glog.V(5).Infoln("ping from", tenant)
	writeJSON(w, http.StatusOK, struct{}{})
}

type tenantFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request, h *registry.Handle) error

// tenant authorizes the record call. The token must belong to the virtual
// wallet of the path.
func (s *Service) tenant(fn tenantFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := s.tokens.tenant(bearer(r))
		if !ok {
			errorResponse(w, r, fmt.Errorf("%w: invalid token", api.ErrAuthenticationFailed))
			return
		}
		if vw := r.PathValue("vw"); vw != tenant {
			glog.Warningf("tenant %s tried to access %s", tenant, vw)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if glog.V(7) {
			glog.Infof("%s %s (%s)", r.Method, r.URL.Path, tenant)
		}
		h, err := s.handle(r.Context(), tenant)
		if err == nil {
			err = fn(r.Context(), w, r, h)
		}
		if err != nil {
			errorResponse(w, r, err)
		}
	}
}

func (s *Service) set(ctx context.Context, w http.ResponseWriter, r *http.Request, h *registry.Handle) (err error) {
	defer err2.Handle(&err)

	var rec api.Record
	try.To(readJSON(r, &rec))
	if rec.Type == "" || rec.ID == "" {
		return badRequest("type and id are needed")
	}
	if r.URL.Query().Get("strict") == "true" {
		try.To(h.Add(ctx, rec))
	} else {
		try.To(h.Put(ctx, rec))
	}
	writeJSON(w, http.StatusCreated, rec)
	return nil
}

func (s *Service) get(ctx context.Context, w http.ResponseWriter, r *http.Request, h *registry.Handle) (err error) {
	defer err2.Handle(&err)

	rec := try.To1(h.Get(ctx, r.PathValue("type"), r.PathValue("id")))
	writeJSON(w, http.StatusOK, rec)
	return nil
}

func (s *Service) remove(ctx context.Context, w http.ResponseWriter, r *http.Request, h *registry.Handle) (err error) {
	defer err2.Handle(&err)

	try.To(h.Delete(ctx, r.PathValue("type"), r.PathValue("id")))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Service) update(ctx context.Context, w http.ResponseWriter, r *http.Request, h *registry.Handle) (err error) {
	defer err2.Handle(&err)

	typ, id := r.PathValue("type"), r.PathValue("id")
	var u remote.UpdateRequest
	try.To(readJSON(r, &u))
	switch u.Op {
	case remote.OpValue:
		try.To(h.UpdateValue(ctx, typ, id, u.Value))
	case remote.OpExpiry:
		try.To(h.SetExpiry(ctx, typ, id, u.ExpiresAt))
	case remote.OpAddTags:
		try.To(h.AddTags(ctx, typ, id, u.Tags))
	case remote.OpUpdateTags:
		try.To(h.UpdateTags(ctx, typ, id, u.Tags))
	case remote.OpDeleteTags:
		try.To(h.DeleteTags(ctx, typ, id, u.Names...))
	default:
		return badRequest("unknown op %q", u.Op)
	}
	writeJSON(w, http.StatusOK, try.To1(h.Get(ctx, typ, id)))
	return nil
}

// list serves one page. GET takes the paging in the query, POST in the
// body together with the filter. Records before the cursor are skipped by
// reading them.
func (s *Service) list(ctx context.Context, w http.ResponseWriter, r *http.Request, h *registry.Handle) (err error) {
	defer err2.Handle(&err)

	var lr remote.ListRequest
	if r.Method == http.MethodPost {
		try.To(readJSON(r, &lr))
	} else {
		q := r.URL.Query()
		lr.Prefix, lr.After = q.Get("prefix"), q.Get("after")
		if l := q.Get("limit"); l != "" {
			lr.Limit, err = strconv.Atoi(l)
			if err != nil {
				return badRequest("limit: %v", err)
			}
		}
	}
	if lr.Limit <= 0 {
		lr.Limit = api.DefaultPageSize
	}
	lr.Limit = min(lr.Limit, maxPageLimit)

	it := try.To1(h.List(ctx, r.PathValue("type"),
		api.ListOptions{IDPrefix: lr.Prefix, Filter: lr.Filter}))
	defer it.Close()

	resp := remote.ListResponse{Records: make([]api.Record, 0, min(lr.Limit, 16))}
	for len(resp.Records) < lr.Limit && it.Next(ctx) {
		rec := it.Record()
		if lr.After != "" && rec.ID <= lr.After {
			continue
		}
		resp.Records = append(resp.Records, rec)
	}
	try.To(it.Err())
	resp.Next = api.NextCursor(resp.Records, lr.Limit)
	writeJSON(w, http.StatusOK, resp)
	return nil
}
