package remote

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/findy-network/findy-wallet/agent/storage/api"
)

// fakeService is a minimal in-memory wallet service. It counts the auth
// calls and can reject the next record call with 401.
type fakeService struct {
	l sync.Mutex

	token      string
	auths      int
	pings      int
	lastAuth   string
	lastHeader string
	rejectNext bool
	fail5xx    bool

	records map[string]map[string]api.Record // vw/type -> id -> record
}

func newFakeService() *fakeService {
	return &fakeService{token: "tok", records: make(map[string]map[string]api.Record)}
}

func (s *fakeService) counts() (auths, pings int) {
	s.l.Lock()
	defer s.l.Unlock()
	return s.auths, s.pings
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.l.Lock()
	defer s.l.Unlock()

	p := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v1/")
	switch p {
	case "api-token-auth/":
		var ar AuthRequest
		_ = json.NewDecoder(r.Body).Decode(&ar)
		s.auths++
		s.lastAuth = ar.Username
		if ar.Password != "secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, AuthResponse{Token: s.token})
		return
	case "ping/":
		s.pings++
		s.lastHeader = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	s.lastHeader = r.Header.Get("Authorization")
	if s.rejectNext || s.lastHeader != "Token "+s.token {
		s.rejectNext = false
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if s.fail5xx {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}

	var segs []string
	for _, seg := range strings.Split(strings.TrimSuffix(p, "/"), "/") {
		u, _ := url.PathUnescape(seg)
		segs = append(segs, u)
	}
	switch {
	case len(segs) == 2 && r.Method == http.MethodPost:
		var rec api.Record
		_ = json.NewDecoder(r.Body).Decode(&rec)
		key := segs[0] + "/" + rec.Type
		if s.records[key] == nil {
			s.records[key] = make(map[string]api.Record)
		}
		if _, ok := s.records[key][rec.ID]; ok && r.URL.Query().Get("strict") == "true" {
			http.Error(w, "exists", http.StatusConflict)
			return
		}
		s.records[key][rec.ID] = rec
		writeJSON(w, http.StatusCreated, rec)
	case len(segs) == 3:
		s.list(w, r, segs[0]+"/"+segs[2])
	case len(segs) == 4:
		key := segs[0] + "/" + segs[2]
		rec, ok := s.records[key][segs[3]]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, rec)
		case http.MethodDelete:
			delete(s.records[key], segs[3])
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPut:
			var u UpdateRequest
			_ = json.NewDecoder(r.Body).Decode(&u)
			u.Apply(&rec)
			s.records[key][segs[3]] = rec
			writeJSON(w, http.StatusOK, rec)
		}
	default:
		http.Error(w, "bad path", http.StatusBadRequest)
	}
}

func (s *fakeService) list(w http.ResponseWriter, r *http.Request, key string) {
	var lr ListRequest
	if r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&lr)
	} else {
		q := r.URL.Query()
		lr.Prefix, lr.After = q.Get("prefix"), q.Get("after")
		lr.Limit, _ = strconv.Atoi(q.Get("limit"))
	}
	ids := make([]string, 0, len(s.records[key]))
	for id := range s.records[key] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	opts := api.ListOptions{IDPrefix: lr.Prefix, Filter: lr.Filter}
	resp := ListResponse{Records: []api.Record{}}
	for _, id := range ids {
		if id <= lr.After || !opts.Match(s.records[key][id]) {
			continue
		}
		resp.Records = append(resp.Records, s.records[key][id])
		if len(resp.Records) == lr.Limit {
			resp.Next = id
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
