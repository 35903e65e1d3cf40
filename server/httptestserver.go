package server

import (
	"net/http/httptest"
)

// StartTestHTTPServer starts the service on a local test server. The endpoint
// is what the remote wallet config needs.
func StartTestHTTPServer(s *Service) (srv *httptest.Server, endpoint string) {
	srv = httptest.NewServer(s.Handler())
	return srv, srv.URL + s.cfg.BasePath
}
