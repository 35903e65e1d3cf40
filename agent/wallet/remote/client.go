package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// errorMessageMaxLength is the maximum length of the response body included
// in the error message
const errorMessageMaxLength = 80

const (
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

// Doer sends HTTP requests. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type response struct {
	status      int
	contentType string
	data        []byte
}

// statusError is a server side failure. It's returned inside the breaker so
// that 5xx responses count as failures.
type statusError struct {
	status string
}

func (e *statusError) Error() string {
	return "server error: " + e.status
}

type client struct {
	doer    Doer
	cfg     RemoteConfig
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newClient(name string, doer Doer, cfg RemoteConfig) *client {
	c := &client{
		doer: doer,
		cfg:  cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				glog.Warningf("remote wallet %s: circuit %s -> %s", name, from, to)
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return c
}

// transient tells if a failed request can be sent again.
func transient(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// do sends the request. Reads are sent again once after a transient
// network failure, writes never. Network failures end as
// api.ErrRemoteUnavailable.
func (c *client) do(ctx context.Context, method, url, auth string, body any, read bool) (r response, err error) {
	var data []byte
	if body != nil {
		data, err = json.Marshal(body)
		if err != nil {
			return r, err
		}
	}
	attempts := 1
	if read {
		attempts = 2
	}
	for i := 1; ; i++ {
		r, err = c.attempt(ctx, method, url, auth, data)
		if err == nil {
			return r, nil
		}
		if i >= attempts || ctx.Err() != nil || !transient(err) {
			break
		}
		glog.Warningf("%s %s failed, retrying: %v", method, url, err)
	}
	return r, fmt.Errorf("%w: %s %s: %v", api.ErrRemoteUnavailable, method, url, err)
}

func (c *client) attempt(ctx context.Context, method, url, auth string, data []byte) (r response, err error) {
	if c.limiter != nil {
		if err = c.limiter.Wait(ctx); err != nil {
			return r, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, method, url, auth, data)
	})
	if err != nil {
		return r, err
	}
	return out.(response), nil
}

func (c *client) send(ctx context.Context, method, url, auth string, data []byte) (r response, err error) {
	defer err2.Handle(&err)

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req := try.To1(http.NewRequestWithContext(ctx, method, url, body))
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if auth != "" {
		req.Header.Set("Authorization", authHeader(auth))
	}
	if glog.V(7) {
		glog.Infof("-> %s %s (%d bytes)", method, url, len(data))
	}

	resp := try.To1(c.doer.Do(req))
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			glog.Warningln("body.Close: ", closeErr)
		}
	}()

	r = response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		data:        try.To1(io.ReadAll(resp.Body)),
	}
	if glog.V(7) {
		glog.Infof("<- %s %s: %d", method, url, r.status)
	}
	if r.status >= http.StatusInternalServerError {
		return r, &statusError{status: resp.Status}
	}
	return r, nil
}

// check maps the status of the response to the wallet errors.
func (r response) check(what string) error {
	switch {
	case r.status >= 200 && r.status < 300:
		return nil
	case r.status == http.StatusUnauthorized || r.status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", api.ErrAuthenticationFailed, what)
	case r.status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", api.ErrItemNotFound, what)
	case r.status == http.StatusConflict:
		return fmt.Errorf("%w: %s", api.ErrItemAlreadyExists, what)
	}
	// from our server: text/plain; charset=utf-8
	if strings.HasPrefix(r.contentType, "text/plain") {
		msg := strings.TrimSpace(string(r.data[:min(errorMessageMaxLength, len(r.data))]))
		return fmt.Errorf("%s: %d: %s", what, r.status, msg)
	}
	return fmt.Errorf("%s: http status %d", what, r.status)
}

func (r response) decode(v any) error {
	if err := json.Unmarshal(r.data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
