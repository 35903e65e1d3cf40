// Package record has the record commands of the CLI.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/findy-network/findy-wallet/cmds"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Result is a record printed as JSON.
type Result struct {
	api.Record
}

func (r Result) JSON() ([]byte, error) {
	return json.Marshal(r.Record)
}

// ParseTags reads tags from JSON object or from k=v pairs separated by commas.
func ParseTags(s string) (api.Tags, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "{") {
		var t api.Tags
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("tags: %w", err)
		}
		return t, nil
	}
	t := make(api.Tags)
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("tags: %q is not k=v", kv)
		}
		t[strings.TrimSpace(k)] = v
	}
	return t, nil
}

// ParseFilter reads a filter: clauses separated by commas, k=v for an exact
// match and k alone for presence.
func ParseFilter(s string) (f api.Filter, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, c := range strings.Split(s, ",") {
		k, v, exact := strings.Cut(c, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("filter: empty tag in %q", s)
		}
		if exact {
			f = append(f, api.Eq(k, v))
		} else {
			f = append(f, api.Has(k))
		}
	}
	return f.Normalize(), nil
}

// ParseExpiry reads an RFC 3339 time or a duration from now.
func ParseExpiry(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		t := now.Add(d)
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("expiry %q: not a duration or RFC 3339 time", s)
	}
	return &t, nil
}

type base struct {
	cmds.Cmd
	Type string
}

func (c base) validate(needID bool, id string) error {
	if err := c.Cmd.Validate(); err != nil {
		return err
	}
	if c.Type == "" {
		return errors.New("record type cannot be empty")
	}
	if needID && id == "" {
		return errors.New("record id cannot be empty")
	}
	return nil
}

// SetCmd upserts a record. With Strict it fails if the record exists.
type SetCmd struct {
	base
	ID      string
	Value   string
	Tags    string
	Expires string
	Strict  bool
}

func (c SetCmd) Validate() error {
	if err := c.validate(true, c.ID); err != nil {
		return err
	}
	if _, err := ParseTags(c.Tags); err != nil {
		return err
	}
	_, err := ParseExpiry(c.Expires, time.Now())
	return err
}

func (c SetCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "set %s/%s", c.Type, c.ID)

	ctx := context.Background()
	e, h := try.To2(c.Open(ctx))
	defer e.Close()

	rec := api.Record{
		Type:      c.Type,
		ID:        c.ID,
		Value:     []byte(c.Value),
		Tags:      try.To1(ParseTags(c.Tags)),
		ExpiresAt: try.To1(ParseExpiry(c.Expires, time.Now())),
	}
	if c.Strict {
		try.To(h.Add(ctx, rec))
	} else {
		try.To(h.Put(ctx, rec))
	}
	cmds.Fprintln(w, "record set:", rec.Type, rec.ID)
	return Result{Record: rec}, nil
}

type GetCmd struct {
	base
	ID         string
	NotExpired bool
}

func (c GetCmd) Validate() error {
	return c.validate(true, c.ID)
}

func (c GetCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "get %s/%s", c.Type, c.ID)

	ctx := context.Background()
	e, h := try.To2(c.Open(ctx))
	defer e.Close()

	var rec api.Record
	if c.NotExpired {
		rec = try.To1(h.GetNotExpired(ctx, c.Type, c.ID))
	} else {
		rec = try.To1(h.Get(ctx, c.Type, c.ID))
	}
	res := Result{Record: rec}
	cmds.Fprintln(w, string(try.To1(res.JSON())))
	return res, nil
}

type ListCmd struct {
	base
	Prefix    string
	Filter    string
	CountOnly bool
}

func (c ListCmd) Validate() error {
	if err := c.validate(false, ""); err != nil {
		return err
	}
	_, err := ParseFilter(c.Filter)
	return err
}

func (c ListCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "list %s", c.Type)

	ctx := context.Background()
	e, h := try.To2(c.Open(ctx))
	defer e.Close()

	opts := api.ListOptions{IDPrefix: c.Prefix, Filter: try.To1(ParseFilter(c.Filter))}
	if c.CountOnly {
		cmds.Fprintln(w, try.To1(h.Count(ctx, c.Type, opts)))
		return nil, nil
	}
	it := try.To1(h.List(ctx, c.Type, opts))
	defer it.Close()
	for it.Next(ctx) {
		cmds.Fprintln(w, string(try.To1(Result{Record: it.Record()}.JSON())))
	}
	try.To(it.Err())
	return nil, nil
}

type DeleteCmd struct {
	base
	ID string
}

func (c DeleteCmd) Validate() error {
	return c.validate(true, c.ID)
}

func (c DeleteCmd) Exec(w io.Writer) (r cmds.Result, err error) {
	defer err2.Handle(&err, "delete %s/%s", c.Type, c.ID)

	ctx := context.Background()
	e, h := try.To2(c.Open(ctx))
	defer e.Close()

	try.To(h.Delete(ctx, c.Type, c.ID))
	cmds.Fprintln(w, "record deleted:", c.Type, c.ID)
	return nil, nil
}
