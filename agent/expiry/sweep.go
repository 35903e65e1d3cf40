/*
Package expiry removes expired records from the open stores in the
background. The sweep is best effort: a record can be read with Get after it
has expired until the next sweep. GetNotExpired is the authoritative check.
*/
package expiry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/findy-network/findy-wallet/agent/storage/api"
	"github.com/go-co-op/gocron"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Source gives the stores to sweep. local.Pool implements it.
type Source interface {
	Each(ctx context.Context, fn func(s api.RecordStore) error) error
}

// Sweeper runs DeleteExpired for the stores of its sources.
type Sweeper struct {
	sources []Source
	now     func() time.Time

	l     sync.Mutex
	cron  *gocron.Scheduler
	total int
}

// New returns a sweeper for the sources.
func New(sources ...Source) *Sweeper {
	return &Sweeper{sources: sources, now: time.Now}
}

// SetClock sets the time the records are compared against.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep removes the expired records once. The stores are swept even if some
// of them fail, and the errors are returned together.
func (s *Sweeper) Sweep(ctx context.Context) (n int, err error) {
	defer err2.Handle(&err, "sweep")

	now := s.now()
	var errs []error
	for _, src := range s.sources {
		err := src.Each(ctx, func(st api.RecordStore) error {
			c, err := st.DeleteExpired(ctx, now)
			n += c
			if err != nil {
				errs = append(errs, err)
			} else if c > 0 {
				glog.V(2).Infof("%d expired records removed from %s", c, st.Name())
			}
			return nil
		})
		errs = append(errs, err)
	}
	try.To(errors.Join(errs...))
	return n, nil
}

// Removed returns how many records the scheduled sweeps have removed.
func (s *Sweeper) Removed() int {
	s.l.Lock()
	defer s.l.Unlock()
	return s.total
}

// Start schedules the sweep at the interval. Only one sweep runs at a time.
func (s *Sweeper) Start(every time.Duration) (err error) {
	defer err2.Handle(&err, "start sweeper")

	s.l.Lock()
	defer s.l.Unlock()

	if s.cron != nil {
		return errors.New("already started")
	}
	cron := gocron.NewScheduler(time.Now().Location())
	cron.SingletonModeAll()
	try.To1(cron.Every(every).Do(s.scheduled))
	cron.StartAsync()
	s.cron = cron
	glog.V(1).Infoln("expiry sweep every", every)
	return nil
}

func (s *Sweeper) scheduled() {
	n, err := s.Sweep(context.Background())
	if err != nil {
		glog.Warningln("expiry sweep:", err)
	}
	s.l.Lock()
	s.total += n
	s.l.Unlock()
}

// Stop stops the scheduled sweeps.
func (s *Sweeper) Stop() {
	s.l.Lock()
	cron := s.cron
	s.cron = nil
	s.l.Unlock()

	if cron != nil {
		cron.Stop()
		glog.V(1).Infoln("expiry sweep stopped")
	}
}
