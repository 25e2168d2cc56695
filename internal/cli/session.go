package cli

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/flywheel/internal/journal"
	"github.com/roach88/flywheel/internal/metrics"
	"github.com/roach88/flywheel/internal/store"
)

// session is the per-command set of open resources.
type session struct {
	store    *store.Store
	journal  *journal.Journal // nil when no journal is configured
	registry *prometheus.Registry
}

// openSession opens the store described by the merged configuration, with
// the journal and metrics attached as observers.
func (o *RootOptions) openSession() (*session, error) {
	s := &session{registry: prometheus.NewRegistry()}
	log := o.logger()

	observers := []store.Observer{metrics.NewStoreMetrics(s.registry)}

	if o.Config.Journal != "" {
		j, err := journal.Open(o.Config.Journal, log)
		if err != nil {
			return nil, WrapExitError(ExitIO, "failed to open journal", err)
		}
		s.journal = j
		observers = append(observers, j)
	}

	cfg := o.Config.Store(log, observers...)
	if o.Now != nil {
		cfg.Now = o.Now
	}

	st, err := store.Open(cfg)
	if err != nil {
		s.Close()
		return nil, storeError("failed to open store", err)
	}
	s.store = st
	s.registry.MustRegister(metrics.NewLockCollector("store", st.LockStats))

	return s, nil
}

// Close releases everything the session opened.
func (s *session) Close() error {
	var errList []error
	if s.store != nil {
		errList = append(errList, s.store.Close())
	}
	if s.journal != nil {
		errList = append(errList, s.journal.Close())
	}
	return errors.Join(errList...)
}
