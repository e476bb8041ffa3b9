package connector

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/merger"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

type resource struct {
	name    string
	q       TmQuery
	enabled bool
	opened  bool
}

// Manager queries several translation memories as one. Results are merged
// by score, then resource order, then document id; a hit whose source and
// target, inline codes included, repeat an earlier one is dropped.
type Manager struct {
	lifecycle
	cursor

	resources []*resource
	threshold int
	maxHits   int
	src, tgt  string
	logger    *slog.Logger
}

type ManagerOption func(*Manager)

// WithManagerThreshold sets the initial minimum score. Values outside
// [0,100] are ignored.
func WithManagerThreshold(percent int) ManagerOption {
	return func(m *Manager) {
		if checkThreshold(percent) == nil {
			m.threshold = percent
		}
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		threshold: DefaultThreshold,
		logger:    slog.Default().With("component", "tm-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddResource registers q under name, enabled. Resources must be added
// before Open.
func (m *Manager) AddResource(name string, q TmQuery) error {
	if m.state != stateNew {
		return apperrors.Invalidf("resources must be added before open")
	}
	if name == "" || q == nil {
		return apperrors.Invalidf("resource needs a name and a connector")
	}
	if m.find(name) != nil {
		return apperrors.Invalidf("resource %q already registered", name)
	}
	m.resources = append(m.resources, &resource{name: name, q: q, enabled: true})
	return nil
}

// SetEnabled includes or excludes a resource from later queries. A
// resource enabled after Open is opened lazily on the next query.
func (m *Manager) SetEnabled(name string, enabled bool) error {
	r := m.find(name)
	if r == nil {
		return apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "resource %q not registered", name)
	}
	r.enabled = enabled
	return nil
}

// Resources lists the registered resource names in query order.
func (m *Manager) Resources() []string {
	out := make([]string, len(m.resources))
	for i, r := range m.resources {
		out[i] = r.name
	}
	return out
}

func (m *Manager) find(name string) *resource {
	for _, r := range m.resources {
		if r.name == name {
			return r
		}
	}
	return nil
}

func (m *Manager) Open(sourceLocale, targetLocale string) error {
	if err := m.beginOpen(); err != nil {
		return err
	}
	for _, r := range m.resources {
		if !r.enabled {
			continue
		}
		if err := m.openResource(r, sourceLocale, targetLocale); err != nil {
			m.closeResources()
			return err
		}
	}
	m.state = stateOpen
	m.src, m.tgt = sourceLocale, targetLocale
	return nil
}

func (m *Manager) openResource(r *resource, src, tgt string) error {
	if err := r.q.Open(src, tgt); err != nil {
		return fmt.Errorf("opening resource %s: %w", r.name, err)
	}
	r.opened = true
	if err := r.q.SetThreshold(m.threshold); err != nil {
		return fmt.Errorf("configuring resource %s: %w", r.name, err)
	}
	// Duplicates are removed after merging, so resources return
	// everything and the cap is applied once.
	if err := r.q.SetMaximumHits(0); err != nil {
		return fmt.Errorf("configuring resource %s: %w", r.name, err)
	}
	return nil
}

func (m *Manager) closeResources() error {
	var errs []error
	for _, r := range m.resources {
		if !r.opened {
			continue
		}
		r.opened = false
		if err := r.q.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing resource %s: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Close() error {
	if err := m.requireOpen(); err != nil {
		return err
	}
	m.state = stateClosed
	m.reset(nil)
	return m.closeResources()
}

func (m *Manager) SetThreshold(percent int) error {
	if err := m.requireOpen(); err != nil {
		return err
	}
	if err := checkThreshold(percent); err != nil {
		return err
	}
	for _, r := range m.resources {
		if r.opened {
			if err := r.q.SetThreshold(percent); err != nil {
				return fmt.Errorf("resource %s: %w", r.name, err)
			}
		}
	}
	m.threshold = percent
	return nil
}

func (m *Manager) SetMaximumHits(n int) error {
	if err := m.requireOpen(); err != nil {
		return err
	}
	m.maxHits = max(n, 0)
	return nil
}

// Query asks every enabled resource. A failing resource is logged and
// skipped; the error is returned only when every resource failed.
func (m *Manager) Query(f *fragment.Fragment) (int, error) {
	if err := m.requireOpen(); err != nil {
		return 0, err
	}
	if f.IsEmpty() {
		return m.reset(nil), nil
	}
	var (
		lists    [][]QueryResult
		firstErr error
		asked    int
	)
	for _, r := range m.resources {
		if !r.enabled {
			continue
		}
		asked++
		hits, err := m.queryResource(r, f)
		if err != nil {
			m.logger.Warn("resource query failed", "resource", r.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		lists = append(lists, hits)
	}
	if asked > 0 && len(lists) == 0 {
		m.reset(nil)
		return 0, firstErr
	}
	return m.reset(merger.Merge(lists, m.maxHits)), nil
}

func (m *Manager) queryResource(r *resource, f *fragment.Fragment) ([]QueryResult, error) {
	if !r.opened {
		if err := m.openResource(r, m.src, m.tgt); err != nil {
			return nil, err
		}
	}
	if _, err := r.q.Query(f); err != nil {
		return nil, err
	}
	hits, err := drain(r.q)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		if hits[i].Origin == "" {
			hits[i].Origin = r.name
		}
	}
	return hits, nil
}

func (m *Manager) QueryText(text string) (int, error) {
	return m.Query(fragment.FromText(text))
}

func (m *Manager) HasNext() bool {
	return m.state == stateOpen && m.hasNext()
}

func (m *Manager) Next() (QueryResult, error) {
	if err := m.requireOpen(); err != nil {
		return QueryResult{}, err
	}
	return m.next()
}

func (m *Manager) BatchQuery(fs []*fragment.Fragment) ([][]QueryResult, error) {
	if err := m.requireOpen(); err != nil {
		return nil, err
	}
	return batch(m, fs)
}
