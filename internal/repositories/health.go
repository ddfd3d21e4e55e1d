package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"finitefield.org/manual/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// Probe is a named dependency check run during readiness.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// HealthOption customises the probe-backed health repository.
type HealthOption func(*probeHealthRepository)

// WithProbeTimeout overrides the timeout used when a probe omits its own.
func WithProbeTimeout(timeout time.Duration) HealthOption {
	return func(r *probeHealthRepository) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithHealthClock injects a clock for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(r *probeHealthRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

type probeHealthRepository struct {
	probes  []Probe
	timeout time.Duration
	now     func() time.Time
}

var _ HealthRepository = (*probeHealthRepository)(nil)

// NewHealthRepository validates probes and returns a HealthRepository running them concurrently.
func NewHealthRepository(probes []Probe, opts ...HealthOption) (HealthRepository, error) {
	for _, p := range probes {
		if strings.TrimSpace(p.Name) == "" {
			return nil, errors.New("health repository: probe missing name")
		}
		if p.Check == nil {
			return nil, fmt.Errorf("health repository: probe %s missing check function", p.Name)
		}
	}
	r := &probeHealthRepository{
		probes:  append([]Probe(nil), probes...),
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *probeHealthRepository) Collect(ctx context.Context) (domain.HealthReport, error) {
	if ctx == nil {
		return domain.HealthReport{}, errors.New("health repository: context is required")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]domain.HealthCheck, len(r.probes))
	)
	for _, probe := range r.probes {
		probe := probe
		wg.Add(1)
		go func() {
			defer wg.Done()
			check := r.run(ctx, probe)
			mu.Lock()
			results[probe.Name] = check
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := domain.HealthStatusOK
	for _, check := range results {
		switch check.Status {
		case domain.HealthStatusError:
			status = domain.HealthStatusError
		case domain.HealthStatusDegraded:
			if status == domain.HealthStatusOK {
				status = domain.HealthStatusDegraded
			}
		}
	}
	return domain.HealthReport{Status: status, Checks: results, GeneratedAt: r.now()}, nil
}

func (r *probeHealthRepository) run(ctx context.Context, probe Probe) domain.HealthCheck {
	timeout := probe.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := probe.Check(probeCtx)
	end := r.now()
	if err == nil {
		err = probeCtx.Err()
	}

	check := domain.HealthCheck{Status: domain.HealthStatusOK, Detail: "ok", Latency: end.Sub(start), CheckedAt: end}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		check.Status, check.Detail, check.Error = domain.HealthStatusError, "cancelled", err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		check.Status, check.Detail, check.Error = domain.HealthStatusError, "timeout", err.Error()
	default:
		check.Status, check.Detail, check.Error = domain.HealthStatusDegraded, err.Error(), err.Error()
	}
	return check
}
