package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/IshaanNene/ghdependents/internal/config"
	"github.com/IshaanNene/ghdependents/internal/types"
)

// Middleware processes a dependent and returns the (possibly modified) dependent.
// Return nil to drop the dependent from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a dependent. Return nil to drop it.
	Process(d *types.Dependent) (*types.Dependent, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// FromConfig builds the pipeline described by cfg. Dedup runs last so that
// filtered dependents do not occupy the seen set.
func FromConfig(cfg *config.PipelineConfig, logger *slog.Logger) *Pipeline {
	p := New(logger)
	if cfg.MinStars > 0 {
		p.Use(&MinStarsMiddleware{Min: cfg.MinStars})
	}
	if len(cfg.ExcludeOwners) > 0 {
		p.Use(NewExcludeOwnersMiddleware(cfg.ExcludeOwners))
	}
	if cfg.Dedup {
		p.Use(NewDedupMiddleware())
	}
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the dependent through all middleware in order.
func (p *Pipeline) Process(d *types.Dependent) (*types.Dependent, error) {
	current := d

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:     mw.Name(),
				Dependent: current,
				Err:       err,
			}
		}
		if result == nil {
			p.logger.Debug("dependent dropped", "stage", mw.Name(), "dependent", d.FullName())
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// ProcessBatch runs every dependent of batch through the pipeline and
// returns the survivors in order along with the number dropped.
func (p *Pipeline) ProcessBatch(batch []*types.Dependent) ([]*types.Dependent, int, error) {
	if len(p.middlewares) == 0 {
		return batch, 0, nil
	}

	out := make([]*types.Dependent, 0, len(batch))
	for _, d := range batch {
		result, err := p.Process(d)
		if err != nil {
			return out, len(batch) - len(out), err
		}
		if result != nil {
			out = append(out, result)
		}
	}
	return out, len(batch) - len(out), nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// MinStarsMiddleware drops dependents with fewer than Min stars.
type MinStarsMiddleware struct {
	Min int
}

func (m *MinStarsMiddleware) Name() string { return "min_stars" }

func (m *MinStarsMiddleware) Process(d *types.Dependent) (*types.Dependent, error) {
	if d.Stars < m.Min {
		return nil, nil
	}
	return d, nil
}

// ExcludeOwnersMiddleware drops dependents owned by any of the listed
// users or organizations. Owner names compare case-insensitively.
type ExcludeOwnersMiddleware struct {
	owners map[string]struct{}
}

func NewExcludeOwnersMiddleware(owners []string) *ExcludeOwnersMiddleware {
	m := &ExcludeOwnersMiddleware{owners: make(map[string]struct{}, len(owners))}
	for _, o := range owners {
		if o = strings.TrimSpace(o); o != "" {
			m.owners[strings.ToLower(o)] = struct{}{}
		}
	}
	return m
}

func (m *ExcludeOwnersMiddleware) Name() string { return "exclude_owners" }

func (m *ExcludeOwnersMiddleware) Process(d *types.Dependent) (*types.Dependent, error) {
	if _, ok := m.owners[strings.ToLower(d.Owner)]; ok {
		return nil, nil
	}
	return d, nil
}

// DedupMiddleware drops dependents already seen under the same
// owner/repository. GitHub names compare case-insensitively.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(d *types.Dependent) (*types.Dependent, error) {
	key := strings.ToLower(d.FullName())

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return d, nil
}
