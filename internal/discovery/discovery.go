package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/exposechain/exposechain/internal/model"
)

// ErrUnknownSource is returned when a requested source is not configured.
var ErrUnknownSource = errors.New("unknown discovery source")

// Source produces exposures from one kind of infrastructure.
type Source interface {
	Source() string
	Discover(ctx context.Context) ([]*model.Exposure, error)
}

// Registry holds the configured sources by name.
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry returns a Registry over the given sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		if _, dup := r.sources[s.Source()]; !dup {
			r.order = append(r.order, s.Source())
		}
		r.sources[s.Source()] = s
	}
	return r
}

// Names lists configured sources in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Discover runs the named sources, or all of them when names is empty.
// Exposures from sources that partially failed are kept.
func (r *Registry) Discover(ctx context.Context, names []string) ([]*model.Exposure, error) {
	if len(names) == 0 {
		names = r.order
	}
	var out []*model.Exposure
	var errs []error
	for _, name := range names {
		src, ok := r.sources[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
		exps, err := src.Discover(ctx)
		out = append(out, exps...)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return out, errors.Join(errs...)
}
