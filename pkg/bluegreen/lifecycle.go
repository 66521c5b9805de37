package bluegreen

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/rs/zerolog/log"
)

// Lifecycle creates and deletes the physical indices behind an alias.
// Mappings are supplied by the caller and opaque here; an index is never
// remapped in place.
type Lifecycle struct {
	gateway *es.Gateway
	now     func() time.Time
}

type LifecycleOption func(*Lifecycle)

// WithLifecycleClock overrides the wall clock behind generated names.
func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

func NewLifecycle(gateway *es.Gateway, options ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{gateway: gateway, now: time.Now}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// GenerateName yields "{alias}_{color}_{YYYYMMDDHHMMSS}" from the current
// wall clock.
func (l *Lifecycle) GenerateName(alias string, color Color) string {
	return GenerateName(alias, color, l.now())
}

// GenerateBaseName yields the colorless millisecond-precision form.
func (l *Lifecycle) GenerateBaseName(alias string) string {
	return GenerateBaseName(alias, l.now())
}

// Create creates the index with the given mapping, optionally binding an
// alias in the same call. Fails if the index already exists.
func (l *Lifecycle) Create(ctx context.Context, name string, mapping json.RawMessage, alias string) error {
	if err := l.gateway.CreateIndex(ctx, name, mapping, alias); err != nil {
		return err
	}
	log.Info().Str("index", name).Msg("created index")
	return nil
}

func (l *Lifecycle) Delete(ctx context.Context, name string) error {
	return l.gateway.DeleteIndex(ctx, name, false)
}

func (l *Lifecycle) Exists(ctx context.Context, name string) (bool, error) {
	return l.gateway.IndexExists(ctx, name)
}
