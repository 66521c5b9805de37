package bluegreen

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/go-go-golems/swaperoo/pkg/errs"
	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWaitTimeout  = 60 * time.Second
	DefaultWaitInterval = 2 * time.Second
	healthPollTimeout   = 10 * time.Second
)

// Probe validates index readiness. It never mutates cluster state.
type Probe struct {
	gateway *es.Gateway
}

func NewProbe(gateway *es.Gateway) *Probe {
	return &Probe{gateway: gateway}
}

// WaitOptions configure a readiness wait. ExpectedDocCount below zero
// means no count requirement.
type WaitOptions struct {
	Timeout          time.Duration
	CheckInterval    time.Duration
	ExpectedDocCount int64
}

func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		Timeout:          DefaultWaitTimeout,
		CheckInterval:    DefaultWaitInterval,
		ExpectedDocCount: -1,
	}
}

// Validate reports whether the index exists, is not red, and has
// readable stats. Yellow health is acceptable on single-node clusters.
func (p *Probe) Validate(ctx context.Context, index string) bool {
	exists, err := p.gateway.IndexExists(ctx, index)
	if err != nil || !exists {
		return false
	}
	health, err := p.gateway.Health(ctx, index, "", 0)
	if err != nil || health.Status == "red" {
		return false
	}
	if _, err := p.gateway.Stats(ctx, index); err != nil {
		return false
	}
	return true
}

// WaitReady polls until the index exists, holds the expected document
// count, and reports non-red health. Transient errors within a tick are
// swallowed and retried; only the wall-clock deadline fails the wait.
func (p *Probe) WaitReady(ctx context.Context, index string, opts WaitOptions) error {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWaitTimeout
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultWaitInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	tick := func() error {
		exists, err := p.gateway.IndexExists(waitCtx, index)
		if err != nil {
			return err
		}
		if !exists {
			return errors.Errorf("index %s does not exist yet", index)
		}
		if opts.ExpectedDocCount >= 0 {
			count, err := p.gateway.Count(waitCtx, index)
			if err != nil {
				return err
			}
			if count < opts.ExpectedDocCount {
				return errors.Errorf("index %s has %d of %d expected documents",
					index, count, opts.ExpectedDocCount)
			}
		}
		health, err := p.gateway.Health(waitCtx, index, "yellow", healthPollTimeout)
		if err != nil {
			return err
		}
		if health.Status == "red" {
			return errors.Errorf("index %s is red", index)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(opts.CheckInterval), waitCtx)
	if err := backoff.Retry(tick, policy); err != nil {
		log.Warn().Err(err).Str("index", index).Dur("timeout", opts.Timeout).
			Msg("readiness wait gave up")
		return errs.New(errs.KindTimeout,
			"index %s did not become ready within %s", index, opts.Timeout)
	}
	return nil
}

// IndexHealthStats is the operator-facing stats summary for one index.
type IndexHealthStats struct {
	Index        string `json:"index"`
	DocCount     int64  `json:"docCount"`
	StoreSize    string `json:"storeSize"`
	IndexingRate int64  `json:"indexingRate"`
	SearchRate   int64  `json:"searchRate"`
	Health       string `json:"health"`
}

func (p *Probe) Stats(ctx context.Context, index string) (*IndexHealthStats, error) {
	stats, err := p.gateway.Stats(ctx, index)
	if err != nil {
		return nil, err
	}
	health, err := p.gateway.Health(ctx, index, "", 0)
	if err != nil {
		return nil, err
	}
	return &IndexHealthStats{
		Index:        index,
		DocCount:     stats.DocCount,
		StoreSize:    humanize.Bytes(uint64(stats.StoreSizeBytes)),
		IndexingRate: stats.IndexingTotal,
		SearchRate:   stats.SearchTotal,
		Health:       health.Status,
	}, nil
}
