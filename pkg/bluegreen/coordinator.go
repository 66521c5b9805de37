package bluegreen

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-go-golems/swaperoo/pkg/errs"
	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultChunkSize bounds how many documents go into one bulk call.
	DefaultChunkSize = 100
	// DeployWaitTimeout is the readiness deadline after ingest.
	DeployWaitTimeout = 5 * time.Minute
)

// Coordinator enforces the per-alias deployment state machine and
// sequences swap, rollback and cleanup.
type Coordinator struct {
	gateway   *es.Gateway
	registry  *Registry
	lifecycle *Lifecycle
	probe     *Probe
	chunkSize int
}

type CoordinatorOption func(*Coordinator)

func WithChunkSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

func NewCoordinator(
	gateway *es.Gateway,
	registry *Registry,
	lifecycle *Lifecycle,
	probe *Probe,
	options ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		gateway:   gateway,
		registry:  registry,
		lifecycle: lifecycle,
		probe:     probe,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Coordinator) Registry() *Registry   { return c.registry }
func (c *Coordinator) Lifecycle() *Lifecycle { return c.lifecycle }
func (c *Coordinator) Probe() *Probe         { return c.probe }

// GetStatus derives the deployment state from the alias binding and the
// "{alias}_*" index pattern. Nothing is persisted.
func (c *Coordinator) GetStatus(ctx context.Context, alias string) (*DeploymentState, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}

	state := &DeploymentState{Alias: alias, Status: StatusIdle}

	bound, err := c.registry.IndicesFor(ctx, alias)
	if err != nil {
		return nil, err
	}
	if len(bound) > 0 {
		// multiple bindings only exist mid-migration; pick the most recent
		state.ActiveIndex = bound[len(bound)-1]
		state.ActiveColor = ExtractColor(state.ActiveIndex)
	}

	all, err := c.gateway.GetIndices(ctx, alias+"_*")
	if err != nil {
		return nil, err
	}

	var staging string
	for _, name := range all {
		if name == state.ActiveIndex {
			continue
		}
		parsed, ok := ParseIndexName(name)
		if !ok || parsed.Alias != alias {
			if !ok {
				log.Warn().Str("alias", alias).Str("index", name).
					Msg("index under alias pattern does not match the blue/green naming scheme, migrate or delete it")
			}
			continue
		}
		if state.ActiveIndex != "" && parsed.Color == state.ActiveColor {
			continue
		}
		// names sort by creation time, keep the greatest
		if name > staging {
			staging = name
		}
	}

	if staging != "" {
		state.StagingIndex = staging
		state.StagingColor = ExtractColor(staging)
		state.Status = StatusReadyForSwap
	} else if state.ActiveIndex != "" {
		state.Status = StatusCompleted
	}

	if last := state.StagingIndex; last != "" {
		if parsed, ok := ParseIndexName(last); ok {
			if t, ok := parsed.ParseTimestamp(); ok {
				state.LastDeployment = t
			}
		}
	} else if parsed, ok := ParseIndexName(state.ActiveIndex); ok {
		if t, ok := parsed.ParseTimestamp(); ok {
			state.LastDeployment = t
		}
	}

	return state, nil
}

// BulkOutcome aggregates per-item results across the chunked bulk calls.
type BulkOutcome struct {
	Indexed  int
	Failed   int
	Failures []BulkFailure
}

type BulkFailure struct {
	ID     string `json:"id"`
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason,omitempty"`
	Status int    `json:"status,omitempty"`
}

// BulkIndex writes documents into one index in chunks, refreshing after
// each chunk. Per-item failures are collected, not raised.
func (c *Coordinator) BulkIndex(ctx context.Context, index string, docs []Document) (*BulkOutcome, error) {
	outcome := &BulkOutcome{}
	epochMs := time.Now().UnixMilli()

	for start := 0; start < len(docs); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(docs) {
			end = len(docs)
		}

		items := make([]es.BulkItem, 0, end-start)
		for i, doc := range docs[start:end] {
			id, ok := doc.ExtractID()
			if !ok {
				id = fmt.Sprintf("doc_%s_%d_%d", index, start+i, epochMs)
			}
			source, err := json.Marshal(doc)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to marshal document %s", id)
			}
			items = append(items, es.BulkItem{Index: index, ID: id, Source: source})
		}

		result, err := c.gateway.Bulk(ctx, items, true)
		if err != nil {
			return nil, err
		}
		for _, item := range result.Items {
			if item.Error == nil && (item.Status == 200 || item.Status == 201) {
				outcome.Indexed++
				continue
			}
			outcome.Failed++
			failure := BulkFailure{ID: item.ID, Status: item.Status}
			if item.Error != nil {
				failure.Type = item.Error.Type
				failure.Reason = item.Error.Reason
			}
			outcome.Failures = append(outcome.Failures, failure)
		}
	}

	if outcome.Failed > 0 {
		log.Warn().Str("index", index).Int("failed", outcome.Failed).
			Int("indexed", outcome.Indexed).Msg("bulk indexing reported per-item failures")
	}
	return outcome, nil
}

// Deploy builds a fresh index of the opposite color, ingests the
// documents, validates readiness, and swaps when the strategy allows it.
func (c *Coordinator) Deploy(
	ctx context.Context,
	alias string,
	docs []Document,
	strategy Strategy,
	mapping json.RawMessage,
) (*DeploymentState, error) {
	state, err := c.GetStatus(ctx, alias)
	if err != nil {
		return nil, err
	}

	targetColor := state.ActiveColor.Opposite()
	targetIndex := c.lifecycle.GenerateName(alias, targetColor)

	log.Info().Str("alias", alias).Str("target_index", targetIndex).
		Str("strategy", string(strategy)).Int("documents", len(docs)).
		Msg("starting deployment")

	if err := c.lifecycle.Create(ctx, targetIndex, mapping, ""); err != nil {
		return nil, err
	}

	result := &DeploymentState{
		Alias:        alias,
		ActiveColor:  state.ActiveColor,
		ActiveIndex:  state.ActiveIndex,
		StagingColor: targetColor,
		StagingIndex: targetIndex,
		Strategy:     strategy,
		Status:       StatusDeploying,
	}

	outcome, err := c.BulkIndex(ctx, targetIndex, docs)
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result, err
	}

	waitOpts := WaitOptions{
		Timeout:          DeployWaitTimeout,
		CheckInterval:    DefaultWaitInterval,
		ExpectedDocCount: int64(len(docs) - outcome.Failed),
	}
	if err := c.probe.WaitReady(ctx, targetIndex, waitOpts); err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result, err
	}

	if !c.probe.Validate(ctx, targetIndex) {
		err := errs.New(errs.KindPreconditionFailed,
			"health validation failed for index %s", targetIndex)
		result.Status = StatusFailed
		result.Error = err.Error()
		return result, err
	}

	if strategy == StrategyAutoSwap {
		result.Status = StatusSwapping
		// swap onto the index created above, not a derived staging index
		if _, err := c.registry.Swap(ctx, alias, targetIndex, false); err != nil {
			result.Status = StatusFailed
			result.Error = err.Error()
			return result, err
		}
		result.ActiveColor = targetColor
		result.ActiveIndex = targetIndex
		result.StagingColor = NoColor
		result.StagingIndex = ""
		result.Status = StatusCompleted
		return result, nil
	}

	result.Status = StatusReadyForSwap
	return result, nil
}

// SwapAlias atomically moves the alias onto the staging index of the
// target color.
func (c *Coordinator) SwapAlias(ctx context.Context, alias string, target Color) error {
	state, err := c.GetStatus(ctx, alias)
	if err != nil {
		return err
	}
	if state.StagingIndex == "" {
		return errs.New(errs.KindPreconditionFailed,
			"no staging index for alias %s", alias)
	}
	if state.StagingColor != target {
		return errs.New(errs.KindConflict,
			"staging color for alias %s is %s, not %s", alias, state.StagingColor, target)
	}

	if _, err := c.registry.Swap(ctx, alias, state.StagingIndex, false); err != nil {
		return err
	}
	return nil
}

// Rollback repoints the alias at the most recent index of the previous
// color.
func (c *Coordinator) Rollback(ctx context.Context, alias string) (*DeploymentState, error) {
	state, err := c.GetStatus(ctx, alias)
	if err != nil {
		return nil, err
	}
	if state.ActiveIndex == "" {
		return nil, errs.New(errs.KindPreconditionFailed,
			"alias %s has no active index to roll back from", alias)
	}

	previousColor := state.ActiveColor.Opposite()
	pattern := fmt.Sprintf("%s_%s_*", alias, previousColor)
	candidates, err := c.gateway.GetIndices(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errs.New(errs.KindNotFound,
			"no %s index to roll back to for alias %s", previousColor, alias)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(candidates)))
	previousIndex := candidates[0]

	log.Info().Str("alias", alias).Str("from", state.ActiveIndex).
		Str("to", previousIndex).Msg("rolling back")

	if _, err := c.registry.Swap(ctx, alias, previousIndex, false); err != nil {
		return nil, err
	}

	return &DeploymentState{
		Alias:       alias,
		ActiveColor: previousColor,
		ActiveIndex: previousIndex,
		Status:      StatusCompleted,
	}, nil
}

// Cleanup deletes every index of the non-active color, never the active
// index. Deletes are best effort.
func (c *Coordinator) Cleanup(ctx context.Context, alias string) ([]string, error) {
	state, err := c.GetStatus(ctx, alias)
	if err != nil {
		return nil, err
	}
	if state.ActiveIndex == "" {
		return nil, errs.New(errs.KindPreconditionFailed,
			"alias %s has no active index, refusing to clean up", alias)
	}

	previousColor := state.ActiveColor.Opposite()
	pattern := fmt.Sprintf("%s_%s_*", alias, previousColor)
	candidates, err := c.gateway.GetIndices(ctx, pattern)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, name := range candidates {
		if name == state.ActiveIndex {
			continue
		}
		if err := c.gateway.DeleteIndex(ctx, name, true); err != nil {
			log.Warn().Err(err).Str("alias", alias).Str("index", name).
				Msg("failed to delete index during cleanup, skipping")
			continue
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

func ValidateAlias(alias string) error {
	if alias == "" {
		return errs.New(errs.KindInvalidArgument, "alias must not be empty")
	}
	for _, r := range alias {
		if r == ' ' || r == '\t' || r == '\n' {
			return errs.New(errs.KindInvalidArgument, "alias must not contain whitespace")
		}
	}
	return nil
}
