package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/swaperoo/pkg/bluegreen"
	"github.com/go-go-golems/swaperoo/pkg/errs"
	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/go-go-golems/swaperoo/pkg/mapping"
)

const (
	// MaxBatchSize is the per-batch document limit. An older surface
	// permitted 5000; callers must honor the tighter limit.
	MaxBatchSize = 1000
	// DefaultSessionTimeout expires sessions idle since their last batch.
	DefaultSessionTimeout = time.Hour
	// DefaultSweepInterval is how often the expiry sweep runs.
	DefaultSweepInterval = 5 * time.Minute
	// CompleteWaitTimeout is the readiness deadline during Complete.
	CompleteWaitTimeout = 5 * time.Minute

	maxSessionErrors = 100
)

type entry struct {
	mu sync.Mutex
	s  *Session
}

// Manager owns the in-memory session map. Mutations of a single session
// are serialized; distinct sessions progress in parallel. Sessions do not
// survive a restart.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	gateway     *es.Gateway
	coordinator *bluegreen.Coordinator
	provider    mapping.Provider

	sessionTimeout time.Duration
	sweepInterval  time.Duration
	maxBatchSize   int
	completeWait   time.Duration
	now            func() time.Time
}

type ManagerOption func(*Manager)

func WithSessionTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.sessionTimeout = d }
}

func WithSweepInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.sweepInterval = d }
}

func WithCompleteWaitTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.completeWait = d }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(
	gateway *es.Gateway,
	coordinator *bluegreen.Coordinator,
	provider mapping.Provider,
	options ...ManagerOption,
) *Manager {
	m := &Manager{
		sessions:       map[string]*entry{},
		gateway:        gateway,
		coordinator:    coordinator,
		provider:       provider,
		sessionTimeout: DefaultSessionTimeout,
		sweepInterval:  DefaultSweepInterval,
		maxBatchSize:   MaxBatchSize,
		completeWait:   CompleteWaitTimeout,
		now:            time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func newSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("batch_%d_%s", now.UnixMilli(), random)
}

// Start derives the next color for the alias, creates the mapped staging
// index, and returns a fresh session handle.
func (m *Manager) Start(
	ctx context.Context,
	alias string,
	strategy bluegreen.Strategy,
	estimatedTotal int,
) (*Session, error) {
	if err := bluegreen.ValidateAlias(alias); err != nil {
		return nil, err
	}

	state, err := m.coordinator.GetStatus(ctx, alias)
	if err != nil {
		return nil, err
	}
	targetColor := state.ActiveColor.Opposite()
	targetIndex := m.coordinator.Lifecycle().GenerateName(alias, targetColor)

	mappingDoc, err := m.provider.Mapping()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load index mapping")
	}
	if err := m.coordinator.Lifecycle().Create(ctx, targetIndex, mappingDoc, ""); err != nil {
		return nil, err
	}

	now := m.now()
	s := &Session{
		ID:             newSessionID(now),
		Alias:          alias,
		TargetIndex:    targetIndex,
		TargetColor:    targetColor,
		Strategy:       strategy,
		EstimatedTotal: estimatedTotal,
		Status:         StatusActive,
		CreatedAt:      now,
		LastBatchAt:    now,
		Errors:         []IngestError{},
	}

	m.mu.Lock()
	m.sessions[s.ID] = &entry{s: s}
	m.mu.Unlock()

	log.Info().Str("session_id", s.ID).Str("alias", alias).
		Str("target_index", targetIndex).Str("strategy", string(strategy)).
		Msg("session started")
	return s.clone(), nil
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "session %s not found", sessionID)
	}
	return e, nil
}

// ProcessBatch ingests one batch into the session's target index. Ids
// must be unique within the batch; a duplicate rejects the whole batch
// before any cluster write.
func (m *Manager) ProcessBatch(
	ctx context.Context,
	sessionID string,
	docs []bluegreen.Document,
) (*BatchResult, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	if s.Status != StatusActive {
		return nil, errs.New(errs.KindConflict, "session %s is %s", sessionID, s.Status)
	}
	if len(docs) == 0 {
		return nil, errs.New(errs.KindInvalidArgument, "batch must not be empty")
	}
	if len(docs) > m.maxBatchSize {
		return nil, errs.New(errs.KindInvalidArgument,
			"batch size %d exceeds the limit of %d documents", len(docs), m.maxBatchSize)
	}

	batchNumber := s.TotalBatches + 1
	now := m.now()
	epochMs := now.UnixMilli()

	items := make([]es.BulkItem, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		id, ok := doc.ExtractID()
		if !ok {
			id = bluegreen.FallbackID(s.ID, batchNumber, i, epochMs)
		}
		if _, dup := seen[id]; dup {
			return nil, errs.New(errs.KindInvalidArgument,
				"duplicate document id %q in batch", id)
		}
		seen[id] = struct{}{}

		source, err := json.Marshal(doc)
		if err != nil {
			return nil, errs.Wrap(errs.KindInvalidArgument, err,
				"failed to serialize document %s", id)
		}
		items = append(items, es.BulkItem{Index: s.TargetIndex, ID: id, Source: source})
	}

	result, err := m.gateway.Bulk(ctx, items, false)
	if err != nil {
		s.TotalBatches = batchNumber
		s.TotalDocuments += len(docs)
		s.LastBatchAt = now
		m.appendError(s, IngestError{
			BatchNumber: batchNumber,
			Error:       err.Error(),
			Timestamp:   now,
		})
		return nil, err
	}

	successful, failed := 0, 0
	var batchErrors []IngestError
	for _, item := range result.Items {
		if item.Error == nil && (item.Status == 200 || item.Status == 201) {
			successful++
			continue
		}
		failed++
		ingestErr := IngestError{
			BatchNumber: batchNumber,
			Phase:       "bulk",
			DocumentRef: item.ID,
			Timestamp:   now,
		}
		if item.Error != nil {
			ingestErr.Error = fmt.Sprintf("%s: %s", item.Error.Type, item.Error.Reason)
		} else {
			ingestErr.Error = fmt.Sprintf("unexpected status %d", item.Status)
		}
		batchErrors = append(batchErrors, ingestErr)
	}

	s.TotalBatches = batchNumber
	s.ProcessedBatches++
	s.TotalDocuments += len(docs)
	s.ProcessedDocuments += successful
	s.FailedDocuments += failed
	s.LastBatchAt = now
	for _, ingestErr := range batchErrors {
		m.appendError(s, ingestErr)
	}

	res := &BatchResult{
		SessionID:      s.ID,
		BatchNumber:    batchNumber,
		Successful:     successful,
		Failed:         failed,
		Errors:         batchErrors,
		SessionStatus:  s.Status,
		TotalProcessed: s.ProcessedDocuments,
		TotalFailed:    s.FailedDocuments,
	}
	if s.EstimatedTotal > 0 {
		progress := 100 * float64(s.ProcessedDocuments) / float64(s.EstimatedTotal)
		res.Progress = &progress
	}
	return res, nil
}

// Complete refreshes and validates the target index, then reports the
// alias ready to swap, or swaps inline under the auto-swap strategy.
func (m *Manager) Complete(ctx context.Context, sessionID string) (*bluegreen.DeploymentState, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	if s.Status != StatusActive {
		return nil, errs.New(errs.KindConflict, "session %s is %s", sessionID, s.Status)
	}

	if err := m.gateway.RefreshIndex(ctx, s.TargetIndex); err != nil {
		return nil, err
	}

	actualCount, err := m.gateway.Count(ctx, s.TargetIndex)
	if err != nil {
		return nil, m.failCompletion(s, err)
	}
	if actualCount != int64(s.ProcessedDocuments) {
		// trust the cluster over our own counters so the readiness wait
		// cannot hang on an under-reporting source
		log.Warn().Str("session_id", s.ID).Str("index", s.TargetIndex).
			Int64("actual", actualCount).Int("processed", s.ProcessedDocuments).
			Msg("document count differs from session counters")
	}

	waitOpts := bluegreen.WaitOptions{
		Timeout:          m.completeWait,
		CheckInterval:    bluegreen.DefaultWaitInterval,
		ExpectedDocCount: actualCount,
	}
	if err := m.coordinator.Probe().WaitReady(ctx, s.TargetIndex, waitOpts); err != nil {
		return nil, m.failCompletion(s, err)
	}
	if !m.coordinator.Probe().Validate(ctx, s.TargetIndex) {
		err := errs.New(errs.KindPreconditionFailed,
			"health validation failed for index %s", s.TargetIndex)
		return nil, m.failCompletion(s, err)
	}

	current, err := m.coordinator.GetStatus(ctx, s.Alias)
	if err != nil {
		return nil, m.failCompletion(s, err)
	}
	state := &bluegreen.DeploymentState{
		Alias:        s.Alias,
		ActiveColor:  current.ActiveColor,
		ActiveIndex:  current.ActiveIndex,
		StagingColor: s.TargetColor,
		StagingIndex: s.TargetIndex,
		Strategy:     s.Strategy,
		Status:       bluegreen.StatusReadyForSwap,
	}

	if s.Strategy == bluegreen.StrategyAutoSwap {
		// swap onto this session's own index. Deriving the staging index
		// from the alias pattern could promote a newer concurrent
		// session's still-incomplete index instead.
		if _, err := m.coordinator.Registry().Swap(ctx, s.Alias, s.TargetIndex, false); err != nil {
			return nil, m.failCompletion(s, err)
		}
		state.ActiveColor = s.TargetColor
		state.ActiveIndex = s.TargetIndex
		state.StagingColor = bluegreen.NoColor
		state.StagingIndex = ""
		state.Status = bluegreen.StatusCompleted
	}

	s.Status = StatusCompleted

	log.Info().Str("session_id", s.ID).Str("alias", s.Alias).
		Str("status", string(state.Status)).Int("documents", s.ProcessedDocuments).
		Msg("session completed")
	return state, nil
}

func (m *Manager) failCompletion(s *Session, err error) error {
	s.Status = StatusFailed
	m.appendError(s, IngestError{
		Phase:     "completion",
		Error:     err.Error(),
		Timestamp: m.now(),
	})
	return err
}

// Cancel deletes the target index and fails the session. The alias is
// never touched.
func (m *Manager) Cancel(ctx context.Context, sessionID string) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	if s.Status != StatusActive {
		return errs.New(errs.KindConflict, "session %s is %s", sessionID, s.Status)
	}

	if err := m.gateway.DeleteIndex(ctx, s.TargetIndex, true); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Str("index", s.TargetIndex).
			Msg("failed to delete target index on cancel, skipping")
	}
	s.Status = StatusFailed
	log.Info().Str("session_id", s.ID).Str("alias", s.Alias).Msg("session cancelled")
	return nil
}

// Get returns a snapshot of the session, if present.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.clone(), true
}

// ListActive returns snapshots of all sessions still accepting batches.
func (m *Manager) ListActive() []*Session {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var active []*Session
	for _, e := range entries {
		e.mu.Lock()
		if e.s.Status == StatusActive {
			active = append(active, e.s.clone())
		}
		e.mu.Unlock()
	}
	return active
}

// Sweep expires idle sessions until the context is cancelled.
func (m *Manager) Sweep(ctx context.Context) error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.SweepOnce()
		}
	}
}

// SweepOnce removes every session idle beyond the session timeout,
// marking it expired first. The target index is retained; it may still
// be promoted manually.
func (m *Manager) SweepOnce() int {
	now := m.now()

	m.mu.Lock()
	var expired []*entry
	for id, e := range m.sessions {
		e.mu.Lock()
		if !e.s.Status.Terminal() && now.Sub(e.s.LastBatchAt) > m.sessionTimeout {
			e.s.Status = StatusExpired
			delete(m.sessions, id)
			expired = append(expired, e)
		}
		e.mu.Unlock()
	}
	m.mu.Unlock()

	for _, e := range expired {
		log.Warn().Str("session_id", e.s.ID).Str("alias", e.s.Alias).
			Str("target_index", e.s.TargetIndex).
			Msg("session expired, target index retained")
	}
	return len(expired)
}

func (m *Manager) appendError(s *Session, ingestErr IngestError) {
	if len(s.Errors) >= maxSessionErrors {
		return
	}
	s.Errors = append(s.Errors, ingestErr)
}
