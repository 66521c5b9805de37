package bluegreen

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/swaperoo/pkg/errs"
	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/go-go-golems/swaperoo/pkg/estest"
)

var testMapping = json.RawMessage(`{"properties":{"id":{"type":"keyword"}}}`)

func newTestCoordinator(t *testing.T) (*Coordinator, *estest.Cluster) {
	t.Helper()
	cluster := estest.NewCluster()
	t.Cleanup(cluster.Close)

	gateway := es.NewGateway(cluster.Client(t))
	registry := NewRegistry(gateway)
	lifecycle := NewLifecycle(gateway)
	probe := NewProbe(gateway)
	return NewCoordinator(gateway, registry, lifecycle, probe), cluster
}

func docsWithIDs(ids ...string) []Document {
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, Document{"id": id, "ProductName": "product " + id})
	}
	return docs
}

func TestFirstDeploymentSafe(t *testing.T) {
	coord, cluster := newTestCoordinator(t)
	ctx := context.Background()

	state, err := coord.Deploy(ctx, "products-test", docsWithIDs("A", "B", "C"),
		StrategySafe, testMapping)
	require.NoError(t, err)

	assert.Equal(t, StatusReadyForSwap, state.Status)
	assert.Equal(t, Blue, state.StagingColor)
	assert.Empty(t, state.ActiveIndex)
	assert.Equal(t, 3, cluster.DocCount(state.StagingIndex))

	// the alias stays unbound under the safe strategy
	assert.Empty(t, cluster.AliasIndices("products-test"))

	derived, err := coord.GetStatus(ctx, "products-test")
	require.NoError(t, err)
	assert.Equal(t, StatusReadyForSwap, derived.Status)
	assert.Equal(t, NoColor, derived.ActiveColor)
	assert.Equal(t, Blue, derived.StagingColor)
	assert.Equal(t, state.StagingIndex, derived.StagingIndex)
}

func TestFirstDeploymentAutoSwap(t *testing.T) {
	coord, cluster := newTestCoordinator(t)
	ctx := context.Background()

	state, err := coord.Deploy(ctx, "products-test", docsWithIDs("A", "B", "C"),
		StrategyAutoSwap, testMapping)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, Blue, state.ActiveColor)
	assert.Equal(t, []string{state.ActiveIndex}, cluster.AliasIndices("products-test"))

	derived, err := coord.GetStatus(ctx, "products-test")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, derived.Status)
	assert.Equal(t, Blue, derived.ActiveColor)
	assert.Equal(t, state.ActiveIndex, derived.ActiveIndex)
}

func TestBlueGreenPromoteAndRollback(t *testing.T) {
	coord, cluster := newTestCoordinator(t)
	ctx := context.Background()

	first, err := coord.Deploy(ctx, "products-test", docsWithIDs("A", "B", "C"),
		StrategyAutoSwap, testMapping)
	require.NoError(t, err)
	blueIndex := first.ActiveIndex

	second, err := coord.Deploy(ctx, "products-test", docsWithIDs("D", "E", "F"),
		StrategySafe, testMapping)
	require.NoError(t, err)
	greenIndex := second.StagingIndex

	derived, err := coord.GetStatus(ctx, "products-test")
	require.NoError(t, err)
	assert.Equal(t, Blue, derived.ActiveColor)
	assert.Equal(t, Green, derived.StagingColor)
	assert.Equal(t, StatusReadyForSwap, derived.Status)

	require.NoError(t, coord.SwapAlias(ctx, "products-test", Green))
	assert.Equal(t, []string{greenIndex}, cluster.AliasIndices("products-test"))

	// rollback is the inverse of the swap
	state, err := coord.Rollback(ctx, "products-test")
	require.NoError(t, err)
	assert.Equal(t, Blue, state.ActiveColor)
	assert.Equal(t, blueIndex, state.ActiveIndex)
	assert.Equal(t, []string{blueIndex}, cluster.AliasIndices("products-test"))
}

func TestSwapAliasPreconditions(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()

	err := coord.SwapAlias(ctx, "products-test", Blue)
	assert.True(t, errs.Is(err, errs.KindPreconditionFailed))

	_, err = coord.Deploy(ctx, "products-test", docsWithIDs("A"), StrategySafe, testMapping)
	require.NoError(t, err)

	// staging is blue, asking for green is a color mismatch
	err = coord.SwapAlias(ctx, "products-test", Green)
	assert.True(t, errs.Is(err, errs.KindConflict))
}

func TestRollbackWithoutPreviousColor(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := coord.Deploy(ctx, "products-test", docsWithIDs("A"), StrategyAutoSwap, testMapping)
	require.NoError(t, err)

	_, err = coord.Rollback(ctx, "products-test")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestRollbackWithoutActiveIndex(t *testing.T) {
	coord, _ := newTestCoordinator(t)

	_, err := coord.Rollback(context.Background(), "products-test")
	assert.True(t, errs.Is(err, errs.KindPreconditionFailed))
}

func TestCleanupNeverDeletesActive(t *testing.T) {
	coord, cluster := newTestCoordinator(t)
	ctx := context.Background()

	first, err := coord.Deploy(ctx, "products-test", docsWithIDs("A"), StrategyAutoSwap, testMapping)
	require.NoError(t, err)

	second, err := coord.Deploy(ctx, "products-test", docsWithIDs("B"), StrategySafe, testMapping)
	require.NoError(t, err)
	require.NoError(t, coord.SwapAlias(ctx, "products-test", Green))

	deleted, err := coord.Cleanup(ctx, "products-test")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ActiveIndex}, deleted)
	assert.False(t, cluster.HasIndex(first.ActiveIndex))
	assert.True(t, cluster.HasIndex(second.StagingIndex))
}

func TestDeployEmptyDocuments(t *testing.T) {
	coord, cluster := newTestCoordinator(t)

	state, err := coord.Deploy(context.Background(), "products-test", nil,
		StrategySafe, testMapping)
	require.NoError(t, err)
	assert.Equal(t, StatusReadyForSwap, state.Status)
	assert.Equal(t, 0, cluster.DocCount(state.StagingIndex))
}

func TestDeployChunksBulkRequests(t *testing.T) {
	coord, cluster := newTestCoordinator(t)

	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%03d", i)
	}
	state, err := coord.Deploy(context.Background(), "products-test", docsWithIDs(ids...),
		StrategySafe, testMapping)
	require.NoError(t, err)

	assert.Equal(t, 250, cluster.DocCount(state.StagingIndex))
	assert.Equal(t, 3, cluster.BulkCalls())
}

func TestDeployCollectsPerItemFailures(t *testing.T) {
	coord, cluster := newTestCoordinator(t)
	cluster.FailBulkID("bad", "field type mismatch")

	state, err := coord.Deploy(context.Background(), "products-test",
		docsWithIDs("good-1", "bad", "good-2"), StrategySafe, testMapping)
	require.NoError(t, err)

	assert.Equal(t, StatusReadyForSwap, state.Status)
	assert.Equal(t, 2, cluster.DocCount(state.StagingIndex))
}

func TestGetStatusIdle(t *testing.T) {
	coord, _ := newTestCoordinator(t)

	state, err := coord.GetStatus(context.Background(), "products-test")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, state.Status)
	assert.Empty(t, state.ActiveIndex)
	assert.Empty(t, state.StagingIndex)
}

func TestGetStatusRejectsInvalidAlias(t *testing.T) {
	coord, _ := newTestCoordinator(t)

	_, err := coord.GetStatus(context.Background(), "")
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))

	_, err = coord.GetStatus(context.Background(), "bad alias")
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}
