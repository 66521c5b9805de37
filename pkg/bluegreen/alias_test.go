package bluegreen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/go-go-golems/swaperoo/pkg/estest"
)

func newTestRegistry(t *testing.T) (*Registry, *estest.Cluster) {
	t.Helper()
	cluster := estest.NewCluster()
	t.Cleanup(cluster.Close)
	return NewRegistry(es.NewGateway(cluster.Client(t))), cluster
}

func TestRegistryIndicesForAbsentAlias(t *testing.T) {
	registry, _ := newTestRegistry(t)

	indices, err := registry.IndicesFor(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, indices)

	exists, err := registry.Exists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegistryCreateAndSwap(t *testing.T) {
	registry, cluster := newTestRegistry(t)
	ctx := context.Background()

	cluster.SeedIndex("products_blue_20260101000000")
	cluster.SeedIndex("products_green_20260102000000")

	require.NoError(t, registry.Create(ctx, "products", "products_blue_20260101000000"))
	assert.Equal(t, []string{"products_blue_20260101000000"}, cluster.AliasIndices("products"))

	ok, err := registry.Swap(ctx, "products", "products_green_20260102000000", false)
	require.NoError(t, err)
	assert.True(t, ok)

	// exactly one binding after the swap, and the old index survives
	assert.Equal(t, []string{"products_green_20260102000000"}, cluster.AliasIndices("products"))
	assert.True(t, cluster.HasIndex("products_blue_20260101000000"))
}

func TestRegistrySwapDeleteOld(t *testing.T) {
	registry, cluster := newTestRegistry(t)
	ctx := context.Background()

	cluster.SeedIndex("products_blue_20260101000000")
	cluster.SeedIndex("products_green_20260102000000")
	cluster.SeedAlias("products", "products_blue_20260101000000")

	ok, err := registry.Swap(ctx, "products", "products_green_20260102000000", true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, cluster.HasIndex("products_blue_20260101000000"))
}

func TestRegistrySwapOntoMissingIndexKeepsBinding(t *testing.T) {
	registry, cluster := newTestRegistry(t)
	ctx := context.Background()

	cluster.SeedIndex("products_blue_20260101000000")
	cluster.SeedAlias("products", "products_blue_20260101000000")

	_, err := registry.Swap(ctx, "products", "products_green_99999999999999", false)
	require.Error(t, err)

	// the failed atomic update leaves the prior binding intact
	assert.Equal(t, []string{"products_blue_20260101000000"}, cluster.AliasIndices("products"))
}
