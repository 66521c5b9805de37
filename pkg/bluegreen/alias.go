package bluegreen

import (
	"context"

	"github.com/go-go-golems/swaperoo/pkg/errs"
	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/rs/zerolog/log"
)

// Registry owns alias membership. Every alias mutation in the control
// plane goes through Swap or Create so the cluster can linearize them.
type Registry struct {
	gateway *es.Gateway
}

func NewRegistry(gateway *es.Gateway) *Registry {
	return &Registry{gateway: gateway}
}

func (r *Registry) Exists(ctx context.Context, alias string) (bool, error) {
	return r.gateway.AliasExists(ctx, alias)
}

// IndicesFor returns the indices bound to the alias. An absent alias is
// an empty set, not an error.
func (r *Registry) IndicesFor(ctx context.Context, alias string) ([]string, error) {
	return r.gateway.GetAlias(ctx, alias)
}

// Create binds the alias to the index with a single add action.
func (r *Registry) Create(ctx context.Context, alias, index string) error {
	acknowledged, err := r.gateway.UpdateAliases(ctx, []es.AliasAction{
		{Add: &es.AliasTarget{Index: index, Alias: alias}},
	})
	if err != nil {
		return err
	}
	if !acknowledged {
		return errs.New(errs.KindCluster, "alias create for %s not acknowledged", alias)
	}
	return nil
}

// Swap atomically repoints the alias at newIndex. Every index currently
// bound is removed in the same action list, so the alias is never
// observable with zero or two bindings. With deleteOld the removed
// indices are deleted afterwards, best effort.
func (r *Registry) Swap(ctx context.Context, alias, newIndex string, deleteOld bool) (bool, error) {
	current, err := r.gateway.GetAlias(ctx, alias)
	if err != nil {
		return false, err
	}

	var actions []es.AliasAction
	var removed []string
	for _, index := range current {
		if index == newIndex {
			continue
		}
		actions = append(actions, es.AliasAction{
			Remove: &es.AliasTarget{Index: index, Alias: alias},
		})
		removed = append(removed, index)
	}
	actions = append(actions, es.AliasAction{
		Add: &es.AliasTarget{Index: newIndex, Alias: alias},
	})

	acknowledged, err := r.gateway.UpdateAliases(ctx, actions)
	if err != nil {
		return false, err
	}
	if !acknowledged {
		return false, errs.New(errs.KindCluster, "alias swap for %s not acknowledged", alias)
	}

	log.Info().
		Str("alias", alias).
		Str("new_index", newIndex).
		Strs("removed", removed).
		Msg("alias swapped")

	if deleteOld {
		for _, index := range removed {
			if err := r.gateway.DeleteIndex(ctx, index, true); err != nil {
				log.Warn().
					Err(err).
					Str("alias", alias).
					Str("index", index).
					Msg("failed to delete old index after swap, skipping")
			}
		}
	}
	return true, nil
}
