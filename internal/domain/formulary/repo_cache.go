package formulary

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/db"
)

// cachedInteractionRepo keeps, per medicament, the interactions it takes
// part in. Writes drop the entries of both ends of the pair.
type cachedInteractionRepo struct {
	next  InteractionRepository
	store cache.Store
	ttl   time.Duration
}

// NewCachedInteractionRepo wraps next with a read-through cache.
func NewCachedInteractionRepo(next InteractionRepository, store cache.Store, ttl time.Duration) InteractionRepository {
	return &cachedInteractionRepo{next: next, store: store, ttl: ttl}
}

func interactionKey(id uuid.UUID) string {
	return "formulary:interactions:" + id.String()
}

// invalidate drops the entries now and again once the surrounding
// transaction commits. A reader outside the transaction can refill a key
// from the old rows in between.
func (r *cachedInteractionRepo) invalidate(ctx context.Context, ids ...uuid.UUID) {
	r.drop(ctx, ids...)
	db.AfterCommit(ctx, func(ctx context.Context) {
		r.drop(ctx, ids...)
	})
}

func (r *cachedInteractionRepo) drop(ctx context.Context, ids ...uuid.UUID) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = interactionKey(id)
	}
	if err := r.store.Delete(ctx, keys...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("interaction cache invalidation failed")
	}
}

func (r *cachedInteractionRepo) Create(ctx context.Context, in *Interaction) (bool, error) {
	created, err := r.next.Create(ctx, in)
	if err == nil && created {
		r.invalidate(ctx, in.FirstMedicamentID, in.SecondMedicamentID)
	}
	return created, err
}

func (r *cachedInteractionRepo) Delete(ctx context.Context, a, b uuid.UUID) error {
	err := r.next.Delete(ctx, a, b)
	if err == nil {
		r.invalidate(ctx, a, b)
	}
	return err
}

func (r *cachedInteractionRepo) ListInvolving(ctx context.Context, ids []uuid.UUID) ([]*Interaction, error) {
	seen := make(map[uuid.UUID]bool)
	var out []*Interaction
	add := func(items []*Interaction) {
		for _, in := range items {
			if !seen[in.ID] {
				seen[in.ID] = true
				out = append(out, in)
			}
		}
	}

	var missing []uuid.UUID
	for _, id := range ids {
		var items []*Interaction
		err := cache.GetJSON(ctx, r.store, interactionKey(id), &items)
		switch {
		case err == nil:
			add(items)
		case errors.Is(err, cache.ErrMiss):
			missing = append(missing, id)
		default:
			zerolog.Ctx(ctx).Warn().Err(err).Msg("interaction cache read failed")
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := r.next.ListInvolving(ctx, missing)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID][]*Interaction, len(missing))
	for _, id := range missing {
		byID[id] = []*Interaction{}
	}
	for _, in := range fetched {
		for _, end := range []uuid.UUID{in.FirstMedicamentID, in.SecondMedicamentID} {
			if list, ok := byID[end]; ok {
				byID[end] = append(list, in)
			}
		}
	}
	for id, list := range byID {
		if err := cache.SetJSON(ctx, r.store, interactionKey(id), list, r.ttl); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("interaction cache write failed")
		}
	}
	add(fetched)
	return out, nil
}

func (r *cachedInteractionRepo) List(ctx context.Context, limit, offset int) ([]*Interaction, int, error) {
	return r.next.List(ctx, limit, offset)
}
