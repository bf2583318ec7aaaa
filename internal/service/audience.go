package service

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	"github.com/Eigensu/SM-Visitor/internal/repo/postgres"
)

// allFlatsSampleSize caps how many flats an "all flats" credential
// notifies. Inherited behavior; see DESIGN.md before changing it.
const allFlatsSampleSize = 3

// AudienceResolver turns a visit's addressing data into the concrete flat
// set to notify.
type AudienceResolver struct {
	directory postgres.DirectoryRepo
}

func NewAudienceResolver(directory postgres.DirectoryRepo) *AudienceResolver {
	return &AudienceResolver{directory: directory}
}

// Resolve computes the target flat set. The first element becomes the
// visit's canonical owner flat; the full set is kept for membership
// checks. Directory failures are returned as ErrDirectoryLookup, never
// collapsed into an empty audience.
func (r *AudienceResolver) Resolve(ctx context.Context, addr domain.Addressing) (domain.Audience, error) {
	switch {
	case addr.AllFlats:
		all, err := r.directory.AllFlatIDs(ctx)
		if err != nil {
			return domain.Audience{}, fmt.Errorf("%w: %v", ErrDirectoryLookup, err)
		}
		if len(all) == 0 {
			return domain.Audience{}, fmt.Errorf("%w: no flats in directory", ErrInvalidRequest)
		}
		targets := sampleFlats(all, allFlatsSampleSize)
		return domain.Audience{Primary: targets[0], Targets: targets}, nil

	case len(addr.Flats) > 0:
		targets := append([]string(nil), addr.Flats...)
		return domain.Audience{Primary: targets[0], Targets: targets}, nil

	case addr.OwnerFlat != "":
		return domain.Audience{Primary: addr.OwnerFlat, Targets: []string{addr.OwnerFlat}}, nil

	default:
		return domain.Audience{}, fmt.Errorf("%w: no target flat", ErrInvalidRequest)
	}
}

func sampleFlats(all []string, n int) []string {
	if len(all) <= n {
		return append([]string(nil), all...)
	}
	picked := append([]string(nil), all...)
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n]
}
