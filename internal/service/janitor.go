package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/images"
	"github.com/pkordes/tripbook/backend/internal/store"
)

// ImageRefs lists the image names one record kind still points at.
type ImageRefs func(ctx context.Context) ([]string, error)

// RefsOf returns the ImageRefs of every record in repo, whoever owns it.
func RefsOf[T domain.Managed[T]](repo Repo[T]) ImageRefs {
	return func(ctx context.Context) ([]string, error) {
		recs, err := repo.Query(ctx, store.Filter{Sort: store.SortInsertion}, nil)
		if err != nil {
			return nil, err
		}
		var refs []string
		for _, r := range recs {
			if name := r.ImageRef(); name != "" {
				refs = append(refs, name)
			}
		}
		return refs, nil
	}
}

// ImageJanitor removes images no record refers to any more: leftovers of
// crashed updates or failed saves.
type ImageJanitor struct {
	images  images.Store
	sources []ImageRefs
	log     *slog.Logger
}

// NewImageJanitor constructs an ImageJanitor over the given reference sources.
func NewImageJanitor(img images.Store, log *slog.Logger, sources ...ImageRefs) *ImageJanitor {
	return &ImageJanitor{images: img, sources: sources, log: log}
}

// Sweep removes every stored image that no source references and returns
// the removed names. With dryRun set nothing is removed.
// Run it while no orchestrator is writing: an image saved for a record
// that is not stored yet looks orphaned.
func (j *ImageJanitor) Sweep(ctx context.Context, dryRun bool) ([]string, error) {
	referenced := make(map[string]struct{})
	for _, src := range j.sources {
		refs, err := src(ctx)
		if err != nil {
			return nil, fmt.Errorf("service.ImageJanitor.Sweep: %w", err)
		}
		for _, r := range refs {
			referenced[r] = struct{}{}
		}
	}

	names, err := j.images.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.ImageJanitor.Sweep: %w", err)
	}

	removed := []string{}
	for _, name := range names {
		if _, ok := referenced[name]; ok {
			continue
		}
		if !dryRun {
			if err := j.images.Remove(ctx, name); err != nil {
				return removed, fmt.Errorf("service.ImageJanitor.Sweep: remove %s: %w", name, err)
			}
		}
		removed = append(removed, name)
	}
	j.log.Info("image sweep finished", "stored", len(names), "orphaned", len(removed), "dry_run", dryRun)
	return removed, nil
}
