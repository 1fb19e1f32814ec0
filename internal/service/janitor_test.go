package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/images"
	"github.com/pkordes/tripbook/backend/internal/service"
	"github.com/pkordes/tripbook/backend/internal/store"
)

func TestImageJanitor_Sweep(t *testing.T) {
	s := openStore(t)
	plans := store.NewCollection[domain.TravelPlan](s)
	places := store.NewCollection[domain.VisitedPlace](s)
	img := images.NewMemoryStore()
	ctx := context.Background()

	planSvc := service.NewRecords[domain.TravelPlan](plans, img, service.StaticAuth("alice"), discard())
	placeSvc := service.NewRecords[domain.VisitedPlace](places, img, service.StaticAuth("bob"), discard())

	p, err := planSvc.Add(ctx, validPlan(), []byte("cover"))
	require.NoError(t, err)
	v, err := placeSvc.Add(ctx, domain.VisitedPlace{Title: "Gion"}, []byte("photo"))
	require.NoError(t, err)

	orphan := images.NewName()
	require.NoError(t, img.Save(ctx, []byte("left behind"), orphan))

	j := service.NewImageJanitor(img, discard(),
		service.RefsOf[domain.TravelPlan](plans),
		service.RefsOf[domain.VisitedPlace](places),
	)

	dry, err := j.Sweep(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, dry)
	assert.Len(t, storedNames(t, img), 3, "dry run removes nothing")

	removed, err := j.Sweep(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, removed)
	assert.ElementsMatch(t, []string{p.LocalImageRef, v.PhotoRef.OrZero()}, storedNames(t, img))
}

func TestImageJanitor_Sweep_NothingStored(t *testing.T) {
	j := service.NewImageJanitor(images.NewMemoryStore(), discard())

	removed, err := j.Sweep(context.Background(), false)

	require.NoError(t, err)
	assert.NotNil(t, removed)
	assert.Empty(t, removed)
}
