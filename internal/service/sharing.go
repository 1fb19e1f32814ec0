package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/tripbook/backend/internal/domain"
	"github.com/pkordes/tripbook/backend/internal/store"
)

// PlanRepo is the travel plan collection as the sharing service needs it.
type PlanRepo interface {
	Repo[domain.TravelPlan]
	Decode(env store.Envelope) (domain.TravelPlan, error)
}

// ShareLookup finds share codes that are not on this device yet.
// replication.Bridge satisfies it.
type ShareLookup interface {
	FindByShareCode(ctx context.Context, kind domain.Kind, code string) (store.Change, error)
}

// SharingService hands out share codes and lets other accounts join plans.
type SharingService struct {
	plans  PlanRepo
	lookup ShareLookup
	auth   Auth
	now    func() time.Time
}

// NewSharingService constructs a SharingService. lookup may be nil when
// replication is off; joins then only see local plans.
func NewSharingService(plans PlanRepo, lookup ShareLookup, auth Auth) *SharingService {
	return &SharingService{plans: plans, lookup: lookup, auth: auth, now: time.Now}
}

// NewShareCode returns a random eight character code.
func NewShareCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// UpdateShareCode publishes planID under code with ownerID as its owner.
// An empty code draws a fresh one. Only the plan's creator or owner may do
// this. Returns domain.ErrConflict if another plan already holds the code.
func (s *SharingService) UpdateShareCode(ctx context.Context, planID uuid.UUID, code, ownerID string) (domain.TravelPlan, error) {
	caller, err := callerID(ctx, s.auth)
	if err != nil {
		return domain.TravelPlan{}, fmt.Errorf("service.SharingService.UpdateShareCode: %w", err)
	}

	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return domain.TravelPlan{}, fmt.Errorf("service.SharingService.UpdateShareCode: %w", err)
	}
	if plan.UserID != caller && plan.OwnerID != caller {
		return domain.TravelPlan{}, fmt.Errorf("service.SharingService.UpdateShareCode: %w", domain.ErrNotFound)
	}

	code = normalizeCode(code)
	if code == "" {
		code = NewShareCode()
	}
	if ownerID == "" {
		ownerID = caller
	}

	holders, err := s.plans.Query(ctx, store.Filter{ShareCode: code}, nil)
	if err != nil {
		return domain.TravelPlan{}, fmt.Errorf("service.SharingService.UpdateShareCode: %w", err)
	}
	for _, h := range holders {
		if h.ID != plan.ID {
			return domain.TravelPlan{}, fmt.Errorf("service.SharingService.UpdateShareCode: %w: share code %q already in use",
				domain.ErrConflict, code)
		}
	}

	plan = plan.Share(code, ownerID)
	plan.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	saved, err := s.plans.Put(ctx, plan)
	if err != nil {
		return domain.TravelPlan{}, fmt.Errorf("service.SharingService.UpdateShareCode: %w", err)
	}
	return saved, nil
}

// JoinByShareCode adds the caller to the plan holding code. The local store
// is searched first, then the remote store. Joining twice changes nothing.
// Returns domain.ErrNotFound if no plan holds the code.
func (s *SharingService) JoinByShareCode(ctx context.Context, code string) (domain.TravelPlan, error) {
	caller, err := callerID(ctx, s.auth)
	if err != nil {
		return domain.TravelPlan{}, fmt.Errorf("service.SharingService.JoinByShareCode: %w", err)
	}
	code = normalizeCode(code)
	if code == "" {
		return domain.TravelPlan{}, fmt.Errorf("service.SharingService.JoinByShareCode: %w: share code is required", domain.ErrValidation)
	}

	plan, err := s.find(ctx, code)
	if err != nil {
		return domain.TravelPlan{}, fmt.Errorf("service.SharingService.JoinByShareCode: %w", err)
	}

	joined, changed := plan.Join(caller)
	if !changed {
		return plan, nil
	}
	joined.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	saved, err := s.plans.Put(ctx, joined)
	if err != nil {
		return domain.TravelPlan{}, fmt.Errorf("service.SharingService.JoinByShareCode: %w", err)
	}
	return saved, nil
}

func (s *SharingService) find(ctx context.Context, code string) (domain.TravelPlan, error) {
	local, err := s.plans.Query(ctx, store.Filter{ShareCode: code}, nil)
	if err != nil {
		return domain.TravelPlan{}, err
	}
	if len(local) > 0 {
		return local[0], nil
	}
	if s.lookup == nil {
		return domain.TravelPlan{}, domain.ErrNotFound
	}

	c, err := s.lookup.FindByShareCode(ctx, domain.KindTravelPlan, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TravelPlan{}, domain.ErrNotFound
		}
		return domain.TravelPlan{}, fmt.Errorf("remote lookup: %w", err)
	}
	if c.Op != store.OpPut {
		return domain.TravelPlan{}, domain.ErrNotFound
	}
	return s.plans.Decode(c.Envelope)
}
