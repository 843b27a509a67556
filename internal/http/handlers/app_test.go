package handlers

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/planchange"
)

type stubChangeStore struct {
	changes map[string]*domain.PendingPlanChange
}

func newStubChangeStore() *stubChangeStore {
	return &stubChangeStore{changes: make(map[string]*domain.PendingPlanChange)}
}

func (s *stubChangeStore) Get(_ context.Context, userID string) (*domain.PendingPlanChange, error) {
	change, ok := s.changes[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *change
	return &copied, nil
}

func (s *stubChangeStore) Create(_ context.Context, change *domain.PendingPlanChange) error {
	if _, ok := s.changes[change.UserID]; ok {
		return errors.New("duplicate pending change")
	}
	change.RequestedAt = time.Now()
	copied := *change
	s.changes[change.UserID] = &copied
	return nil
}

func (s *stubChangeStore) Delete(_ context.Context, userID string) error {
	delete(s.changes, userID)
	return nil
}

func (s *stubChangeStore) ListDue(_ context.Context, now time.Time) ([]domain.PendingPlanChange, error) {
	var due []domain.PendingPlanChange
	for _, change := range s.changes {
		if change.Status == domain.ChangeScheduled && !change.EffectiveDate.After(now) {
			due = append(due, *change)
		}
	}
	return due, nil
}

type stubSubs struct {
	plans map[string]domain.Plan
}

func newStubSubs() *stubSubs {
	return &stubSubs{plans: make(map[string]domain.Plan)}
}

func (s *stubSubs) Get(_ context.Context, userID string) (domain.Subscription, error) {
	plan, ok := s.plans[userID]
	if !ok {
		plan = domain.PlanFree
	}
	return domain.NewSubscription(userID, plan), nil
}

func (s *stubSubs) SetPlan(_ context.Context, userID string, plan domain.Plan) error {
	s.plans[userID] = plan
	return nil
}

func newTestApp(t *testing.T) (*App, *stubChangeStore, *stubSubs) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	changes := newStubChangeStore()
	subs := newStubSubs()
	return &App{
		Logger:        logger,
		Validate:      validator.New(),
		Subs:          subs,
		Machine:       planchange.NewMachine(changes, subs, "https://pay.example.com/checkout", logger),
		WebhookSecret: "hook-secret",
	}, changes, subs
}
