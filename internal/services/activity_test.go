package services

import (
	"context"
	"errors"
	"testing"

	"github.com/vitapersonal/authserver/internal/policy"
	"github.com/vitapersonal/authserver/internal/store"
	"github.com/vitapersonal/authserver/types"
)

type fakeActivityStore struct {
	updates []store.ActivityUpdate
}

func (f *fakeActivityStore) UpdateActivity(ctx context.Context, id int, update store.ActivityUpdate) error {
	f.updates = append(f.updates, update)
	return nil
}

type fakeResolver struct {
	country string
	err     error
	lookups int
}

func (f *fakeResolver) CountryCode(ip string) (string, error) {
	f.lookups++
	return f.country, f.err
}

func (f *fakeResolver) Close() error { return nil }

func requestContext() context.Context {
	return policy.WithRequestState(context.Background(), &policy.RequestState{})
}

func TestUpdateFromRequestFirstRequest(t *testing.T) {
	st := &fakeActivityStore{}
	resolver := &fakeResolver{country: "IL"}
	svc := NewActivityService(st, resolver, nil)

	user := types.User{ID: 1}
	if err := svc.UpdateFromRequest(requestContext(), &user, "203.0.113.9"); err != nil {
		t.Fatalf("UpdateFromRequest: %v", err)
	}

	if len(st.updates) != 1 {
		t.Fatalf("got %d writes, want 1", len(st.updates))
	}
	update := st.updates[0]
	if update.LastActivity == nil {
		t.Error("last activity not written")
	}
	if update.LastIP == nil || *update.LastIP != "203.0.113.9" {
		t.Errorf("last IP = %v, want 203.0.113.9", update.LastIP)
	}
	if update.RegistrationIP == nil || *update.RegistrationIP != "203.0.113.9" {
		t.Errorf("registration IP = %v, want 203.0.113.9", update.RegistrationIP)
	}
	if update.Country == nil || *update.Country != "IL" {
		t.Errorf("country = %v, want IL", update.Country)
	}
	if update.Timezone == nil || *update.Timezone != "Asia/Jerusalem" {
		t.Errorf("timezone = %v, want Asia/Jerusalem", update.Timezone)
	}
	if resolver.lookups != 1 {
		t.Errorf("got %d geo lookups, want 1", resolver.lookups)
	}
}

func TestUpdateFromRequestRegistrationIPWrittenOnce(t *testing.T) {
	st := &fakeActivityStore{}
	resolver := &fakeResolver{country: "DE"}
	svc := NewActivityService(st, resolver, nil)

	user := types.User{ID: 1, RegistrationIP: "198.51.100.1", LastIP: "198.51.100.1"}
	if err := svc.UpdateFromRequest(requestContext(), &user, "203.0.113.9"); err != nil {
		t.Fatalf("UpdateFromRequest: %v", err)
	}

	if len(st.updates) != 1 {
		t.Fatalf("got %d writes, want 1", len(st.updates))
	}
	update := st.updates[0]
	if update.RegistrationIP != nil {
		t.Errorf("registration IP rewritten to %q", *update.RegistrationIP)
	}
	if update.LastIP == nil || *update.LastIP != "203.0.113.9" {
		t.Errorf("last IP = %v, want 203.0.113.9", update.LastIP)
	}
	if resolver.lookups != 0 {
		t.Errorf("got %d geo lookups, want 0", resolver.lookups)
	}
	if user.RegistrationIP != "198.51.100.1" {
		t.Errorf("user registration IP mutated to %q", user.RegistrationIP)
	}
}

func TestUpdateFromRequestUnchangedIPSkipsIPColumn(t *testing.T) {
	st := &fakeActivityStore{}
	svc := NewActivityService(st, nil, nil)

	user := types.User{ID: 1, RegistrationIP: "203.0.113.9", LastIP: "203.0.113.9"}
	if err := svc.UpdateFromRequest(requestContext(), &user, "203.0.113.9"); err != nil {
		t.Fatalf("UpdateFromRequest: %v", err)
	}

	if len(st.updates) != 1 {
		t.Fatalf("got %d writes, want 1", len(st.updates))
	}
	update := st.updates[0]
	if update.LastActivity == nil {
		t.Error("last activity not written")
	}
	if update.LastIP != nil {
		t.Errorf("last IP written (%q) although unchanged", *update.LastIP)
	}
}

func TestUpdateFromRequestIdempotentPerRequest(t *testing.T) {
	st := &fakeActivityStore{}
	svc := NewActivityService(st, nil, nil)
	ctx := requestContext()

	user := types.User{ID: 1}
	if err := svc.UpdateFromRequest(ctx, &user, "203.0.113.9"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := svc.UpdateFromRequest(ctx, &user, "203.0.113.9"); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if len(st.updates) != 1 {
		t.Fatalf("got %d writes, want 1 (second call within the request must be a no-op)", len(st.updates))
	}
}

func TestUpdateFromRequestGeoFailureTolerated(t *testing.T) {
	st := &fakeActivityStore{}
	resolver := &fakeResolver{err: errors.New("database corrupt")}
	svc := NewActivityService(st, resolver, nil)

	user := types.User{ID: 1}
	if err := svc.UpdateFromRequest(requestContext(), &user, "203.0.113.9"); err != nil {
		t.Fatalf("UpdateFromRequest: %v", err)
	}

	if len(st.updates) != 1 {
		t.Fatalf("got %d writes, want 1", len(st.updates))
	}
	update := st.updates[0]
	if update.RegistrationIP == nil {
		t.Error("registration IP should still be written when geolocation fails")
	}
	if update.Country != nil {
		t.Errorf("country written (%q) despite lookup failure", *update.Country)
	}
}

func TestDeriveLocaleOnCreateUnsavedUser(t *testing.T) {
	st := &fakeActivityStore{}
	resolver := &fakeResolver{country: "FR"}
	svc := NewActivityService(st, resolver, nil)

	user := types.User{RegistrationIP: "203.0.113.9"}
	if err := svc.DeriveLocaleOnCreate(context.Background(), &user); err != nil {
		t.Fatalf("DeriveLocaleOnCreate: %v", err)
	}

	if user.Country != "FR" {
		t.Errorf("country = %q, want FR", user.Country)
	}
	if user.Timezone != "Europe/Paris" {
		t.Errorf("timezone = %q, want Europe/Paris", user.Timezone)
	}
	if len(st.updates) != 0 {
		t.Errorf("got %d writes, want 0 for an unsaved user", len(st.updates))
	}
}
