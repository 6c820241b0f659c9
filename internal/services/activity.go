package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vitapersonal/authserver/internal/geo"
	"github.com/vitapersonal/authserver/internal/policy"
	"github.com/vitapersonal/authserver/internal/store"
	"github.com/vitapersonal/authserver/types"
)

// ActivityStore is the partial-write surface the updater needs.
type ActivityStore interface {
	UpdateActivity(ctx context.Context, id int, update store.ActivityUpdate) error
}

// ActivityService maintains per-request bookkeeping on user records:
// last activity, last IP, and the write-once registration IP with its
// derived locale.
type ActivityService struct {
	store    ActivityStore
	resolver geo.Resolver
	logger   *zap.Logger
}

// NewActivityService constructs the service. resolver may be nil, in
// which case locale derivation is skipped.
func NewActivityService(activityStore ActivityStore, resolver geo.Resolver, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{
		store:    activityStore,
		resolver: resolver,
		logger:   logger,
	}
}

// UpdateFromRequest refreshes the user's last-seen bookkeeping, at
// most once per request. The request marker in ctx guards re-entrant
// calls; the marker is set before the persistence call so a second
// invocation performs zero writes. Only changed columns are written.
//
// When registration_ip is unset this is the user's first-ever
// authenticated request: registration_ip is set once, and country and
// timezone are derived from it best-effort. A failed geolocation
// lookup is logged and skipped; it never fails the update.
func (s *ActivityService) UpdateFromRequest(ctx context.Context, user *types.User, remoteIP string) error {
	state := policy.StateFromContext(ctx)
	if state != nil && state.ActivityUpdated {
		return nil
	}

	now := time.Now()
	update := store.ActivityUpdate{LastActivity: &now}
	user.LastActivity = &now

	if user.LastIP != remoteIP {
		user.LastIP = remoteIP
		ip := remoteIP
		update.LastIP = &ip
	}

	if user.RegistrationIP == "" {
		ip := remoteIP
		user.RegistrationIP = ip
		update.RegistrationIP = &ip

		if country, zone, ok := s.deriveLocale(remoteIP); ok {
			user.Country = country
			update.Country = &country
			if zone != "" {
				user.Timezone = zone
				update.Timezone = &zone
			}
		}
	}

	if state != nil {
		state.ActivityUpdated = true
	}

	return s.store.UpdateActivity(ctx, user.ID, update)
}

// DeriveLocaleOnCreate runs the registration-time locale derivation
// on a user being registered. The user is mutated in place; when it
// has not been persisted yet (no ID) the insert carries the derived
// values and no separate write happens.
func (s *ActivityService) DeriveLocaleOnCreate(ctx context.Context, user *types.User) error {
	if user.RegistrationIP == "" {
		return nil
	}

	country, zone, ok := s.deriveLocale(user.RegistrationIP)
	if !ok {
		return nil
	}

	user.Country = country
	update := store.ActivityUpdate{Country: &country}
	if zone != "" {
		user.Timezone = zone
		update.Timezone = &zone
	}
	if user.ID == 0 {
		return nil
	}
	return s.store.UpdateActivity(ctx, user.ID, update)
}

func (s *ActivityService) deriveLocale(ip string) (country, zone string, ok bool) {
	if s.resolver == nil {
		return "", "", false
	}

	country, err := s.resolver.CountryCode(ip)
	if err != nil {
		s.logger.Warn("geolocation lookup failed",
			zap.String("ip", ip),
			zap.Error(err))
		return "", "", false
	}

	zone, _ = geo.TimezoneForCountry(country)
	return country, zone, true
}
