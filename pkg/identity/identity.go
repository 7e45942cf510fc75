// Package identity resolves inbound contacts to users, creating them on
// first contact with a timezone inferred from their phone number.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/window"
)

var (
	// ErrInvalidContact is returned when a contact carries neither a usable
	// phone number nor an external id.
	ErrInvalidContact = errors.New("invalid contact")

	// ErrInvalidTimezone is returned by SetTimezone for unknown zone names.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

const unknownZone = "Etc/Unknown"

// Contact is the sender information carried by an inbound message.
type Contact struct {
	// ExternalID is the provider's stable id for the sender (WhatsApp WaId).
	// When empty, the E.164 number without its leading "+" is used.
	ExternalID string

	// Phone is the sender address, optionally prefixed with "whatsapp:".
	Phone string

	DisplayName string
}

// NormalizePhone strips a transport prefix and formats the number as E.164.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "whatsapp:"))
	if raw == "" {
		return "", fmt.Errorf("%w: empty phone number", ErrInvalidContact)
	}
	if !strings.HasPrefix(raw, "+") {
		raw = "+" + raw
	}

	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidContact, raw, err)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// InferTimezone returns the first IANA zone the number's prefix maps to, or
// UTC when the number cannot be parsed or maps to no known zone.
func InferTimezone(phone string) string {
	e164, err := NormalizePhone(phone)
	if err != nil {
		return "UTC"
	}
	num, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return "UTC"
	}

	zones, err := phonenumbers.GetTimezonesForNumber(num)
	if err != nil {
		return "UTC"
	}
	for _, z := range zones {
		if z != unknownZone && window.ValidTimezone(z) {
			return z
		}
	}
	return "UTC"
}

// Config holds the identity store's collaborators.
type Config struct {
	Users  storage.UserStore
	Logger *slog.Logger
}

// Store resolves contacts to users.
type Store struct {
	users  storage.UserStore
	logger *slog.Logger
}

// NewStore creates an identity store.
func NewStore(cfg Config) *Store {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Store{users: cfg.Users, logger: log}
}

// Resolve returns the user for c, creating it on first contact. An existing
// user's timezone is never changed here.
func (s *Store) Resolve(ctx context.Context, c Contact) (*storage.User, bool, error) {
	phone, err := NormalizePhone(c.Phone)
	if err != nil {
		return nil, false, err
	}

	externalID := strings.TrimSpace(c.ExternalID)
	if externalID == "" {
		externalID = strings.TrimPrefix(phone, "+")
	}

	user, isNew, err := s.users.InsertUser(ctx, &storage.User{
		ExternalID:  externalID,
		PhoneNumber: phone,
		Timezone:    InferTimezone(phone),
		DisplayName: c.DisplayName,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConstraint) {
			// The number is registered under another WaId. Retrying cannot
			// succeed until an operator merges or removes one of the users.
			s.logger.Warn("phone number already belongs to another user",
				"phone", phone,
				"external_id", externalID,
				"error", err,
			)
		}
		return nil, false, fmt.Errorf("resolving user %s: %w", externalID, err)
	}

	if isNew {
		s.logger.Info("user created",
			"user_id", user.ID,
			"external_id", user.ExternalID,
			"timezone", user.Timezone,
		)
	}
	return user, isNew, nil
}

// Lookup finds an existing user by phone number in any accepted format.
func (s *Store) Lookup(ctx context.Context, phone string) (*storage.User, error) {
	e164, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	return s.users.GetUserByPhone(ctx, e164)
}

// SetTimezone explicitly changes a user's timezone.
func (s *Store) SetTimezone(ctx context.Context, userID int64, tz string) error {
	if !window.ValidTimezone(tz) {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	if err := s.users.SetUserTimezone(ctx, userID, tz); err != nil {
		return fmt.Errorf("setting timezone for user %d: %w", userID, err)
	}
	s.logger.Info("user timezone changed", "user_id", userID, "timezone", tz)
	return nil
}
