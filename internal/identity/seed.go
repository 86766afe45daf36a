package identity

import (
	"context"
	"errors"
	"fmt"

	"plainsmart.org/internal/obs"
)

// Seeder brings the store to a minimum viable state: the canonical roles and
// exactly one administrator. Every step checks for existence before
// creating, so running it on each startup is safe. The caller must let Seed
// finish before serving authentication requests.
type Seeder struct {
	svc           *Service
	roles         []string
	adminUsername string
	adminPassword string
}

// NewSeeder configures a Seeder with the canonical role list and the
// administrator seed credentials.
func NewSeeder(svc *Service, roles []string, adminUsername, adminPassword string) *Seeder {
	return &Seeder{
		svc:           svc,
		roles:         roles,
		adminUsername: adminUsername,
		adminPassword: adminPassword,
	}
}

// Seed is idempotent: re-running never duplicates roles or creates a second
// administrator.
func (s *Seeder) Seed(ctx context.Context) error {
	for _, role := range s.roles {
		created, err := s.svc.EnsureRole(ctx, role)
		if err != nil {
			return fmt.Errorf("ensure role %q: %w", role, err)
		}
		if created {
			obs.Info("seeded role", map[string]any{"role": role})
		}
	}

	admins, err := s.svc.ListAccountsInRole(ctx, "administrator")
	if err != nil {
		return fmt.Errorf("list administrators: %w", err)
	}
	if len(admins) > 0 {
		return nil
	}

	if _, err := s.svc.FindByUsername(ctx, s.adminUsername); err == nil {
		// Account exists but lost the role somehow; reattach instead of
		// creating a duplicate.
		if err := s.svc.AssignRole(ctx, s.adminUsername, "administrator"); err != nil {
			return fmt.Errorf("restore administrator role: %w", err)
		}
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	account, err := s.svc.CreateAccount(ctx, s.adminUsername, s.adminPassword, "Admin", "Admin")
	if err != nil {
		return fmt.Errorf("create administrator: %w", err)
	}
	if err := s.svc.AssignRole(ctx, account.Username, "administrator"); err != nil {
		return fmt.Errorf("assign administrator role: %w", err)
	}
	obs.Info("seeded administrator account", map[string]any{"username": account.Username})
	return nil
}
