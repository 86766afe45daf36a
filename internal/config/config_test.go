package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.Issuer != "identity-api" {
		t.Fatalf("unexpected issuer: %s", cfg.Issuer)
	}
	if cfg.AccessTTL != 900*time.Second {
		t.Fatalf("unexpected access ttl: %s", cfg.AccessTTL)
	}
	if len(cfg.Audience) != 1 || cfg.Audience[0] != "WebAPI" {
		t.Fatalf("unexpected audience: %v", cfg.Audience)
	}
	if len(cfg.Roles) != 2 || cfg.Roles[0] != "administrator" || cfg.Roles[1] != "user" {
		t.Fatalf("unexpected roles: %v", cfg.Roles)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("IDENTITY_ADDR", ":9090")
	t.Setenv("IDENTITY_ACCESS_TTL", "5m")
	t.Setenv("IDENTITY_ROLES", "administrator,user,auditor")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("unexpected access ttl: %s", cfg.AccessTTL)
	}
	if len(cfg.Roles) != 3 || cfg.Roles[2] != "auditor" {
		t.Fatalf("unexpected roles: %v", cfg.Roles)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("IDENTITY_ACCESS_TTL", "-5m")
	if _, err := Load(); err == nil {
		t.Fatalf("expected negative access ttl to be rejected")
	}
}

func TestLoadRejectsEmptySeedCredentials(t *testing.T) {
	t.Setenv("IDENTITY_ADMIN_PASSWORD", " ")
	if _, err := Load(); err == nil {
		t.Fatalf("expected blank seed password to be rejected")
	}
}

func TestClientRegistrations(t *testing.T) {
	clients := Clients()
	if len(clients) != 1 {
		t.Fatalf("unexpected client count: %d", len(clients))
	}
	spa := clients[0]
	if spa.ID != "AngularSPA" || !spa.OfflineAccess {
		t.Fatalf("unexpected SPA registration: %+v", spa)
	}
	if !spa.AllowsScope("WebAPI") || spa.AllowsScope("payments") {
		t.Fatalf("scope check misbehaves")
	}
	for _, s := range spa.AllowedScopes {
		found := false
		for _, known := range KnownScopes {
			if s == known {
				found = true
			}
		}
		if !found {
			t.Fatalf("client references undefined scope %q", s)
		}
	}
}

func TestPolicyRegistrations(t *testing.T) {
	specs := Policies()
	byName := map[string]PolicySpec{}
	for _, p := range specs {
		byName[p.Name] = p
	}
	manage, ok := byName["Manage Accounts"]
	if !ok || len(manage.Values) != 1 || manage.Values[0] != "administrator" {
		t.Fatalf("unexpected Manage Accounts policy: %+v", manage)
	}
	access, ok := byName["Access Resources"]
	if !ok || len(access.Values) != 2 {
		t.Fatalf("unexpected Access Resources policy: %+v", access)
	}
}
