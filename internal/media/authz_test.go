package media

import (
	"errors"
	"reflect"
	"testing"
)

func TestAuthorize(t *testing.T) {
	perms := map[string][]string{
		"logos":    {"admin", "marketing"},
		"trainers": {},
		"*":        {"admin"},
	}
	admin := &Principal{ID: "1", Roles: []string{"admin"}}
	marketer := &Principal{ID: "2", Roles: []string{"marketing"}}
	plain := &Principal{ID: "3"}

	tests := []struct {
		name      string
		enforce   bool
		principal *Principal
		dir       string
		intent    Intent
		wantRoles []string // nil means allowed
		anonymous bool
	}{
		{name: "read always allowed", enforce: true, principal: plain, dir: "logos", intent: IntentRead},
		{name: "anonymous read denied", enforce: false, principal: nil, dir: "logos", intent: IntentRead, anonymous: true},
		{name: "anonymous write denied", enforce: false, principal: nil, dir: "misc", intent: IntentWrite, anonymous: true},
		{name: "enforcement off", enforce: false, principal: plain, dir: "logos/brand", intent: IntentWrite},
		{name: "role match", enforce: true, principal: marketer, dir: "logos/brand", intent: IntentWrite},
		{name: "role mismatch", enforce: true, principal: plain, dir: "logos/brand", intent: IntentWrite, wantRoles: []string{"admin", "marketing"}},
		{name: "empty list allows everyone", enforce: true, principal: plain, dir: "trainers", intent: IntentWrite},
		{name: "wildcard fallback denies", enforce: true, principal: marketer, dir: "horses", intent: IntentWrite, wantRoles: []string{"admin"}},
		{name: "wildcard fallback allows", enforce: true, principal: admin, dir: "horses/x", intent: IntentWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewPolicy(tt.enforce, perms).Authorize(tt.principal, tt.dir, tt.intent)
			if tt.wantRoles == nil && !tt.anonymous {
				if err != nil {
					t.Fatalf("expected allow, got %v", err)
				}
				return
			}

			var ue *UnauthorizedError
			if !errors.As(err, &ue) || !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("err = %v, want *UnauthorizedError", err)
			}
			if ue.Anonymous() != tt.anonymous {
				t.Errorf("Anonymous = %v, want %v", ue.Anonymous(), tt.anonymous)
			}
			if !tt.anonymous && !reflect.DeepEqual(ue.RequiredRoles, tt.wantRoles) {
				t.Errorf("RequiredRoles = %v, want %v", ue.RequiredRoles, tt.wantRoles)
			}
		})
	}
}

func TestPolicyNoWildcard(t *testing.T) {
	p := NewPolicy(true, map[string][]string{"logos": {"admin"}})
	if err := p.Authorize(&Principal{ID: "x"}, "misc", IntentWrite); err != nil {
		t.Errorf("root without rules and no wildcard should allow: %v", err)
	}
}
