package authz

import (
	"context"
	"errors"
	"testing"
)

func TestEveryActionHasRequirement(t *testing.T) {
	actions := []Action{
		ActionView, ActionIngest, ActionPause, ActionResume, ActionReExecute, ActionSetNormal,
		ActionArchive, ActionRemove, ActionRecover, ActionReproduce, ActionReload, ActionRunRetention,
	}
	for _, action := range actions {
		if _, ok := Required(action); !ok {
			t.Fatalf("action %s has no requirement", action)
		}
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		action  Action
		allowed bool
	}{
		{"viewer reads", RoleViewer, ActionView, true},
		{"viewer cannot pause", RoleViewer, ActionPause, false},
		{"operator pauses", RoleOperator, ActionPause, true},
		{"operator cannot remove", RoleOperator, ActionRemove, false},
		{"operator cannot override", RoleOperator, ActionSetNormal, false},
		{"admin overrides", RoleAdmin, ActionSetNormal, true},
		{"unknown role", Role("guest"), ActionView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithPrincipal(context.Background(), Principal{Name: "u", Role: tt.role})
			err := Check(ctx, tt.action)
			if tt.allowed && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected forbidden, got %v", err)
			}
		})
	}
}

func TestCheckWithoutPrincipal(t *testing.T) {
	if err := (Static{}).Check(context.Background(), ActionView); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without principal, got %v", err)
	}
}

func TestCheckUnknownAction(t *testing.T) {
	ctx := WithPrincipal(context.Background(), System)
	if err := Check(ctx, Action("launch")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for unknown action, got %v", err)
	}
}

func TestPermissionString(t *testing.T) {
	if got := (PermRead | PermEdit).String(); got != "read|edit" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := Permission(0).String(); got != "none" {
		t.Fatalf("unexpected string %q", got)
	}
}
