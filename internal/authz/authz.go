// Package authz maps operator actions to the permission each one requires.
//
// The action table is static and built once; callers never reflect over
// handlers to discover requirements.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Action names an operation subject to authorization.
type Action string

const (
	ActionView         Action = "view"
	ActionIngest       Action = "ingest"
	ActionPause        Action = "pause"
	ActionResume       Action = "resume"
	ActionReExecute    Action = "re-execute"
	ActionSetNormal    Action = "set-normal"
	ActionArchive      Action = "archive"
	ActionRemove       Action = "remove"
	ActionRecover      Action = "recover"
	ActionReproduce    Action = "reproduce"
	ActionReload       Action = "reload"
	ActionRunRetention Action = "run-retention"
)

// Permission is a capability granted to a role.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermOperate
	PermEdit
	PermAdmin
)

func (p Permission) String() string {
	var names []string
	for _, entry := range []struct {
		perm Permission
		name string
	}{{PermRead, "read"}, {PermOperate, "operate"}, {PermEdit, "edit"}, {PermAdmin, "admin"}} {
		if p&entry.perm != 0 {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Role groups permissions.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var requirements = map[Action]Permission{
	ActionView:         PermRead,
	ActionIngest:       PermEdit,
	ActionPause:        PermOperate,
	ActionResume:       PermOperate,
	ActionReExecute:    PermOperate,
	ActionSetNormal:    PermAdmin,
	ActionArchive:      PermOperate,
	ActionRemove:       PermEdit,
	ActionRecover:      PermEdit,
	ActionReproduce:    PermEdit,
	ActionReload:       PermEdit,
	ActionRunRetention: PermAdmin,
}

var grants = map[Role]Permission{
	RoleViewer:   PermRead,
	RoleOperator: PermRead | PermOperate,
	RoleAdmin:    PermRead | PermOperate | PermEdit | PermAdmin,
}

// Required returns the permission an action needs.
func Required(action Action) (Permission, bool) {
	perm, ok := requirements[action]
	return perm, ok
}

// ErrForbidden reports a missing permission or principal.
var ErrForbidden = errors.New("forbidden")

// Principal is the identity a request runs as.
type Principal struct {
	Name string
	Role Role
}

// System is the principal used by the daemon and local CLI.
var System = Principal{Name: "system", Role: RoleAdmin}

// Allows reports whether p holds the permission action requires.
func (p Principal) Allows(action Action) bool {
	required, ok := requirements[action]
	if !ok {
		return false
	}
	return grants[p.Role]&required == required
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored in ctx.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authorizer decides whether the principal in ctx may perform action.
type Authorizer interface {
	Check(ctx context.Context, action Action) error
}

// Static authorizes against the built-in tables.
type Static struct{}

// Check implements Authorizer.
func (Static) Check(ctx context.Context, action Action) error {
	return Check(ctx, action)
}

// Check authorizes the principal in ctx for action.
func Check(ctx context.Context, action Action) error {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: no principal for %s", ErrForbidden, action)
	}
	if _, known := requirements[action]; !known {
		return fmt.Errorf("%w: unknown action %q", ErrForbidden, action)
	}
	if !p.Allows(action) {
		return fmt.Errorf("%w: %s (%s) lacks %s for %s", ErrForbidden, p.Name, p.Role, requirements[action], action)
	}
	return nil
}
