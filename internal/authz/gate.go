// Package authz is the single source of truth for permission decisions.
//
// Both the API handlers and the web handlers call Authorize with the same
// identity and resource descriptors, so the two surfaces can never enforce
// divergent rules. Authorize returns a plain decision and never an error:
// callers cannot forget to handle an authorization failure.
package authz

import "github.com/google/uuid"

// Action is an operation an identity wants to perform on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Kind classifies the resource under protection.
type Kind string

const (
	KindPost     Kind = "post"
	KindComment  Kind = "comment"
	KindCategory Kind = "category"
	KindProfile  Kind = "profile"
)

// Identity describes the caller. The zero value is the anonymous identity.
type Identity struct {
	Authenticated bool
	AccountID     uuid.UUID
	Staff         bool
}

// Anonymous is the identity of an unauthenticated request.
var Anonymous = Identity{}

// Resource describes the object being acted on.
type Resource struct {
	Kind      Kind
	OwnerID   uuid.UUID
	Published bool
}

// Decision is the outcome of an authorization check.
type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

// Authorize evaluates the access rules in order; the first matching rule
// wins.
//
//  1. Staff may perform any action on any resource.
//  2. Anonymous identities may only read published resources.
//  3. Authenticated identities may read published resources and their own
//     unpublished ones; they may create comments; they may update or
//     delete only their own comments and their own profile. Posts and
//     categories are staff-managed.
func Authorize(id Identity, action Action, res Resource) Decision {
	if id.Authenticated && id.Staff {
		return Allow
	}

	if !id.Authenticated {
		if action == ActionRead && res.Published {
			return Allow
		}
		return Deny
	}

	owner := res.OwnerID != uuid.Nil && res.OwnerID == id.AccountID

	switch action {
	case ActionRead:
		if res.Published || owner {
			return Allow
		}
		return Deny
	case ActionCreate:
		// Creation has no owner yet; non-staff may only add comments.
		return Decision(res.Kind == KindComment)
	case ActionUpdate, ActionDelete:
		if owner && (res.Kind == KindComment || res.Kind == KindProfile) {
			return Allow
		}
		return Deny
	default:
		return Deny
	}
}
