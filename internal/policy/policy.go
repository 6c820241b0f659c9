// Package policy decides who may read or write which user-owned
// records. Decisions are pure functions over an explicit Identity
// value; nothing here touches the database or the request.
package policy

import "net/http"

// Identity is the resolved caller of a request. The zero value is the
// anonymous identity.
type Identity struct {
	ID            int
	Authenticated bool
	Staff         bool
	Superuser     bool
}

// Anonymous is the identity of an unauthenticated request.
var Anonymous = Identity{}

// SafeMethod reports whether the HTTP method belongs to the read-only
// class (GET/HEAD/OPTIONS).
func SafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// CanAccessUser decides whether actor may perform an operation of the
// given verb class against the user record identified by targetID.
//
//   - Unauthenticated callers are always denied.
//   - A user can access their own record with any verb.
//   - A superuser can access any record with any verb.
//   - Staff can access any record with safe verbs only.
//
// Creating a new user is not an object-level decision and is open to
// anyone; it never reaches this function.
func CanAccessUser(actor Identity, targetID int, safe bool) bool {
	if !actor.Authenticated {
		return false
	}
	if actor.Superuser || actor.ID == targetID {
		return true
	}
	if !safe {
		return false
	}
	return actor.Staff
}

// CanResolveSelf reports whether the "me" alias may be resolved for
// the actor. The alias must be rejected for anonymous callers before
// any record lookup happens, so a missing record can never mask the
// authorization failure.
func CanResolveSelf(actor Identity) bool {
	return actor.Authenticated
}

// CanCloseUser decides whether actor may close the target account.
// Closing is an administrative status transition, not a delete.
func CanCloseUser(actor Identity) bool {
	return actor.Authenticated && actor.Superuser
}
