package policy

// ListScope narrows the set of records visible in a listing.
type ListScope int

const (
	// ScopeAll leaves the base set unfiltered.
	ScopeAll ListScope = iota

	// ScopeSelf restricts the set to records owned by the actor.
	ScopeSelf

	// ScopeNone is the empty set.
	ScopeNone
)

// ScopeList decides how a listing is narrowed for the actor. Single
// object fetches are governed by CanAccessUser instead and must pass
// listing=false, which always yields ScopeAll.
func ScopeList(actor Identity, listing bool) ListScope {
	if !listing || actor.Superuser {
		return ScopeAll
	}
	if !actor.Authenticated {
		return ScopeNone
	}
	if actor.Staff {
		return ScopeAll
	}
	return ScopeSelf
}
