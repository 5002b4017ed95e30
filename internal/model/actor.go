package model

import "strings"

// Actor is the authenticated caller as resolved by the JWT middleware.
// The engine only records it; authorization happens before the engine
// runs.  The zero value is an anonymous actor.
type Actor struct {
	UserID   string
	Username string
	Roles    []string
}

// IsAnonymous reports whether no identity was attached to the request.
func (a Actor) IsAnonymous() bool {
	return a.UserID == "" && a.Username == ""
}

// HasRole reports whether the actor carries any of the given roles.
func (a Actor) HasRole(roles ...string) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}
