package models

import "github.com/google/uuid"

// Actor is the request-scoped identity passed into every core operation
type Actor struct {
	UserID    uuid.UUID
	IsAdmin   bool
	IPAddress string
	UserAgent string
}

// SystemActor is used by background jobs
func SystemActor() Actor {
	return Actor{IsAdmin: true, IPAddress: "system", UserAgent: "system"}
}

// CanAccess reports whether the actor may see a resource owned by ownerID
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	return a.IsAdmin || a.UserID == ownerID
}
