package core

import "github.com/google/uuid"

// ResourceID identifies a resource across instances sharing a context.
type ResourceID = uuid.UUID

// IdentifierAcquireNewID hands out a fresh resource identity.
func IdentifierAcquireNewID() ResourceID {
	return uuid.New()
}

// NilID is the identity of nothing.
var NilID = uuid.Nil
