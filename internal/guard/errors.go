package guard

import "errors"

// Every one of these is recovered inside the guard; they surface only in
// logs and in Decision.Cause.
var (
	ErrNoSession           = errors.New("no session")
	ErrProfileLookupFailed = errors.New("profile lookup failed")
	ErrMetadataWriteFailed = errors.New("metadata write-back failed")
	ErrResolutionTimeout   = errors.New("authorization check timed out")
	ErrUnknownRole         = errors.New("unknown role")
	ErrRoleUnresolved      = errors.New("role required but unresolved")
)
