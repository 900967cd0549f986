package social

import "errors"

// Expected, recoverable outcomes of friend-request and friendship
// operations. The REST layer maps these to HTTP status codes; anything
// else is an internal storage error.
var (
	ErrSelfRequest       = errors.New("social: cannot send a friend request to yourself")
	ErrDuplicatePending  = errors.New("social: a pending request for this pair already exists")
	ErrAlreadyFriends    = errors.New("social: users are already friends")
	ErrNotFound          = errors.New("social: not found")
	ErrInvalidTransition = errors.New("social: request is no longer pending")
)

// errConflict signals a lost race on the conditional status update. It is
// resolved to ErrNotFound/ErrInvalidTransition before leaving the package.
var errConflict = errors.New("social: concurrent transition conflict")
