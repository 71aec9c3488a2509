package service

import "errors"

var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrForbidden indicates the actor lacks the required relationship to the entity.
	ErrForbidden = errors.New("operation not permitted for this user")
	// ErrInvalidParent indicates the referenced parent message does not resolve.
	ErrInvalidParent = errors.New("parent message does not exist")
)
