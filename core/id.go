package core

import "github.com/google/uuid"

// NewID returns a new random UUID string used for invocation and document ids.
func NewID() string { return uuid.NewString() }
