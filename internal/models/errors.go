package models

import "errors"

// Ledger error taxonomy. Operations wrap these with fmt.Errorf("...: %w")
// and callers classify with errors.Is; anything that matches none of them
// is an internal store failure and propagates unchanged.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
)
