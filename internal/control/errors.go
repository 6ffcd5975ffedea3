package control

import "errors"

// Validation errors. They are returned before any bus call is made.
var (
	ErrUnknownCircuit = errors.New("control: unknown circuit")
	ErrNotDimmable    = errors.New("control: circuit is not dimmable")
	ErrInvalidLevel   = errors.New("control: level must be between 0 and 100")
	ErrNoConfig       = errors.New("control: configuration not loaded")
)

// ErrInvalidOptions is returned by NewService for incomplete options.
var ErrInvalidOptions = errors.New("control: invalid options")
