// Package marketerr defines the error kinds shared by the marketplace
// components. Callers match them with errors.Is; components wrap them with
// context using fmt.Errorf("...: %w").
package marketerr

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrMissingField         = errors.New("missing required field")
	ErrAgentNotRegistered   = errors.New("agent not registered")
	ErrAgentExists          = errors.New("agent already registered")
	ErrIntelligenceNotFound = errors.New("intelligence not found")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrRateLimited          = errors.New("rate limit exceeded")
)
