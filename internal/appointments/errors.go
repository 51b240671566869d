package appointments

import "github.com/equicare/equicare-platform/internal/apperr"

// Sentinel errors for the negotiation machine. Matching is by kind via
// errors.Is, so wrapped variants with richer messages still compare equal.
var (
	ErrNotFound          = apperr.New(apperr.KindNotFound, "appointment not found")
	ErrForbidden         = apperr.New(apperr.KindForbidden, "actor may not perform this transition")
	ErrInvalidState      = apperr.New(apperr.KindInvalidState, "transition not legal from current status")
	ErrIncompletePricing = apperr.New(apperr.KindIncompletePricing, "price and duration are required before confirmation")
	ErrConflict          = apperr.New(apperr.KindConflict, "appointment was modified concurrently")
)
