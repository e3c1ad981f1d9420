package shared

import "errors"

// Error kinds shared by every module. Domain errors wrap exactly one kind so the
// transport layer can map them without knowing the module.
var (
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request conflicts with current quantities.
	ErrConflict = errors.New("conflict")
	// ErrDuplicate indicates a unique constraint or idempotency key clash.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidState indicates the entity is in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrPermission indicates the actor lacks the required role.
	ErrPermission = errors.New("permission denied")
	// ErrLedgerDrift indicates stored ledger state disagrees with derived state.
	ErrLedgerDrift = errors.New("ledger drift detected")
)

// UserSafeMessage returns an error message that can be shown to API callers.
// Storage failures are masked.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, kind := range []error{ErrValidation, ErrConflict, ErrDuplicate, ErrInvalidState, ErrNotFound, ErrPermission} {
		if errors.Is(err, kind) {
			return err.Error()
		}
	}
	return "internal error"
}
