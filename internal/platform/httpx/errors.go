package httpx

import (
	"net/http"

	"github.com/cellarkeep/cellarkeep/internal/shared"
)

// RespondError maps a classified error to an HTTP error envelope. Unclassified
// errors are treated as persistence failures and answered generically.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	Error(w, statusFor(kind), string(kind), shared.UserSafeMessage(err))
}

func statusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindDuplicate, shared.KindInsufficientStock, shared.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}
