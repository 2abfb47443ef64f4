package server

import (
	"net/http"

	apperrors "github.com/daoyou-zhang/daoyoucode/internal/errors"
)

// HandleError writes err as a JSON error envelope. Executor failures should be
// converted with apperrors.FromExecutionError first so they keep their status.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
