package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shearline/booking-core/internal/apperr"
)

// errorStatus maps an apperr.Kind to the HTTP status §6 expects (409 on
// conflict, 400 on validation, etc.), replacing the teacher's
// strings.Contains(err.Error(), "not found") style of error classification.
var errorStatus = map[apperr.Kind]int{
	apperr.KindValidation:           http.StatusBadRequest,
	apperr.KindUnauthorized:         http.StatusUnauthorized,
	apperr.KindNotFound:             http.StatusNotFound,
	apperr.KindInvalidState:         http.StatusConflict,
	apperr.KindPolicyDenied:         http.StatusForbidden,
	apperr.KindConflict:             http.StatusConflict,
	apperr.KindOptionInvalid:        http.StatusBadRequest,
	apperr.KindFrequentNotRegistered: http.StatusUnprocessableEntity,
	apperr.KindInternal:             http.StatusInternalServerError,
}

// respondError writes a JSON error body shaped {error:{code,message}} at the
// status code that matches err's classified apperr.Kind.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status, ok := errorStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": gin.H{"code": kind, "message": err.Error()}})
}
