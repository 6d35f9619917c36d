package handlers

import (
	"errors"
	"net/http"

	"promo-system/internal/apperror"
	"promo-system/internal/logger"
)

func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string) {
	switch apperror.KindOf(err) {
	case apperror.KindUnauthenticated:
		writeErrorResponse(w, http.StatusUnauthorized, err.Error())
	case apperror.KindExhausted:
		writeErrorResponse(w, http.StatusGone, err.Error())
	case apperror.KindAlreadyRedeemed:
		writeErrorResponse(w, http.StatusConflict, err.Error())
	case apperror.KindInvalidCode:
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case apperror.KindNotFound:
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case apperror.KindValidation:
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case apperror.KindConflict:
		writeErrorResponse(w, http.StatusConflict, err.Error())
	default:
		if log != nil {
			log.WithError(err).Error(internalMessage)
		}
		if errors.Is(err, apperror.ErrTxConflict) {
			w.Header().Set("Retry-After", "1")
			writeErrorResponse(w, http.StatusServiceUnavailable, internalMessage)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, internalMessage)
	}
}
