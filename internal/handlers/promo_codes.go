package handlers

import (
	"net/http"
	"strconv"

	"promo-system/internal/logger"
	"promo-system/internal/models"
)

const promoCodesPath = "/api/promo-codes/"

// PromoHandler обрабатывает промокоды.
type PromoHandler struct {
	promoService PromoService
	log          *logger.Logger
}

// NewPromoHandler создаёт новый обработчик промокодов.
func NewPromoHandler(promoService PromoService, log *logger.Logger) *PromoHandler {
	return &PromoHandler{
		promoService: promoService,
		log:          log,
	}
}

// CreatePromoCode создаёт или перезаписывает промокод.
func (h *PromoHandler) CreatePromoCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreatePromoCodeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	promo, err := h.promoService.CreatePromoCode(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create promo code")
		return
	}

	writeJSONResponse(w, http.StatusCreated, promo)
}

// ListPromoCodes возвращает последние созданные промокоды.
func (h *PromoHandler) ListPromoCodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 0 {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = v
	}

	promos, err := h.promoService.ListRecentPromos(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list promo codes")
		return
	}

	writeJSONResponse(w, http.StatusOK, promos)
}

// GetPromoCode возвращает промокод по коду.
func (h *PromoHandler) GetPromoCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	code, err := extractPathParam(r.URL.Path, promoCodesPath)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	promo, err := h.promoService.GetPromoCode(r.Context(), code)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get promo code")
		return
	}

	writeJSONResponse(w, http.StatusOK, promo)
}

// DeletePromoCode удаляет промокод.
func (h *PromoHandler) DeletePromoCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	code, err := extractPathParam(r.URL.Path, promoCodesPath)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.promoService.DeletePromoCode(r.Context(), code); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete promo code")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Promo code deleted"})
}
