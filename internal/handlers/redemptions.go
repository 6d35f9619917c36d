package handlers

import (
	"encoding/json"
	"net/http"

	"promo-system/internal/logger"
	"promo-system/internal/models"
)

// RedemptionHandler обрабатывает активацию промокодов пользователем.
type RedemptionHandler struct {
	service RedemptionService
	log     *logger.Logger
}

// NewRedemptionHandler создаёт обработчик активаций.
func NewRedemptionHandler(service RedemptionService, log *logger.Logger) *RedemptionHandler {
	return &RedemptionHandler{
		service: service,
		log:     log,
	}
}

// Redeem активирует промокод для пользователя из заголовка X-User-ID.
// Проверка пустого кода остаётся за сервисом, чтобы отсутствие входа имело приоритет.
func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.RedeemPromoCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	outcome, err := h.service.Redeem(r.Context(), r.Header.Get(UserIDHeader), req.Code)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to redeem promo code")
		return
	}

	writeJSONResponse(w, http.StatusOK, outcome)
}

// Pending возвращает отложенный бонус пользователя.
func (h *RedemptionHandler) Pending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	pending, err := h.service.PendingPromo(r.Context(), r.Header.Get(UserIDHeader))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get pending promo")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"pending": pending})
}
