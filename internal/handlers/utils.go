package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// UserIDHeader передаёт идентификатор пользователя, проверенный внешней аутентификацией.
const UserIDHeader = "X-User-ID"

var validate = validator.New()

// ErrorResponse представляет структуру ответа с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSONResponse отправляет JSON ответ
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeErrorResponse отправляет ответ с ошибкой
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	writeJSONResponse(w, statusCode, response)
}

// decodeRequest читает JSON тело и проверяет теги validate.
func decodeRequest(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errors.New("Invalid request body")
	}
	if err := validate.Struct(dest); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return fmt.Errorf("field %s failed on %s", strings.ToLower(fields[0].Field()), fields[0].Tag())
		}
		return err
	}
	return nil
}

// extractPathParam извлекает первый сегмент пути после префикса
func extractPathParam(path, prefix string) (string, error) {
	if !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("invalid path format")
	}

	// Убираем префикс и возможный суффикс
	value := strings.Split(strings.TrimPrefix(path, prefix), "/")[0]
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("missing path parameter")
	}
	return value, nil
}
