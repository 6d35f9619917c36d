package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"promo-system/internal/apperror"
	"promo-system/internal/config"
	"promo-system/internal/logger"
	"promo-system/internal/models"

	"github.com/shopspring/decimal"
)

type stubPromoService struct {
	promo     *models.PromoRecord
	err       error
	list      []*models.PromoRecord
	lastLimit int
	lastCode  string
}

func (s *stubPromoService) CreatePromoCode(ctx context.Context, req *models.CreatePromoCodeRequest) (*models.PromoRecord, error) {
	return s.promo, s.err
}
func (s *stubPromoService) GetPromoCode(ctx context.Context, code string) (*models.PromoRecord, error) {
	s.lastCode = code
	return s.promo, s.err
}
func (s *stubPromoService) DeletePromoCode(ctx context.Context, code string) error {
	s.lastCode = code
	return s.err
}
func (s *stubPromoService) ListRecentPromos(ctx context.Context, limit int) ([]*models.PromoRecord, error) {
	s.lastLimit = limit
	return s.list, s.err
}

func newTestHandlerLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func TestPromoHandler_CreateAndGet(t *testing.T) {
	p := &models.PromoRecord{
		Code:            "TEST",
		ActivationsLeft: 10,
		Value:           decimal.NewFromInt(50),
		Reward:          models.RewardMoney,
		UsersUsed:       models.UsageLedger{},
		CreatedAt:       time.Now(),
	}
	service := &stubPromoService{promo: p}
	handler := NewPromoHandler(service, newTestHandlerLogger())

	body := bytes.NewBufferString(`{"code":"TEST","activations":10,"value":"50","type":"money"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/promo-codes", body)
	rr := httptest.NewRecorder()
	handler.CreatePromoCode(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	var created models.PromoRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Reward != models.RewardMoney || !created.Value.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}

	reqGet := httptest.NewRequest(http.MethodGet, "/api/promo-codes/TEST", nil)
	rrGet := httptest.NewRecorder()
	handler.GetPromoCode(rrGet, reqGet)
	if rrGet.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rrGet.Code)
	}
	if service.lastCode != "TEST" {
		t.Fatalf("expected code from path, got %q", service.lastCode)
	}
}

func TestPromoHandler_CreatePromoCode_InvalidBody(t *testing.T) {
	handler := NewPromoHandler(&stubPromoService{}, newTestHandlerLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/promo-codes", bytes.NewBufferString(`{"code":`))
	rr := httptest.NewRecorder()
	handler.CreatePromoCode(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPromoHandler_CreatePromoCode_StructValidation(t *testing.T) {
	handler := NewPromoHandler(&stubPromoService{}, newTestHandlerLogger())

	for _, payload := range []string{
		`{"activations":1,"type":"money"}`,
		`{"code":"X","activations":-3,"type":"money"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/promo-codes", bytes.NewBufferString(payload))
		rr := httptest.NewRecorder()
		handler.CreatePromoCode(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", payload, rr.Code)
		}
	}
}

func TestPromoHandler_CreatePromoCode_ServiceValidationError(t *testing.T) {
	service := &stubPromoService{err: apperror.Validation("unsupported reward type", nil)}
	handler := NewPromoHandler(service, newTestHandlerLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/promo-codes", bytes.NewBufferString(`{"code":"X","activations":1,"type":"cashback"}`))
	rr := httptest.NewRecorder()
	handler.CreatePromoCode(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPromoHandler_GetPromoCode_InvalidPath(t *testing.T) {
	handler := NewPromoHandler(&stubPromoService{}, newTestHandlerLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/promo-codes/", nil)
	rr := httptest.NewRecorder()
	handler.GetPromoCode(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPromoHandler_List(t *testing.T) {
	service := &stubPromoService{list: []*models.PromoRecord{{Code: "A"}, {Code: "B"}}}
	handler := NewPromoHandler(service, newTestHandlerLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/promo-codes?limit=2", nil)
	rr := httptest.NewRecorder()
	handler.ListPromoCodes(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if service.lastLimit != 2 {
		t.Fatalf("expected limit 2, got %d", service.lastLimit)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/promo-codes", nil)
	rr = httptest.NewRecorder()
	handler.ListPromoCodes(rr, req)
	if service.lastLimit != 0 {
		t.Fatalf("missing limit must fall back to service default, got %d", service.lastLimit)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/promo-codes?limit=abc", nil)
	rr = httptest.NewRecorder()
	handler.ListPromoCodes(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestPromoHandler_MethodNotAllowed(t *testing.T) {
	handler := NewPromoHandler(&stubPromoService{}, newTestHandlerLogger())

	cases := []struct {
		method string
		path   string
		call   http.HandlerFunc
	}{
		{http.MethodGet, "/api/promo-codes", handler.CreatePromoCode},
		{http.MethodPost, "/api/promo-codes", handler.ListPromoCodes},
		{http.MethodPut, "/api/promo-codes/X", handler.GetPromoCode},
		{http.MethodGet, "/api/promo-codes/X", handler.DeletePromoCode},
	}

	for _, tc := range cases {
		rr := httptest.NewRecorder()
		tc.call(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestPromoHandler_ServiceErrors(t *testing.T) {
	service := &stubPromoService{err: errors.New("fail")}
	handler := NewPromoHandler(service, newTestHandlerLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/promo-codes", bytes.NewBufferString(`{"code":"X","activations":1,"type":"money"}`))
	rr := httptest.NewRecorder()
	handler.CreatePromoCode(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/promo-codes/X", nil)
	rr = httptest.NewRecorder()
	handler.GetPromoCode(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/promo-codes/X", nil)
	rr = httptest.NewRecorder()
	handler.DeletePromoCode(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/promo-codes", nil)
	rr = httptest.NewRecorder()
	handler.ListPromoCodes(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestPromoHandler_TxConflictIsRetryable(t *testing.T) {
	service := &stubPromoService{err: fmt.Errorf("failed to save promo code: %w", apperror.ErrTxConflict)}
	handler := NewPromoHandler(service, newTestHandlerLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/promo-codes", bytes.NewBufferString(`{"code":"X","activations":1,"type":"money"}`))
	rr := httptest.NewRecorder()
	handler.CreatePromoCode(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestPromoHandler_NotFound(t *testing.T) {
	service := &stubPromoService{err: apperror.NotFound("promo code not found", nil)}
	handler := NewPromoHandler(service, newTestHandlerLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/promo-codes/ABSENT", nil)
	rr := httptest.NewRecorder()
	handler.GetPromoCode(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/promo-codes/ABSENT", nil)
	rr = httptest.NewRecorder()
	handler.DeletePromoCode(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if service.lastCode != "ABSENT" {
		t.Fatalf("expected code from path, got %q", service.lastCode)
	}
}

func TestPromoHandler_Delete(t *testing.T) {
	handler := NewPromoHandler(&stubPromoService{}, newTestHandlerLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/promo-codes/TEMP", nil)
	rr := httptest.NewRecorder()
	handler.DeletePromoCode(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
