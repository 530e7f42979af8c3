package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/novavida/novavida-backend/api/middleware"
	"github.com/novavida/novavida-backend/internal/coins"
	"github.com/novavida/novavida-backend/pkg/enums"
)

type stubCoinsService struct {
	statusFn func(ctx context.Context, accountID uuid.UUID) (*coins.Status, error)
	earnFn   func(ctx context.Context, accountID uuid.UUID, input coins.EarnInput) (*coins.EarnResult, error)
}

func (s stubCoinsService) Status(ctx context.Context, accountID uuid.UUID) (*coins.Status, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, accountID)
	}
	return &coins.Status{}, nil
}

func (s stubCoinsService) Earn(ctx context.Context, accountID uuid.UUID, input coins.EarnInput) (*coins.EarnResult, error) {
	if s.earnFn != nil {
		return s.earnFn(ctx, accountID, input)
	}
	return &coins.EarnResult{}, nil
}

func playerRequest(body string, accountID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	ctx := middleware.WithAccountID(req.Context(), accountID.String())
	ctx = middleware.WithRole(ctx, string(enums.ActorRoleAccount))
	return req.WithContext(ctx)
}

func TestCoinsCheckStatus(t *testing.T) {
	accountID := uuid.New()
	svc := stubCoinsService{
		statusFn: func(ctx context.Context, id uuid.UUID) (*coins.Status, error) {
			if id != accountID {
				t.Fatalf("unexpected account %s", id)
			}
			return &coins.Status{Month: "2026-09", Earned: 5000, Cap: 20000, Remaining: 15000, Multiplier: 75}, nil
		},
	}

	handler := CoinsCheck(svc, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, playerRequest(`{"action":"status"}`, accountID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data coins.Status `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Remaining != 15000 || envelope.Data.Multiplier != 75 {
		t.Fatalf("unexpected status %+v", envelope.Data)
	}
}

func TestCoinsCheckEarn(t *testing.T) {
	accountID := uuid.New()
	svc := stubCoinsService{
		earnFn: func(ctx context.Context, id uuid.UUID, input coins.EarnInput) (*coins.EarnResult, error) {
			if input.Coins != 800 || input.GameType != "trivia" || input.Level != 3 {
				t.Fatalf("unexpected input %+v", input)
			}
			return &coins.EarnResult{Requested: 800, Approved: 600, Multiplier: 75}, nil
		},
	}

	handler := CoinsCheck(svc, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, playerRequest(`{"action":"earn","coins":800,"gameType":"trivia","level":3}`, accountID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data coins.EarnResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Approved != 600 {
		t.Fatalf("unexpected result %+v", envelope.Data)
	}
}

func TestCoinsCheckRejectsUnknownAction(t *testing.T) {
	handler := CoinsCheck(stubCoinsService{}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, playerRequest(`{"action":"spend"}`, uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCoinsCheckRequiresAuth(t *testing.T) {
	handler := CoinsCheck(stubCoinsService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"status"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
