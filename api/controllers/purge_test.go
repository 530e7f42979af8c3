package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/novavida/novavida-backend/internal/purge"
	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
	"github.com/novavida/novavida-backend/pkg/pagination"
)

type stubPurgeService struct {
	runFn  func(ctx context.Context, input purge.Input) (*models.PurgeRun, error)
	getFn  func(ctx context.Context, id uuid.UUID) (*models.PurgeRun, error)
	listFn func(ctx context.Context, params pagination.Params) ([]models.PurgeRun, string, error)
}

func (s stubPurgeService) Run(ctx context.Context, input purge.Input) (*models.PurgeRun, error) {
	if s.runFn != nil {
		return s.runFn(ctx, input)
	}
	return &models.PurgeRun{}, nil
}

func (s stubPurgeService) GetRun(ctx context.Context, id uuid.UUID) (*models.PurgeRun, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return &models.PurgeRun{}, nil
}

func (s stubPurgeService) ListRuns(ctx context.Context, params pagination.Params) ([]models.PurgeRun, string, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, "", nil
}

func TestRunPurgePreview(t *testing.T) {
	adminID := uuid.New()
	var got purge.Input
	svc := stubPurgeService{
		runFn: func(ctx context.Context, input purge.Input) (*models.PurgeRun, error) {
			got = input
			return &models.PurgeRun{ID: uuid.New(), Year: input.Year, Month: input.Month, Mode: input.Mode}, nil
		},
	}

	handler := RunPurge(svc, nil)
	body := `{"year":2026,"month":8,"mode":"preview"}`
	req := adminRequest(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), adminID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Year != 2026 || got.Month != 8 || got.Mode != enums.PurgeModePreview || got.ActorID != adminID {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestRunPurgeRejectsUnknownMode(t *testing.T) {
	handler := RunPurge(stubPurgeService{}, nil)
	body := `{"year":2026,"month":8,"mode":"dry-run"}`
	req := adminRequest(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListPurgeRunsPassesPagination(t *testing.T) {
	svc := stubPurgeService{
		listFn: func(ctx context.Context, params pagination.Params) ([]models.PurgeRun, string, error) {
			if params.Limit != 5 || params.Cursor != "abc" {
				t.Fatalf("unexpected params %+v", params)
			}
			return []models.PurgeRun{{ID: uuid.New()}}, "next", nil
		},
	}

	handler := ListPurgeRuns(svc, nil)
	req := adminRequest(httptest.NewRequest(http.MethodGet, "/?limit=5&cursor=abc", nil), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data struct {
			Runs       []models.PurgeRun `json:"runs"`
			NextCursor string            `json:"nextCursor"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Runs) != 1 || envelope.Data.NextCursor != "next" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestGetPurgeRun(t *testing.T) {
	runID := uuid.New()
	svc := stubPurgeService{
		getFn: func(ctx context.Context, id uuid.UUID) (*models.PurgeRun, error) {
			if id != runID {
				t.Fatalf("unexpected id %s", id)
			}
			return &models.PurgeRun{ID: id, Mode: enums.PurgeModeExecute}, nil
		},
	}

	handler := GetPurgeRun(svc, nil)
	req := adminRequest(withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "runId", runID.String()), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestGetPurgeRunValidatesID(t *testing.T) {
	handler := GetPurgeRun(stubPurgeService{}, nil)
	req := adminRequest(withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "runId", "zzz"), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
