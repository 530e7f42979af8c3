package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novavida/novavida-backend/api/responses"
	"github.com/novavida/novavida-backend/api/validators"
	"github.com/novavida/novavida-backend/internal/purge"
	"github.com/novavida/novavida-backend/pkg/enums"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/logger"
	"github.com/novavida/novavida-backend/pkg/pagination"
)

type purgeRunRequest struct {
	Year  int    `json:"year" validate:"required"`
	Month int    `json:"month" validate:"required"`
	Mode  string `json:"mode" validate:"required,oneof=preview execute"`
}

// RunPurge previews or executes a commission purge for one calendar month.
// Preview reports what would be reversed without touching balances.
func RunPurge(svc purge.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purge service unavailable"))
			return
		}

		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req purgeRunRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mode, err := enums.ParsePurgeMode(req.Mode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid purge mode"))
			return
		}

		run, err := svc.Run(r.Context(), purge.Input{
			Year:    req.Year,
			Month:   req.Month,
			Mode:    mode,
			ActorID: adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, run)
	}
}

// ListPurgeRuns returns persisted purge reports, newest first.
func ListPurgeRuns(svc purge.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purge service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		runs, next, err := svc.ListRuns(r.Context(), pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"runs":       runs,
			"nextCursor": next,
		})
	}
}

// GetPurgeRun returns one purge run with its per-account details.
func GetPurgeRun(svc purge.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purge service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "runId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "run id is required"))
			return
		}
		runID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid run id"))
			return
		}

		run, err := svc.GetRun(r.Context(), runID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, run)
	}
}
