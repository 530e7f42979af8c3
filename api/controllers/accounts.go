package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novavida/novavida-backend/api/middleware"
	"github.com/novavida/novavida-backend/api/responses"
	"github.com/novavida/novavida-backend/api/validators"
	internalaccounts "github.com/novavida/novavida-backend/internal/accounts"
	"github.com/novavida/novavida-backend/internal/activation"
	"github.com/novavida/novavida-backend/internal/ledger"
	"github.com/novavida/novavida-backend/pkg/enums"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/logger"
	"github.com/novavida/novavida-backend/pkg/pagination"
)

// AccountSnapshot returns the point, balance, and quick-start state of one
// account. Callers can only read their own snapshot unless they are admins.
func AccountSnapshot(svc internalaccounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		username, err := authorizedUsername(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.GetByUsername(r.Context(), username)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// AccountHistory returns the account's ledger entries, newest first, with
// cursor pagination.
func AccountHistory(svc internalaccounts.Service, ledgerSvc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || ledgerSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		username, err := authorizedUsername(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.GetByUsername(r.Context(), username)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		entries, next, err := ledgerSvc.History(r.Context(), account.ID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"entries":    entries,
			"nextCursor": next,
		})
	}
}

// AccountActivation reports whether the account met the monthly purchase
// requirement for the requested month. Defaults to the current month.
func AccountActivation(svc activation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "activation service unavailable"))
			return
		}

		username, err := authorizedUsername(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		year, err := validators.ParseQueryInt(r, "year", 0, 0, 2200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		month, err := validators.ParseQueryInt(r, "month", 0, 0, 12)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.Status(r.Context(), username, year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

type recalculateRequest struct {
	Apply bool `json:"apply"`
}

// RecalculateAccount re-derives an account's cached aggregates from its full
// ledger history and optionally applies the corrected values.
func RecalculateAccount(svc internalaccounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "accountId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "account id is required"))
			return
		}
		accountID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account id"))
			return
		}

		// The body is optional. An empty body previews without applying.
		var req recalculateRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		report, err := svc.Recalculate(r.Context(), accountID, req.Apply)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// authorizedUsername resolves the username path parameter and enforces that
// non-admin callers only touch their own account.
func authorizedUsername(r *http.Request) (string, error) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "username is required")
	}

	role := middleware.RoleFromContext(r.Context())
	if role == string(enums.ActorRoleAdmin) {
		return username, nil
	}
	caller := middleware.UsernameFromContext(r.Context())
	if caller == "" || !strings.EqualFold(caller, username) {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "cannot access another account")
	}
	return username, nil
}
