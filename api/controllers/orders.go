package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novavida/novavida-backend/api/middleware"
	"github.com/novavida/novavida-backend/api/responses"
	"github.com/novavida/novavida-backend/api/validators"
	"github.com/novavida/novavida-backend/internal/commission"
	"github.com/novavida/novavida-backend/pkg/db/models"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/logger"
)

type commissionEngine interface {
	ConfirmAndDistribute(ctx context.Context, orderID, adminID uuid.UUID) (*commission.ConfirmationResult, error)
	Reject(ctx context.Context, orderID, adminID uuid.UUID) (*models.Order, error)
	BulkConfirmAndDistribute(ctx context.Context, buyerID, adminID uuid.UUID) ([]*commission.ConfirmationResult, error)
	Redistribute(ctx context.Context, orderID, adminID uuid.UUID) (*commission.DistributionSummary, error)
	Payouts(ctx context.Context, orderID uuid.UUID) ([]models.CommissionPayout, error)
}

type orderDecisionRequest struct {
	Action string `json:"action" validate:"required,oneof=confirm reject"`
}

type bulkConfirmRequest struct {
	BuyerID string `json:"buyerId" validate:"required,uuid4"`
}

// OrderDecision confirms or rejects a pending order. Confirmation also
// runs the commission distribution for the buyer's sponsor chain.
func OrderDecision(engine commissionEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission engine unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req orderDecisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch req.Action {
		case "confirm":
			result, err := engine.ConfirmAndDistribute(r.Context(), orderID, adminID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)
		case "reject":
			order, err := engine.Reject(r.Context(), orderID, adminID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, order)
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unsupported action"))
		}
	}
}

// BulkConfirmOrders confirms every pending order of one buyer in a single
// batch so point totals combine before the payout path is chosen.
func BulkConfirmOrders(engine commissionEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission engine unavailable"))
			return
		}

		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req bulkConfirmRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		buyerID, err := uuid.Parse(req.BuyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer id"))
			return
		}

		results, err := engine.BulkConfirmAndDistribute(r.Context(), buyerID, adminID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"confirmed": len(results),
			"orders":    results,
		})
	}
}

// RedistributeOrder resumes payout distribution for a confirmed order whose
// earlier run stopped partway. Already credited levels are left untouched.
func RedistributeOrder(engine commissionEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission engine unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := engine.Redistribute(r.Context(), orderID, adminID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// OrderPayouts lists the per-level completion records of one order so an
// operator can see which levels a distribution walk has credited.
func OrderPayouts(engine commissionEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission engine unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payouts, err := engine.Payouts(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"orderId": orderID,
			"payouts": payouts,
		})
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return id, nil
}

func actorID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.AccountIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing account context")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid account context")
	}
	return id, nil
}
