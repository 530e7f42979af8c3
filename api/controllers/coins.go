package controllers

import (
	"net/http"

	"github.com/novavida/novavida-backend/api/responses"
	"github.com/novavida/novavida-backend/api/validators"
	"github.com/novavida/novavida-backend/internal/coins"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/logger"
)

type coinsCheckRequest struct {
	Action   string `json:"action" validate:"required,oneof=status earn"`
	Coins    int64  `json:"coins" validate:"omitempty,min=1"`
	GameType string `json:"gameType" validate:"omitempty,max=64"`
	Level    int    `json:"level" validate:"omitempty,min=0"`
}

// CoinsCheck answers the game client's cap probe. The status action reports
// the caller's monthly headroom and multiplier; the earn action records an
// award server side and returns what was actually approved.
func CoinsCheck(svc coins.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coins service unavailable"))
			return
		}

		accountID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req coinsCheckRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch req.Action {
		case "status":
			status, err := svc.Status(r.Context(), accountID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, status)
		case "earn":
			result, err := svc.Earn(r.Context(), accountID, coins.EarnInput{
				Coins:    req.Coins,
				GameType: validators.SanitizeString(req.GameType, 64),
				Level:    req.Level,
			})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unsupported action"))
		}
	}
}
