package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/internal/accounts"
	"github.com/novavida/novavida-backend/internal/ledger"
	"github.com/novavida/novavida-backend/internal/orders"
	dbpkg "github.com/novavida/novavida-backend/pkg/db"
	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/logger"
	"github.com/novavida/novavida-backend/pkg/outbox"
	"github.com/novavida/novavida-backend/pkg/points"
)

// TxRunner abstracts the transaction boundary so the engine can run against
// the shared client in production and a plain connection in tests.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PayoutRecorder receives per-level payout facts for analytics. Implementations
// must tolerate being called after the payout is already durable.
type PayoutRecorder interface {
	RecordPayouts(ctx context.Context, payouts []models.CommissionPayout) error
}

// Engine owns order confirmation and the sponsor-chain payout walk.
//
// Confirmation is exactly-once: a single transaction that CASes the order
// status, credits the buyer's personal points, appends the purchase entry and
// decides the payout path. The walk that follows is at-least-once: each level
// commits its own transaction keyed by a unique (order, level) completion
// record, so replays skip levels that were already credited.
type Engine struct {
	runner   TxRunner
	orders   orders.Repository
	accounts accounts.Repository
	ledger   ledger.Repository
	payouts  PayoutRepository
	outbox   *outbox.Service
	recorder PayoutRecorder
	logg     *logger.Logger
	now      func() time.Time
}

// EngineConfig wires the engine's collaborators. Outbox and Recorder are
// optional; everything else is required.
type EngineConfig struct {
	Runner   TxRunner
	Orders   orders.Repository
	Accounts accounts.Repository
	Ledger   ledger.Repository
	Payouts  PayoutRepository
	Outbox   *outbox.Service
	Recorder PayoutRecorder
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cfg.Orders == nil || cfg.Accounts == nil || cfg.Ledger == nil || cfg.Payouts == nil {
		return nil, fmt.Errorf("orders, accounts, ledger and payout repositories required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		runner:   cfg.Runner,
		orders:   cfg.Orders,
		accounts: cfg.Accounts,
		ledger:   cfg.Ledger,
		payouts:  cfg.Payouts,
		outbox:   cfg.Outbox,
		recorder: cfg.Recorder,
		logg:     cfg.Logger,
		now:      now,
	}, nil
}

// DistributionSummary reports what one payout walk did.
type DistributionSummary struct {
	OrderID        uuid.UUID        `json:"orderId"`
	Path           enums.PayoutPath `json:"path"`
	LevelsCredited int              `json:"levelsCredited"`
	LevelsSkipped  int              `json:"levelsSkipped"`
	Failures       int              `json:"failures"`
}

// ConfirmationResult is the outcome of confirming one order (or one bulk
// batch collapsed onto its anchor order).
type ConfirmationResult struct {
	Order        *models.Order        `json:"order"`
	QuickStart   bool                 `json:"quickStart"`
	Distribution *DistributionSummary `json:"distribution"`
}

// payoutPlan carries everything the chain walk needs, captured inside the
// confirmation transaction.
type payoutPlan struct {
	anchorOrderID uuid.UUID
	buyer         *models.Account
	path          enums.PayoutPath
	packages      int64
	orderPoints   decimal.Decimal
}

// ConfirmAndDistribute confirms one pending order and runs the payout walk.
func (e *Engine) ConfirmAndDistribute(ctx context.Context, orderID, adminID uuid.UUID) (*ConfirmationResult, error) {
	var (
		plan  *payoutPlan
		order *models.Order
	)

	err := e.retryTx(ctx, func(ctx context.Context) error {
		return e.runner.WithTx(ctx, func(tx *gorm.DB) error {
			p, o, err := e.confirmInTx(ctx, tx, orderID, adminID)
			if err != nil {
				return err
			}
			plan, order = p, o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	summary := e.distribute(ctx, plan)
	e.finishDistribution(ctx, plan, summary, adminID)

	return &ConfirmationResult{
		Order:        order,
		QuickStart:   plan.path == enums.PayoutPathQuickStart,
		Distribution: summary,
	}, nil
}

// Reject moves a pending order to rejected. No points move.
func (e *Engine) Reject(ctx context.Context, orderID, adminID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := e.runner.WithTx(ctx, func(tx *gorm.DB) error {
		won, err := e.orders.WithTx(tx).CASReject(ctx, orderID, adminID, e.now())
		if err != nil {
			return err
		}
		if !won {
			return e.stateConflict(ctx, tx, orderID)
		}
		order, err = e.orders.WithTx(tx).GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		return e.emit(ctx, tx, enums.EventOrderRejected, order.ID, adminID, map[string]any{
			"orderId": order.ID,
			"buyerId": order.BuyerAccountID,
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// BulkConfirmAndDistribute confirms every pending order of the buyer in one
// transaction. Quick Start eligibility is evaluated on the combined point
// total and, when it applies, the whole batch pays out as one walk anchored
// on the oldest order.
func (e *Engine) BulkConfirmAndDistribute(ctx context.Context, buyerID, adminID uuid.UUID) ([]*ConfirmationResult, error) {
	var plans []*payoutPlan
	var confirmed []*models.Order

	err := e.retryTx(ctx, func(ctx context.Context) error {
		plans = nil
		confirmed = nil
		return e.runner.WithTx(ctx, func(tx *gorm.DB) error {
			ordersRepo := e.orders.WithTx(tx)
			accountsRepo := e.accounts.WithTx(tx)
			ledgerRepo := e.ledger.WithTx(tx)

			pending, err := ordersRepo.ListPendingByBuyer(ctx, buyerID)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no pending orders for buyer")
			}

			buyer, err := accountsRepo.GetByID(ctx, buyerID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "buyer account not found")
			}
			if err != nil {
				return err
			}

			now := e.now()
			total := decimal.Zero
			orderIDs := make([]uuid.UUID, 0, len(pending))
			for i := range pending {
				order := &pending[i]
				won, err := ordersRepo.CASConfirm(ctx, order.ID, adminID, now)
				if err != nil {
					return err
				}
				if !won {
					// Raced by a single confirm; force the whole batch to retry.
					return errTxConflict
				}
				order.Status = enums.OrderStatusConfirmed
				total = total.Add(order.TotalPoints)
				orderIDs = append(orderIDs, order.ID)

				entry := ledger.NewEntry(ledger.RecordEntryInput{
					AccountID:  buyer.ID,
					Type:       enums.LedgerEntryTypePurchase,
					Points:     order.TotalPoints,
					OrderID:    &order.ID,
					OccurredAt: now,
					Action:     fmt.Sprintf("Compra confirmada: %s", order.ProductName),
					ActorID:    &adminID,
				})
				if err := ledgerRepo.Create(ctx, &entry); err != nil {
					return err
				}
				if err := e.emit(ctx, tx, enums.EventOrderConfirmed, order.ID, adminID, map[string]any{
					"orderId": order.ID,
					"buyerId": buyer.ID,
					"points":  order.TotalPoints,
				}); err != nil {
					return err
				}
				confirmed = append(confirmed, order)
			}

			if err := accountsRepo.IncrementPersonalPoints(ctx, buyer.ID, total); err != nil {
				return err
			}

			quickStart := false
			packages := points.QuickStartPackages(total)
			if !buyer.QuickStartPaid && buyer.PersonalPoints.IsZero() && packages >= 1 {
				sponsor, err := accounts.NewSponsorResolver(accountsRepo).DirectSponsor(ctx, buyer)
				if err != nil {
					return err
				}
				if sponsor != nil {
					won, err := accountsRepo.LatchQuickStartPaid(ctx, buyer.ID, append(buyer.QuickStartOrderIDs, orderIDs...))
					if err != nil {
						return err
					}
					quickStart = won
				}
			}

			if quickStart {
				plans = append(plans, &payoutPlan{
					anchorOrderID: pending[0].ID,
					buyer:         buyer,
					path:          enums.PayoutPathQuickStart,
					packages:      packages,
					orderPoints:   total,
				})
			} else {
				for i := range pending {
					plans = append(plans, &payoutPlan{
						anchorOrderID: pending[i].ID,
						buyer:         buyer,
						path:          enums.PayoutPathNormal,
						orderPoints:   pending[i].TotalPoints,
					})
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	results := make([]*ConfirmationResult, 0, len(confirmed))
	summaries := make(map[uuid.UUID]*DistributionSummary, len(plans))
	for _, plan := range plans {
		summary := e.distribute(ctx, plan)
		e.finishDistribution(ctx, plan, summary, adminID)
		summaries[plan.anchorOrderID] = summary
	}
	for _, order := range confirmed {
		results = append(results, &ConfirmationResult{
			Order:        order,
			QuickStart:   summaries[order.ID] != nil && summaries[order.ID].Path == enums.PayoutPathQuickStart,
			Distribution: summaries[order.ID],
		})
	}
	return results, nil
}

// Redistribute resumes a partially failed payout walk for a confirmed order.
// Levels with completion records are skipped; only the gaps are credited.
func (e *Engine) Redistribute(ctx context.Context, orderID, adminID uuid.UUID) (*DistributionSummary, error) {
	order, err := e.orders.GetByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not confirmed")
	}

	buyer, err := e.accounts.GetByID(ctx, order.BuyerAccountID)
	if err != nil {
		return nil, err
	}

	plan, err := e.recoverPlan(ctx, order, buyer)
	if err != nil {
		return nil, err
	}

	summary := e.distribute(ctx, plan)
	e.finishDistribution(ctx, plan, summary, adminID)
	return summary, nil
}

// Payouts returns the per-level completion records for an order, in level
// order. The records show which levels a walk has already credited.
func (e *Engine) Payouts(ctx context.Context, orderID uuid.UUID) ([]models.CommissionPayout, error) {
	if _, err := e.orders.GetByID(ctx, orderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return e.payouts.ListByOrder(ctx, orderID)
}

// recoverPlan rebuilds the payout plan for a redistribution. An order in the
// buyer's quick start set replays the quick start path with the combined
// points of that set, so bulk-confirmed batches recompute correctly.
func (e *Engine) recoverPlan(ctx context.Context, order *models.Order, buyer *models.Account) (*payoutPlan, error) {
	inQuickStartSet := false
	for _, id := range buyer.QuickStartOrderIDs {
		if id == order.ID {
			inQuickStartSet = true
			break
		}
	}
	if !inQuickStartSet {
		return &payoutPlan{
			anchorOrderID: order.ID,
			buyer:         buyer,
			path:          enums.PayoutPathNormal,
			orderPoints:   order.TotalPoints,
		}, nil
	}

	total := decimal.Zero
	for _, id := range buyer.QuickStartOrderIDs {
		o, err := e.orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		total = total.Add(o.TotalPoints)
	}
	return &payoutPlan{
		anchorOrderID: order.ID,
		buyer:         buyer,
		path:          enums.PayoutPathQuickStart,
		packages:      points.QuickStartPackages(total),
		orderPoints:   total,
	}, nil
}

// confirmInTx performs the exactly-once part of a single-order confirmation.
func (e *Engine) confirmInTx(ctx context.Context, tx *gorm.DB, orderID, adminID uuid.UUID) (*payoutPlan, *models.Order, error) {
	ordersRepo := e.orders.WithTx(tx)
	accountsRepo := e.accounts.WithTx(tx)

	now := e.now()
	won, err := ordersRepo.CASConfirm(ctx, orderID, adminID, now)
	if err != nil {
		return nil, nil, err
	}
	if !won {
		return nil, nil, e.stateConflict(ctx, tx, orderID)
	}

	order, err := ordersRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	buyer, err := accountsRepo.GetByID(ctx, order.BuyerAccountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer account not found")
	}
	if err != nil {
		return nil, nil, err
	}

	if err := accountsRepo.IncrementPersonalPoints(ctx, buyer.ID, order.TotalPoints); err != nil {
		return nil, nil, err
	}

	entry := ledger.NewEntry(ledger.RecordEntryInput{
		AccountID:  buyer.ID,
		Type:       enums.LedgerEntryTypePurchase,
		Points:     order.TotalPoints,
		OrderID:    &order.ID,
		OccurredAt: now,
		Action:     fmt.Sprintf("Compra confirmada: %s", order.ProductName),
		ActorID:    &adminID,
	})
	if err := e.ledger.WithTx(tx).Create(ctx, &entry); err != nil {
		return nil, nil, err
	}

	plan := &payoutPlan{
		anchorOrderID: order.ID,
		buyer:         buyer,
		path:          enums.PayoutPathNormal,
		orderPoints:   order.TotalPoints,
	}

	// Quick Start is decided from the pre-increment reads in this transaction
	// and claimed with a conditional update, so two racing confirmations can
	// never both pay the bonus. Only a genuine first purchase qualifies: a
	// buyer with prior personal points stays on the normal path even when the
	// latch was never claimed.
	packages := points.QuickStartPackages(order.TotalPoints)
	if !buyer.QuickStartPaid && buyer.PersonalPoints.IsZero() && packages >= 1 {
		sponsor, err := accounts.NewSponsorResolver(accountsRepo).DirectSponsor(ctx, buyer)
		if err != nil {
			return nil, nil, err
		}
		if sponsor != nil {
			wonLatch, err := accountsRepo.LatchQuickStartPaid(ctx, buyer.ID, append(buyer.QuickStartOrderIDs, order.ID))
			if err != nil {
				return nil, nil, err
			}
			if wonLatch {
				plan.path = enums.PayoutPathQuickStart
				plan.packages = packages
			}
		}
	}

	if err := e.emit(ctx, tx, enums.EventOrderConfirmed, order.ID, adminID, map[string]any{
		"orderId":    order.ID,
		"buyerId":    buyer.ID,
		"points":     order.TotalPoints,
		"quickStart": plan.path == enums.PayoutPathQuickStart,
	}); err != nil {
		return nil, nil, err
	}

	return plan, order, nil
}

// distribute runs the at-least-once chain walk for one plan. Each level is
// its own transaction; a failed level is logged and the walk continues.
func (e *Engine) distribute(ctx context.Context, plan *payoutPlan) *DistributionSummary {
	summary := &DistributionSummary{OrderID: plan.anchorOrderID, Path: plan.path}

	chain, err := accounts.NewSponsorResolver(e.accounts).Upline(ctx, plan.buyer, points.MaxChainLevels)
	if err != nil {
		e.logError(ctx, "commission.chain_walk_failed", err, map[string]any{"order_id": plan.anchorOrderID})
		summary.Failures++
		return summary
	}

	completed, err := e.payouts.CompletedLevels(ctx, plan.anchorOrderID)
	if err != nil {
		e.logError(ctx, "commission.completed_levels_failed", err, map[string]any{"order_id": plan.anchorOrderID})
		summary.Failures++
		return summary
	}

	var recorded []models.CommissionPayout
	for idx, beneficiary := range chain {
		level := idx + 1
		if completed[level] {
			summary.LevelsSkipped++
			continue
		}

		payout, err := e.payLevel(ctx, plan, level, beneficiary)
		if err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_commission_payouts_order_level") {
				summary.LevelsSkipped++
				continue
			}
			summary.Failures++
			e.logError(ctx, "commission.level_payout_failed", err, map[string]any{
				"order_id":    plan.anchorOrderID,
				"level":       level,
				"beneficiary": beneficiary.ID,
			})
			continue
		}
		if payout != nil {
			recorded = append(recorded, *payout)
			if payout.Points.IsPositive() {
				summary.LevelsCredited++
			} else {
				summary.LevelsSkipped++
			}
		}
	}

	if e.recorder != nil && len(recorded) > 0 {
		if err := e.recorder.RecordPayouts(ctx, recorded); err != nil {
			e.logError(ctx, "commission.payout_facts_failed", err, map[string]any{"order_id": plan.anchorOrderID})
		}
	}
	return summary
}

// payLevel credits one beneficiary inside its own transaction. Accounts
// outside the plan (non-distributors) consume their level but receive zero.
func (e *Engine) payLevel(ctx context.Context, plan *payoutPlan, level int, beneficiary *models.Account) (*models.CommissionPayout, error) {
	pts, entryType, action := e.levelCredit(plan, level)
	if !beneficiary.Type.IsDistributor() {
		pts = decimal.Zero
	}
	amount := points.ToCurrency(pts)

	payout := &models.CommissionPayout{
		ID:                   uuid.New(),
		OrderID:              plan.anchorOrderID,
		Level:                level,
		BeneficiaryAccountID: beneficiary.ID,
		Path:                 plan.path,
		Points:               pts,
		Amount:               amount,
	}

	err := e.runner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := e.payouts.WithTx(tx).Insert(ctx, payout); err != nil {
			return err
		}
		if pts.IsZero() {
			return nil
		}
		accountsRepo := e.accounts.WithTx(tx)
		if err := accountsRepo.IncrementGroupPoints(ctx, beneficiary.ID, pts); err != nil {
			return err
		}
		if err := accountsRepo.IncrementBalance(ctx, beneficiary.ID, amount); err != nil {
			return err
		}
		entry := ledger.NewEntry(ledger.RecordEntryInput{
			AccountID:  beneficiary.ID,
			Type:       entryType,
			Amount:     amount,
			Points:     pts,
			OrderID:    &plan.anchorOrderID,
			OccurredAt: e.now(),
			Action:     fmt.Sprintf("%s nivel %d", action, level),
		})
		return e.ledger.WithTx(tx).Create(ctx, &entry)
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// levelCredit computes what one level is worth under the plan's path.
func (e *Engine) levelCredit(plan *payoutPlan, level int) (decimal.Decimal, enums.LedgerEntryType, string) {
	if plan.path == enums.PayoutPathQuickStart {
		if level == 1 {
			return decimal.NewFromInt(plan.packages * points.QuickStartDirectRate),
				enums.LedgerEntryTypeQuickStartBonus, "Bono Inicio Rapido"
		}
		return decimal.NewFromInt(plan.packages * points.QuickStartUpperRate),
			enums.LedgerEntryTypeQuickStartUpperLevel, "Bono Inicio Rapido superior"
	}
	if plan.buyer.Type == enums.AccountTypeRestaurant {
		return points.RestaurantLevelPoints(plan.orderPoints),
			enums.LedgerEntryTypeRestaurantCommission, "Comision restaurante"
	}
	return decimal.NewFromInt(points.NormalLevelPoints),
		enums.LedgerEntryTypeGroupPoints, "Puntos grupales"
}

// finishDistribution flips the distributed latch and emits the walk events.
// The walk is already durable level by level; failing here only delays the
// audit trail, never the money.
func (e *Engine) finishDistribution(ctx context.Context, plan *payoutPlan, summary *DistributionSummary, adminID uuid.UUID) {
	if _, err := e.orders.CASMarkDistributed(ctx, plan.anchorOrderID, e.now()); err != nil {
		e.logError(ctx, "commission.mark_distributed_failed", err, map[string]any{"order_id": plan.anchorOrderID})
	}

	err := e.runner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := e.emit(ctx, tx, enums.EventCommissionDistributed, plan.anchorOrderID, adminID, map[string]any{
			"orderId":        plan.anchorOrderID,
			"path":           plan.path,
			"levelsCredited": summary.LevelsCredited,
			"levelsSkipped":  summary.LevelsSkipped,
			"failures":       summary.Failures,
		}); err != nil {
			return err
		}
		if plan.path == enums.PayoutPathQuickStart {
			return e.emit(ctx, tx, enums.EventQuickStartPaid, plan.anchorOrderID, adminID, map[string]any{
				"orderId":  plan.anchorOrderID,
				"buyerId":  plan.buyer.ID,
				"packages": plan.packages,
			})
		}
		return nil
	})
	if err != nil {
		e.logError(ctx, "commission.distribution_events_failed", err, map[string]any{"order_id": plan.anchorOrderID})
	}
}

func (e *Engine) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, aggregateID, adminID uuid.UUID, data map[string]any) error {
	if e.outbox == nil {
		return nil
	}
	return e.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Actor:         &outbox.ActorRef{AccountID: adminID, Role: string(enums.ActorRoleAdmin)},
		Data:          data,
		Version:       1,
		OccurredAt:    e.now(),
	})
}

// stateConflict translates a lost CAS into the precise typed error.
func (e *Engine) stateConflict(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	order, err := e.orders.WithTx(tx).GetByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order already %s", order.Status)).
		WithDetails(map[string]any{"status": order.Status})
}

var errTxConflict = errors.New("transaction conflict")

func (e *Engine) retryTx(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(25*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isRetryableTxError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// isRetryableTxError matches serialization failures and lock contention; the
// confirmation unit re-reads all state on retry, so replaying it is safe.
func isRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errTxConflict) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not serialize") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "database is locked")
}

func (e *Engine) logError(ctx context.Context, msg string, err error, fields map[string]any) {
	if e.logg == nil {
		return
	}
	e.logg.Error(e.logg.WithFields(ctx, fields), msg, err)
}
