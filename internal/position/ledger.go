// Package position implements the Position Ledger: one collateralized
// leveraged position per owner, opened against collateral held by an
// external custodian, resized in place, and closed with a single payout.
//
// All amounts use shopspring/decimal and must be whole, non-negative units.
package position

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/custody"
	"github.com/atmx/synthetic-ledger/internal/limits"
	"github.com/atmx/synthetic-ledger/internal/metrics"
	"github.com/atmx/synthetic-ledger/internal/model"
	"github.com/atmx/synthetic-ledger/internal/store"
)

// Authorizer decides whether caller may set the synthetic asset price.
type Authorizer func(caller string) bool

// AllowCallers returns an Authorizer that accepts exactly the given callers.
func AllowCallers(callers ...string) Authorizer {
	allowed := make(map[string]bool, len(callers))
	for _, c := range callers {
		if c = strings.TrimSpace(c); c != "" {
			allowed[c] = true
		}
	}
	return func(caller string) bool { return allowed[caller] }
}

// WithdrawAmountFunc computes the payout for closing p at price.
type WithdrawAmountFunc func(p model.Position, price decimal.Decimal) decimal.Decimal

// ComputeWithdrawAmount pays out the current notional size. Any collateral
// above that stays in custody; collateral below it is not topped up.
func ComputeWithdrawAmount(p model.Position, _ decimal.Decimal) decimal.Decimal {
	return p.PositionSize
}

// RedepositPolicy controls what Deposit does when the owner already holds a
// record.
type RedepositPolicy int

const (
	// RedepositOverwrite replaces any existing record; last deposit wins.
	RedepositOverwrite RedepositPolicy = iota
	// RedepositRejectOpen fails with ErrPositionOpen while positionSize > 0.
	RedepositRejectOpen
)

// ParseRedepositPolicy parses "overwrite" or "reject-open".
func ParseRedepositPolicy(s string) (RedepositPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return RedepositOverwrite, nil
	case "reject-open", "reject_open":
		return RedepositRejectOpen, nil
	}
	return 0, fmt.Errorf("unknown redeposit policy %q", s)
}

func (p RedepositPolicy) String() string {
	if p == RedepositRejectOpen {
		return "reject-open"
	}
	return "overwrite"
}

// Publisher receives every committed event. Publish must not block.
type Publisher interface {
	Publish(e model.PositionEvent)
}

// Options configures a Ledger. The zero value overwrites on redeposit, pays
// out positionSize on withdraw, has no limits, and denies every price setter.
type Options struct {
	Authorizer     Authorizer
	Redeposit      RedepositPolicy
	WithdrawAmount WithdrawAmountFunc
	Limiter        *limits.Limiter
	Publisher      Publisher
	Now            func() time.Time
}

// Ledger tracks one Position per owner. Mutations for one owner are
// serialized under that owner's lock; different owners never contend.
type Ledger struct {
	store     store.Store
	custodian custody.Custodian
	authorize Authorizer
	redeposit RedepositPolicy
	payout    WithdrawAmountFunc
	limiter   *limits.Limiter
	publisher Publisher
	now       func() time.Time

	locks   [lockStripes]sync.Mutex
	priceMu sync.Mutex
}

// lockStripes bounds the lock table. Owners hashing to the same stripe
// serialize with each other, which is safe but never required.
const lockStripes = 256

// NewLedger creates a ledger over st that moves value through cust.
func NewLedger(st store.Store, cust custody.Custodian, opts Options) *Ledger {
	l := &Ledger{
		store:     st,
		custodian: cust,
		authorize: opts.Authorizer,
		redeposit: opts.Redeposit,
		payout:    opts.WithdrawAmount,
		limiter:   opts.Limiter,
		publisher: opts.Publisher,
		now:       opts.Now,
	}
	if l.authorize == nil {
		l.authorize = func(string) bool { return false }
	}
	if l.payout == nil {
		l.payout = ComputeWithdrawAmount
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	return l
}

// stripe returns the lock guarding owner.
func (l *Ledger) stripe(owner string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(owner))
	return &l.locks[h.Sum32()%lockStripes]
}

// lock acquires owner's stripe and returns its release.
func (l *Ledger) lock(owner string) func() {
	mu := l.stripe(owner)
	mu.Lock()
	return mu.Unlock
}

// --- Queries ---

// Position returns the owner's position; owners that never deposited read
// as the closed position.
func (l *Ledger) Position(ctx context.Context, owner string) (model.Position, error) {
	return l.store.GetPosition(ctx, owner)
}

// Positions returns every stored position.
func (l *Ledger) Positions(ctx context.Context) ([]model.Position, error) {
	return l.store.ListPositions(ctx)
}

// SyntheticAssetPrice returns the current reference price.
func (l *Ledger) SyntheticAssetPrice(ctx context.Context) (decimal.Decimal, error) {
	return l.store.GetPrice(ctx)
}

// History returns the owner's committed events in order.
func (l *Ledger) History(ctx context.Context, owner string) ([]model.PositionEvent, error) {
	return l.store.ListEvents(ctx, owner)
}

// RefreshMetrics seeds the gauges from stored state. Call once at startup.
func (l *Ledger) RefreshMetrics(ctx context.Context) error {
	positions, err := l.store.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("refresh metrics: %w", err)
	}
	open := 0
	for _, p := range positions {
		if p.IsOpen() {
			open++
		}
	}
	metrics.OpenPositions.Set(float64(open))

	price, err := l.store.GetPrice(ctx)
	if err != nil {
		return fmt.Errorf("refresh metrics: %w", err)
	}
	metrics.SyntheticAssetPrice.Set(price.InexactFloat64())
	return nil
}

// --- Mutations ---

// Deposit pulls amount of collateral from owner into custody and sets the
// owner's position to {amount, size, isLong}. Nothing changes unless the
// custodian confirms the transfer.
func (l *Ledger) Deposit(ctx context.Context, owner string, amount, size decimal.Decimal, isLong bool) (p model.Position, err error) {
	defer l.observe(model.OpDeposit, time.Now(), &err)

	if !amount.IsPositive() {
		return model.Position{}, invalid(ReasonZeroDeposit)
	}
	if !amount.IsInteger() || !model.IsWholeAmount(size) {
		return model.Position{}, invalid(ReasonInvalidAmount)
	}

	unlock := l.lock(owner)
	defer unlock()

	prev, err := l.store.GetPositionForUpdate(ctx, owner)
	if err != nil {
		return model.Position{}, fmt.Errorf("deposit: %w", err)
	}
	if l.redeposit == RedepositRejectOpen && prev.IsOpen() {
		return model.Position{}, &Error{Kind: ErrPositionOpen, Reason: ReasonPositionOpen}
	}
	if err := l.limiter.CheckLimit(amount, size); err != nil {
		return model.Position{}, limitExceeded(err)
	}

	if err := l.custodian.TransferIn(ctx, owner, amount); err != nil {
		slog.Warn("deposit rejected by custodian", "owner", owner, "amount", amount.String(), "err", err)
		return model.Position{}, custodyFailure(err)
	}

	next := model.Position{
		Owner:            owner,
		CollateralAmount: amount,
		PositionSize:     size,
		IsLong:           isLong,
		UpdatedAt:        l.now(),
	}
	if err := l.store.PutPosition(ctx, next); err != nil {
		l.compensate(ctx, owner, amount, l.custodian.TransferOut, "refund")
		return model.Position{}, fmt.Errorf("deposit: %w", err)
	}
	metrics.CustodyVolume.WithLabelValues("in").Add(amount.InexactFloat64())
	trackOpen(prev, next)

	if !prev.CollateralAmount.IsZero() {
		slog.Warn("deposit overwrote existing position",
			"owner", owner,
			"previous_collateral", prev.CollateralAmount.String(),
			"previous_size", prev.PositionSize.String(),
		)
	}

	l.record(ctx, model.PositionEvent{
		Owner:    owner,
		Op:       model.OpDeposit,
		Amount:   amount,
		Size:     size,
		Position: next,
	})

	slog.Info("position opened",
		"owner", owner,
		"collateral", amount.String(),
		"size", size.String(),
		"is_long", isLong,
	)
	return next, nil
}

// IncreasePosition adds amount to the owner's notional size. Collateral and
// direction are unchanged and no value moves.
func (l *Ledger) IncreasePosition(ctx context.Context, owner string, amount decimal.Decimal) (p model.Position, err error) {
	defer l.observe(model.OpIncrease, time.Now(), &err)

	if !model.IsWholeAmount(amount) {
		return model.Position{}, invalid(ReasonInvalidAmount)
	}

	unlock := l.lock(owner)
	defer unlock()

	prev, err := l.store.GetPositionForUpdate(ctx, owner)
	if err != nil {
		return model.Position{}, fmt.Errorf("increase position: %w", err)
	}

	next := prev
	next.PositionSize = prev.PositionSize.Add(amount)
	next.UpdatedAt = l.now()

	if err := l.limiter.CheckLimit(next.CollateralAmount, next.PositionSize); err != nil {
		return model.Position{}, limitExceeded(err)
	}
	if err := l.store.PutPosition(ctx, next); err != nil {
		return model.Position{}, fmt.Errorf("increase position: %w", err)
	}
	trackOpen(prev, next)

	l.record(ctx, model.PositionEvent{
		Owner:    owner,
		Op:       model.OpIncrease,
		Amount:   amount,
		Position: next,
	})

	slog.Info("position increased", "owner", owner, "amount", amount.String(), "size", next.PositionSize.String())
	return next, nil
}

// ReducePosition subtracts amount from the owner's notional size. Reaching
// zero does not release collateral or reset direction; only Withdraw does.
func (l *Ledger) ReducePosition(ctx context.Context, owner string, amount decimal.Decimal) (p model.Position, err error) {
	defer l.observe(model.OpReduce, time.Now(), &err)

	if !model.IsWholeAmount(amount) {
		return model.Position{}, invalid(ReasonInvalidAmount)
	}

	unlock := l.lock(owner)
	defer unlock()

	prev, err := l.store.GetPositionForUpdate(ctx, owner)
	if err != nil {
		return model.Position{}, fmt.Errorf("reduce position: %w", err)
	}
	if amount.GreaterThan(prev.PositionSize) {
		return model.Position{}, invalid(ReasonInvalidAmount)
	}

	next := prev
	next.PositionSize = prev.PositionSize.Sub(amount)
	next.UpdatedAt = l.now()

	if err := l.store.PutPosition(ctx, next); err != nil {
		return model.Position{}, fmt.Errorf("reduce position: %w", err)
	}
	trackOpen(prev, next)

	l.record(ctx, model.PositionEvent{
		Owner:    owner,
		Op:       model.OpReduce,
		Amount:   amount,
		Position: next,
	})

	slog.Info("position reduced", "owner", owner, "amount", amount.String(), "size", next.PositionSize.String())
	return next, nil
}

// Withdraw closes the owner's position. The payout (see
// ComputeWithdrawAmount) is confirmed by the custodian before the position
// is reset to the closed state. Withdrawing a closed position pays nothing.
func (l *Ledger) Withdraw(ctx context.Context, owner string) (payout decimal.Decimal, err error) {
	defer l.observe(model.OpWithdraw, time.Now(), &err)

	unlock := l.lock(owner)
	defer unlock()

	prev, err := l.store.GetPositionForUpdate(ctx, owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("withdraw: %w", err)
	}
	price, err := l.store.GetPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("withdraw: %w", err)
	}

	payout = l.payout(prev, price)
	if !model.IsWholeAmount(payout) {
		return decimal.Zero, fmt.Errorf("withdraw: payout policy returned %s", payout)
	}

	if payout.IsPositive() {
		if err := l.custodian.TransferOut(ctx, owner, payout); err != nil {
			slog.Error("withdraw payout rejected by custodian", "owner", owner, "payout", payout.String(), "err", err)
			return decimal.Zero, custodyFailure(err)
		}
	}

	next := model.Closed(owner)
	next.UpdatedAt = l.now()
	if err := l.store.PutPosition(ctx, next); err != nil {
		if payout.IsPositive() {
			l.compensate(ctx, owner, payout, l.custodian.Reclaim, "reclaim")
		}
		return decimal.Zero, fmt.Errorf("withdraw: %w", err)
	}
	metrics.CustodyVolume.WithLabelValues("out").Add(payout.InexactFloat64())
	trackOpen(prev, next)

	retained := prev.CollateralAmount.Sub(payout)
	if !retained.IsPositive() {
		retained = decimal.Zero
	}
	metrics.RetainedCollateral.Add(retained.InexactFloat64())

	l.record(ctx, model.PositionEvent{
		Owner:    owner,
		Op:       model.OpWithdraw,
		Amount:   payout,
		Position: next,
		Price:    price,
		Retained: retained,
	})

	slog.Info("position closed",
		"owner", owner,
		"payout", payout.String(),
		"collateral", prev.CollateralAmount.String(),
		"retained", retained.String(),
	)
	return payout, nil
}

// SetSyntheticAssetPrice replaces the reference price. caller must pass the
// ledger's Authorizer.
func (l *Ledger) SetSyntheticAssetPrice(ctx context.Context, caller string, price decimal.Decimal) (err error) {
	defer l.observe(model.OpSetPrice, time.Now(), &err)

	if !l.authorize(caller) {
		slog.Warn("price update denied", "caller", caller)
		return &Error{Kind: ErrUnauthorized, Reason: ReasonUnauthorized}
	}
	if !price.IsPositive() {
		return invalid(ReasonZeroPrice)
	}
	if !price.IsInteger() {
		return invalid(ReasonInvalidAmount)
	}

	l.priceMu.Lock()
	defer l.priceMu.Unlock()

	if err := l.store.SetPrice(ctx, price); err != nil {
		return fmt.Errorf("set price: %w", err)
	}
	metrics.SyntheticAssetPrice.Set(price.InexactFloat64())

	l.record(ctx, model.PositionEvent{
		Owner:  caller,
		Op:     model.OpSetPrice,
		Amount: price,
		Price:  price,
	})

	slog.Info("synthetic asset price set", "caller", caller, "price", price.String())
	return nil
}

// --- Helpers ---

// record journals a committed mutation and publishes it. The mutation has
// already been persisted, so a journal failure is logged, not returned.
func (l *Ledger) record(ctx context.Context, e model.PositionEvent) {
	e.ID = uuid.New().String()
	e.Timestamp = l.now()
	if e.Price.IsZero() && e.Op != model.OpSetPrice {
		if price, err := l.store.GetPrice(ctx); err == nil {
			e.Price = price
		}
	}

	if err := l.store.AppendEvent(ctx, &e); err != nil {
		slog.Error("failed to journal position event", "id", e.ID, "owner", e.Owner, "op", e.Op, "err", err)
	}
	if l.publisher != nil {
		l.publisher.Publish(e)
	}
}

// compensate reverses a confirmed transfer after persisting failed.
func (l *Ledger) compensate(ctx context.Context, owner string, amount decimal.Decimal,
	transfer func(context.Context, string, decimal.Decimal) error, action string) {
	if err := transfer(ctx, owner, amount); err != nil {
		slog.Error("compensating transfer failed; manual reconciliation required",
			"owner", owner, "action", action, "amount", amount.String(), "err", err)
		return
	}
	slog.Warn("compensating transfer applied", "owner", owner, "action", action, "amount", amount.String())
}

func (l *Ledger) observe(op string, start time.Time, err *error) {
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.OperationsTotal.WithLabelValues(op, Code(*err)).Inc()
}

func trackOpen(prev, next model.Position) {
	switch {
	case !prev.IsOpen() && next.IsOpen():
		metrics.OpenPositions.Inc()
	case prev.IsOpen() && !next.IsOpen():
		metrics.OpenPositions.Dec()
	}
}
