// Package replay drives a local pool from scripted requests or from the events
// of an on-chain V3 pool, journaling the outcome of every operation.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/custody"
	"liquidityEngine/internal/fixedpoint"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/pool"
)

var (
	ErrNotInitialized = errors.New("pool not initialized")
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrorKind extends pool.ErrorKind with the request-level failures of this package.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotInitialized):
		return "NotInitialized"
	case errors.Is(err, ErrInvalidRequest):
		return "InvalidRequest"
	default:
		return pool.ErrorKind(err)
	}
}

// Applier executes operation requests against one pool of a registry. The pool
// is looked up by the template key, so a restored pool registered beforehand
// is picked up; otherwise an initialize request creates it.
type Applier struct {
	registry *pool.Registry
	template pool.Config
	ledger   *custody.Ledger
	autoFund bool
	logger   *zap.Logger
	now      func() time.Time
}

// ApplierOption customizes an Applier.
type ApplierOption func(*Applier)

// WithAutoFund mints into ledger, before each add or swap, exactly the amounts
// the request will pull from its actor.
func WithAutoFund(ledger *custody.Ledger) ApplierOption {
	return func(a *Applier) {
		a.ledger = ledger
		a.autoFund = ledger != nil
	}
}

// WithClock replaces the clock used to stamp records without a timestamp.
func WithClock(now func() time.Time) ApplierOption {
	return func(a *Applier) { a.now = now }
}

func NewApplier(registry *pool.Registry, template pool.Config, logger *zap.Logger, opts ...ApplierOption) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Applier{
		registry: registry,
		template: template,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetTemplate replaces the pool parameters used by later initialize requests.
func (a *Applier) SetTemplate(cfg pool.Config) { a.template = cfg }

func (a *Applier) Template() pool.Config { return a.template }

// Pool returns the target pool, or nil before it is initialized.
func (a *Applier) Pool() *pool.Pool {
	p, _ := a.registry.Get(a.template.Key())
	return p
}

// Apply executes req and returns its journal record. A failed operation is
// reported through the record's error fields and leaves the pool unchanged.
func (a *Applier) Apply(ctx context.Context, req model.OperationRequest) model.OperationRecord {
	poolID := a.template.Key().ID().Hex()
	record := model.OperationRecord{
		ID:        recordID(poolID, req.Chain),
		PoolID:    poolID,
		Op:        req.Op,
		Owner:     req.Owner,
		TickLower: req.TickLower,
		TickUpper: req.TickUpper,
		Liquidity: req.Liquidity,
		Direction: req.Direction,
		Timestamp: req.Timestamp,
		Chain:     req.Chain,
	}
	if record.Timestamp == 0 {
		record.Timestamp = uint64(a.now().Unix())
	}

	err := a.apply(ctx, req, &record)
	if err != nil {
		record.ErrorKind = ErrorKind(err)
		record.Error = err.Error()
		a.logger.Debug("operation rejected",
			zap.String("op", req.Op),
			zap.String("kind", record.ErrorKind),
			zap.Error(err),
		)
	}

	status := pool.Status{SqrtPrice: new(uint256.Int), Liquidity: new(uint256.Int), ReserveA: new(uint256.Int), ReserveB: new(uint256.Int)}
	if p := a.Pool(); p != nil {
		status = p.Status()
	}
	record.SqrtPrice = status.SqrtPrice.Dec()
	record.Tick = status.Tick
	record.ActiveLiquidity = status.Liquidity.Dec()
	record.ReserveA = status.ReserveA.Dec()
	record.ReserveB = status.ReserveB.Dec()
	return record
}

var chainRecordSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("clmm/operation"))

// recordID derives a stable id for a replayed chain log so a replayed batch
// maps onto the same journal rows; other records get a random id.
func recordID(poolID string, ref *model.ChainRef) string {
	if ref == nil {
		return uuid.NewString()
	}
	name := fmt.Sprintf("%s:%d:%d:%s:%d", poolID, ref.ChainID, ref.BlockNumber, ref.TxHash, ref.LogIndex)
	return uuid.NewSHA1(chainRecordSpace, []byte(name)).String()
}

func (a *Applier) apply(ctx context.Context, req model.OperationRequest, record *model.OperationRecord) error {
	if req.Op == model.OpInitialize {
		return a.initialize(req)
	}

	p := a.Pool()
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNotInitialized, a.template.Key())
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		return err
	}

	switch req.Op {
	case model.OpAdd:
		liquidity, err := parseAmount("liquidity", req.Liquidity, true)
		if err != nil {
			return err
		}
		if err := a.fundAdd(p, owner, req.TickLower, req.TickUpper, liquidity); err != nil {
			return err
		}
		res, err := p.AddLiquidity(ctx, owner, req.TickLower, req.TickUpper, liquidity)
		if err != nil {
			return err
		}
		fillLiquidity(record, res)
	case model.OpRemove:
		liquidity, err := parseAmount("liquidity", req.Liquidity, true)
		if err != nil {
			return err
		}
		res, err := p.RemoveLiquidity(ctx, owner, req.TickLower, req.TickUpper, liquidity)
		if err != nil {
			return err
		}
		fillLiquidity(record, res)
	case model.OpCollect:
		res, err := p.Collect(ctx, owner, req.TickLower, req.TickUpper)
		if err != nil {
			return err
		}
		fillLiquidity(record, res)
	case model.OpSwap:
		swapReq, err := swapRequest(owner, req)
		if err != nil {
			return err
		}
		if err := a.fundSwap(p, swapReq); err != nil {
			return err
		}
		res, err := p.Swap(ctx, swapReq)
		if err != nil {
			return err
		}
		record.Direction = res.Direction.String()
		record.AmountIn = res.AmountIn.Dec()
		record.AmountOut = res.AmountOut.Dec()
		record.Crossings = res.Crossings
		record.PriceLimitReached = res.PriceLimitReached
		record.LiquidityExhausted = res.LiquidityExhausted
		record.StepLimitReached = res.StepLimitReached
		if res.Direction == pool.AToB {
			record.AmountA, record.AmountB, record.FeeA = res.AmountIn.Dec(), res.AmountOut.Dec(), res.FeeAmount.Dec()
		} else {
			record.AmountB, record.AmountA, record.FeeB = res.AmountIn.Dec(), res.AmountOut.Dec(), res.FeeAmount.Dec()
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidRequest, req.Op)
	}
	return nil
}

func (a *Applier) initialize(req model.OperationRequest) error {
	cfg := a.template
	if req.SqrtPrice != "" {
		sqrtPrice, err := parseAmount("sqrt_price", req.SqrtPrice, true)
		if err != nil {
			return err
		}
		cfg.InitialSqrtPrice = sqrtPrice
	}
	if cfg.InitialSqrtPrice == nil {
		return fmt.Errorf("%w: initialize without a price", ErrInvalidRequest)
	}
	_, err := a.registry.InitializePool(cfg)
	return err
}

func (a *Applier) fundAdd(p *pool.Pool, owner common.Address, lower, upper int32, liquidity *uint256.Int) error {
	if !a.autoFund {
		return nil
	}
	sqrtLower, err := fixedpoint.SqrtPriceAtTick(lower)
	if err != nil {
		return nil
	}
	sqrtUpper, err := fixedpoint.SqrtPriceAtTick(upper)
	if err != nil || !sqrtLower.Lt(sqrtUpper) {
		return nil
	}
	amountA, amountB, err := fixedpoint.AmountsForLiquidity(liquidity, sqrtLower, sqrtUpper, p.Status().SqrtPrice, true)
	if err != nil {
		return nil
	}
	key := p.Key()
	if err := a.ledger.Mint(key.AssetA, owner, amountA); err != nil {
		return fmt.Errorf("fund %s: %w", owner.Hex(), err)
	}
	if err := a.ledger.Mint(key.AssetB, owner, amountB); err != nil {
		return fmt.Errorf("fund %s: %w", owner.Hex(), err)
	}
	return nil
}

func (a *Applier) fundSwap(p *pool.Pool, req pool.SwapRequest) error {
	if !a.autoFund {
		return nil
	}
	asset := p.Key().AssetA
	if req.Direction == pool.BToA {
		asset = p.Key().AssetB
	}
	if err := a.ledger.Mint(asset, req.Trader, req.AmountIn); err != nil {
		return fmt.Errorf("fund %s: %w", req.Trader.Hex(), err)
	}
	return nil
}

func swapRequest(trader common.Address, req model.OperationRequest) (pool.SwapRequest, error) {
	direction, err := pool.ParseDirection(req.Direction)
	if err != nil {
		return pool.SwapRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	amountIn, err := parseAmount("amount_in", req.AmountIn, false)
	if err != nil {
		return pool.SwapRequest{}, err
	}
	out := pool.SwapRequest{Trader: trader, AmountIn: amountIn, Direction: direction}
	if req.SqrtPriceLimit != "" {
		if out.SqrtPriceLimit, err = parseAmount("sqrt_price_limit", req.SqrtPriceLimit, false); err != nil {
			return pool.SwapRequest{}, err
		}
	}
	if req.MinAmountOut != "" {
		if out.MinAmountOut, err = parseAmount("min_amount_out", req.MinAmountOut, false); err != nil {
			return pool.SwapRequest{}, err
		}
	}
	return out, nil
}

func fillLiquidity(record *model.OperationRecord, res pool.LiquidityResult) {
	record.Liquidity = res.Liquidity.Dec()
	record.AmountA = res.AmountA.Dec()
	record.AmountB = res.AmountB.Dec()
	record.FeeA = res.FeesA.Dec()
	record.FeeB = res.FeesB.Dec()
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", ErrInvalidRequest, field, s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount reads a decimal integer. Empty means zero unless required.
func parseAmount(field, s string, required bool) (*uint256.Int, error) {
	if s == "" {
		if required {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
		}
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", ErrInvalidRequest, field, s, err)
	}
	return v, nil
}
