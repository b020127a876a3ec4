package marketplace

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/events"
	"nftmarket/native/fees"
)

type engineState interface {
	MarketAssetGet(key AssetKey) (Lifecycle, error)
	MarketAssetPut(key AssetKey, lc Lifecycle) error
	MarketOfferGet(key AssetKey, offerer common.Address) (*Offer, bool, error)
	MarketOfferPut(offer *Offer) error
	MarketOfferDelete(key AssetKey, offerer common.Address) error
	MarketOffers(key AssetKey) ([]*Offer, error)
	MarketPayableTokenAdd(token common.Address) error
	MarketPayableTokenHas(token common.Address) (bool, error)
	MarketPayableTokens() ([]common.Address, error)
	MarketNextNonce() (uint64, error)
}

// AssetRegistry is the asset-ownership ledger of one collection. Transfers are
// performed with the marketplace acting as the authorized operator.
type AssetRegistry interface {
	OwnerOf(id *uint256.Int) (common.Address, error)
	IsAuthorized(owner, operator common.Address, id *uint256.Int) (bool, error)
	TransferCustody(from, to common.Address, id *uint256.Int) error
}

// Collections resolves the registry for a collection contract. Unknown
// collections must return an error.
type Collections interface {
	Registry(contract common.Address) (AssetRegistry, error)
}

// CollectionsFunc adapts a function to the Collections interface.
type CollectionsFunc func(contract common.Address) (AssetRegistry, error)

func (f CollectionsFunc) Registry(contract common.Address) (AssetRegistry, error) {
	return f(contract)
}

// PaymentLedger is a fungible token ledger seen from the marketplace: Transfer
// moves the marketplace's own balance, TransferFrom spends an allowance
// granted to the marketplace.
type PaymentLedger interface {
	BalanceOf(account common.Address) (*big.Int, error)
	Transfer(to common.Address, amount *big.Int) error
	TransferFrom(from, to common.Address, amount *big.Int) error
}

// PaymentLedgers resolves the ledger for a payment token.
type PaymentLedgers interface {
	Ledger(token common.Address) (PaymentLedger, error)
}

// LedgersFunc adapts a function to the PaymentLedgers interface.
type LedgersFunc func(token common.Address) (PaymentLedger, error)

func (f LedgersFunc) Ledger(token common.Address) (PaymentLedger, error) {
	return f(token)
}

// NativeBank moves the chain's native currency.
type NativeBank interface {
	Balance(addr common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
}

// Snapshotter groups the writes of one operation so they can be undone
// together.
type Snapshotter interface {
	Snapshot() int
	RevertToSnapshot(id int) error
	// Commit makes every write since the last commit durable in one step.
	Commit() error
	// Pending counts writes not yet committed.
	Pending() int
}

// Params is the construction-time configuration of the marketplace.
type Params struct {
	// Address is the custodian identity the marketplace uses on registries
	// and ledgers.
	Address      common.Address
	Operator     common.Address
	FeeBps       uint32
	FeeRecipient common.Address
}

// Engine implements the listing, offer and auction state machines. It is not
// safe for concurrent use: operations must be applied one at a time by the
// caller.
type Engine struct {
	params      Params
	state       engineState
	collections Collections
	payments    PaymentLedgers
	bank        NativeBank
	journal     Snapshotter
	emitter     events.Emitter
	nowFn       func() int64

	pending []events.Event
}

// NewEngine validates the fee configuration and returns an engine with a
// no-op emitter and the wall clock.
func NewEngine(params Params) (*Engine, error) {
	if err := fees.ValidateBps(params.FeeBps); err != nil {
		return nil, err
	}
	if params.Address == (common.Address{}) {
		return nil, errNilAddress
	}
	if params.FeeRecipient == (common.Address{}) {
		return nil, errNilRecipient
	}
	return &Engine{
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState configures the record store used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCollections configures the asset registry resolver.
func (e *Engine) SetCollections(c Collections) { e.collections = c }

// SetPayments configures the token ledger resolver.
func (e *Engine) SetPayments(p PaymentLedgers) { e.payments = p }

// SetBank configures the native currency bank.
func (e *Engine) SetBank(b NativeBank) { e.bank = b }

// SetJournal configures the snapshot source shared by every backend the
// engine writes to. Without one a failed operation cannot be rolled back.
func (e *Engine) SetJournal(j Snapshotter) { e.journal = j }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Address returns the marketplace custodian address.
func (e *Engine) Address() common.Address { return e.params.Address }

// Operator returns the administrative address.
func (e *Engine) Operator() common.Address { return e.params.Operator }

// PlatformFee returns the fee configuration applied to every settlement.
func (e *Engine) PlatformFee() PlatformFee {
	return PlatformFee{BasisPoints: e.params.FeeBps, Recipient: e.params.FeeRecipient}
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.collections == nil:
		return errNilRegistry
	case e.payments == nil:
		return errNilPayments
	case e.bank == nil:
		return errNilBank
	}
	return nil
}

// emit buffers an event until the running operation succeeds.
func (e *Engine) emit(evt events.Event) {
	e.pending = append(e.pending, evt)
}

// apply runs one state-mutating operation. Any error reverts every journaled
// write made by fn and discards its buffered events. The custodian account
// never acts as a caller: its balances are the escrow of every other party.
func (e *Engine) apply(op string, call Call, fn func() error) error {
	if err := e.ready(); err != nil {
		return withOp(op, err)
	}
	if call.Caller == e.params.Address {
		return withOp(op, fail(KindAuthorization, ErrCustodianCaller))
	}
	snap := 0
	if e.journal != nil {
		if n := e.journal.Pending(); n != 0 {
			return withOp(op, fmt.Errorf("%w: %d uncommitted writes", errDirtyJournal, n))
		}
		snap = e.journal.Snapshot()
	}
	e.pending = e.pending[:0]
	if err := fn(); err != nil {
		e.pending = e.pending[:0]
		err = withOp(op, err)
		if e.journal != nil {
			if rerr := e.journal.RevertToSnapshot(snap); rerr != nil {
				return errors.Join(err, fmt.Errorf("marketplace: %s: rollback: %w", op, rerr))
			}
		}
		return err
	}
	if e.journal != nil {
		if err := e.journal.Commit(); err != nil {
			e.pending = e.pending[:0]
			return withOp(op, err)
		}
	}
	emitted := e.pending
	e.pending = nil
	for _, evt := range emitted {
		e.emitter.Emit(evt)
	}
	return nil
}

func (e *Engine) requireOperator(caller common.Address) error {
	if caller != e.params.Operator {
		return fail(KindAuthorization, ErrNotOperator)
	}
	return nil
}

func (e *Engine) requirePayable(token common.Address) error {
	ok, err := e.state.MarketPayableTokenHas(token)
	if err != nil {
		return err
	}
	if !ok {
		return failf(KindValidation, ErrTokenNotPayable, "%s", token.Hex())
	}
	return nil
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fail(KindValidation, ErrZeroPrice)
	}
	return nil
}

func (e *Engine) registry(contract common.Address) (AssetRegistry, error) {
	reg, err := e.collections.Registry(contract)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Err: fmt.Errorf("%w: %v", ErrUnknownCollection, err)}
	}
	if reg == nil {
		return nil, failf(KindValidation, ErrUnknownCollection, "%s", contract.Hex())
	}
	return reg, nil
}

// requireCustodyGrant checks the caller owns the asset and has authorized the
// marketplace to move it.
func (e *Engine) requireCustodyGrant(reg AssetRegistry, caller common.Address, id *uint256.Int) error {
	owner, err := reg.OwnerOf(id)
	if err != nil {
		return &Error{Kind: KindAuthorization, Err: fmt.Errorf("%w: %v", ErrNotOwner, err)}
	}
	if owner != caller {
		return fail(KindAuthorization, ErrNotOwner)
	}
	ok, err := reg.IsAuthorized(owner, e.params.Address, id)
	if err != nil {
		return err
	}
	if !ok {
		return fail(KindAuthorization, ErrNotApproved)
	}
	return nil
}

func (e *Engine) moveCustody(reg AssetRegistry, from, to common.Address, id *uint256.Int) error {
	if err := reg.TransferCustody(from, to, id); err != nil {
		return &Error{Kind: KindState, Err: fmt.Errorf("%w: %v", ErrCustody, err)}
	}
	return nil
}

func (e *Engine) lifecycle(key AssetKey) (Lifecycle, error) {
	lc, err := e.state.MarketAssetGet(key)
	if err != nil {
		return nil, err
	}
	if lc == nil {
		return Unlisted{}, nil
	}
	return lc, nil
}

func (e *Engine) requireUnlisted(key AssetKey) error {
	lc, err := e.lifecycle(key)
	if err != nil {
		return err
	}
	if _, ok := lc.(Unlisted); !ok {
		return fail(KindState, ErrAlreadyListed)
	}
	return nil
}

func (e *Engine) activeListing(key AssetKey) (*Listing, error) {
	lc, err := e.lifecycle(key)
	if err != nil {
		return nil, err
	}
	listed, ok := lc.(Listed)
	if !ok {
		return nil, fail(KindState, ErrNoListing)
	}
	listing := listed.Listing
	return &listing, nil
}

func (e *Engine) activeAuction(key AssetKey) (*Auction, error) {
	lc, err := e.lifecycle(key)
	if err != nil {
		return nil, err
	}
	auctioned, ok := lc.(Auctioned)
	if !ok {
		return nil, fail(KindState, ErrNoAuction)
	}
	auction := auctioned.Auction
	return &auction, nil
}
