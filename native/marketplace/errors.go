package marketplace

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation was rejected.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthorization: the caller does not hold the role the record requires.
	KindAuthorization
	// KindState: the record is in the wrong lifecycle state.
	KindState
	// KindPayment: escrow, allowance or attached value is wrong or insufficient.
	KindPayment
	// KindValidation: a parameter is malformed.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindPayment:
		return "payment"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is returned by every rejected marketplace operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("marketplace: %v", e.Err)
	}
	return fmt.Sprintf("marketplace: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or KindUnknown when err did not
// originate from a classified marketplace check.
func KindOf(err error) Kind {
	var merr *Error
	if errors.As(err, &merr) {
		return merr.Kind
	}
	return KindUnknown
}

var (
	errNilState     = errors.New("marketplace engine: state not configured")
	errNilRegistry  = errors.New("marketplace engine: asset registries not configured")
	errNilPayments  = errors.New("marketplace engine: payment ledgers not configured")
	errNilBank      = errors.New("marketplace engine: native bank not configured")
	errNilAddress   = errors.New("marketplace engine: marketplace address not configured")
	errNilRecipient = errors.New("marketplace engine: fee recipient not configured")
	errDirtyJournal = errors.New("marketplace engine: journal holds writes from outside an operation")
)

// Authorization failures.
var (
	ErrNotOperator     = errors.New("caller is not the operator")
	ErrNotOwner        = errors.New("caller does not own the asset")
	ErrNotApproved     = errors.New("marketplace is not authorized to transfer the asset")
	ErrNotSeller       = errors.New("caller is not the listing seller")
	ErrNotCreator      = errors.New("caller is not the auction creator")
	ErrNotResulter     = errors.New("caller is neither the operator nor the auction creator")
	ErrSelfPurchase    = errors.New("seller cannot buy or offer on their own listing")
	ErrCreatorBid      = errors.New("creator cannot bid on their own auction")
	ErrCustodianCaller = errors.New("marketplace custodian cannot act as a caller")
)

// State failures.
var (
	ErrAlreadyListed     = errors.New("asset is already listed or auctioned")
	ErrNoListing         = errors.New("no active listing")
	ErrNoAuction         = errors.New("no active auction")
	ErrNoOffer           = errors.New("no offer from this offerer")
	ErrOfferExists       = errors.New("offer already exists; cancel it before offering again")
	ErrStaleOffer        = errors.New("offer was made against a previous listing")
	ErrAuctionNotStarted = errors.New("auction has not started")
	ErrAuctionEnded      = errors.New("auction has ended")
	ErrAuctionNotEnded   = errors.New("auction has not ended")
	ErrAuctionHasBids    = errors.New("auction already has bids")
	ErrCustody           = errors.New("custody transfer failed")
)

// Payment failures.
var (
	ErrTokenMismatch   = errors.New("payment token does not match")
	ErrValueMismatch   = errors.New("attached value must equal the price exactly")
	ErrUnexpectedValue = errors.New("native value attached to a token-denominated call")
	ErrPriceAboveMax   = errors.New("price exceeds the buyer's accepted price")
	ErrPayment         = errors.New("payment transfer failed")
)

// Validation failures.
var (
	ErrZeroPrice         = errors.New("price must be positive")
	ErrNegativeIncrement = errors.New("minimum bid increment must not be negative")
	ErrInvalidWindow     = errors.New("auction end time must be after its start time")
	ErrTokenNotPayable   = errors.New("payment token is not registered")
	ErrUnknownCollection = errors.New("collection is not known to the asset registry")
	ErrBidTooLow         = errors.New("bid is below the required minimum")
	ErrZeroAddress       = errors.New("address must not be zero")
)

func fail(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

func failf(kind Kind, sentinel error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

// withOp stamps the operation name onto a classified error and wraps anything
// else so every rejection names the entry point that produced it.
func withOp(op string, err error) error {
	var merr *Error
	if errors.As(err, &merr) && merr.Op == "" {
		merr.Op = op
		return err
	}
	if merr != nil {
		return err
	}
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}
