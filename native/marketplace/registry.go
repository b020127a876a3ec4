package marketplace

import (
	"github.com/ethereum/go-ethereum/common"

	"nftmarket/core/events"
)

// AddPayableToken registers token as an accepted settlement asset. Only the
// operator may call it; registering a known token is a no-op.
func (e *Engine) AddPayableToken(call Call, token common.Address) error {
	return e.apply("addPayableToken", call, func() error {
		if err := e.requireOperator(call.Caller); err != nil {
			return err
		}
		if err := requireNoValue(call); err != nil {
			return err
		}
		known, err := e.state.MarketPayableTokenHas(token)
		if err != nil {
			return err
		}
		if known {
			return nil
		}
		if err := e.state.MarketPayableTokenAdd(token); err != nil {
			return err
		}
		e.emit(events.PayableTokenAdded{Token: token})
		return nil
	})
}

// IsPayableToken reports whether token is accepted for settlement.
func (e *Engine) IsPayableToken(token common.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.MarketPayableTokenHas(token)
}

// PayableTokens lists the registered settlement assets in registration order.
func (e *Engine) PayableTokens() ([]common.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.MarketPayableTokens()
}
