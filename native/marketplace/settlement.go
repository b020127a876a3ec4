package marketplace

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/native/fees"
)

func paymentErr(err error) error {
	return &Error{Kind: KindPayment, Err: fmt.Errorf("%w: %v", ErrPayment, err)}
}

// requireNoValue rejects native value attached to a call that does not take
// native payment, so nothing is retained silently.
func requireNoValue(call Call) error {
	if call.value().Sign() != 0 {
		return fail(KindPayment, ErrUnexpectedValue)
	}
	return nil
}

// checkAttached validates the value attached to a call that pays amount in
// token.
func checkAttached(call Call, token common.Address, amount *big.Int) error {
	if token == NativeToken {
		if call.value().Cmp(amount) != 0 {
			return failf(KindPayment, ErrValueMismatch, "attached %s, required %s", call.value(), amount)
		}
		return nil
	}
	return requireNoValue(call)
}

func (e *Engine) ledger(token common.Address) (PaymentLedger, error) {
	ledger, err := e.payments.Ledger(token)
	if err != nil {
		return nil, paymentErr(err)
	}
	if ledger == nil {
		return nil, paymentErr(fmt.Errorf("no ledger for token %s", token.Hex()))
	}
	return ledger, nil
}

// checkFunds confirms the payer holds at least amount before any write.
func (e *Engine) checkFunds(payer, token common.Address, amount *big.Int) error {
	var (
		balance *big.Int
		err     error
	)
	if token == NativeToken {
		balance, err = e.bank.Balance(payer)
	} else {
		var ledger PaymentLedger
		if ledger, err = e.ledger(token); err != nil {
			return err
		}
		balance, err = ledger.BalanceOf(payer)
	}
	if err != nil {
		return paymentErr(err)
	}
	if balance == nil || balance.Cmp(amount) < 0 {
		return paymentErr(fmt.Errorf("insufficient balance: have %s, need %s", cloneBigInt(balance), amount))
	}
	return nil
}

// collect moves amount from the payer into marketplace escrow. Native value
// is the value attached to the call; tokens are pulled through the payer's
// allowance.
func (e *Engine) collect(payer, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if token == NativeToken {
		if err := e.bank.Transfer(payer, e.params.Address, amount); err != nil {
			return paymentErr(err)
		}
		return nil
	}
	ledger, err := e.ledger(token)
	if err != nil {
		return err
	}
	if err := ledger.TransferFrom(payer, e.params.Address, amount); err != nil {
		return paymentErr(err)
	}
	return nil
}

// payOut releases amount from marketplace escrow. Zero legs are skipped.
func (e *Engine) payOut(token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if token == NativeToken {
		if err := e.bank.Transfer(e.params.Address, to, amount); err != nil {
			return paymentErr(err)
		}
		return nil
	}
	ledger, err := e.ledger(token)
	if err != nil {
		return err
	}
	if err := ledger.Transfer(to, amount); err != nil {
		return paymentErr(err)
	}
	return nil
}

// settle pays the platform fee on gross to the fee recipient and the
// remainder to payee, both from escrow.
func (e *Engine) settle(token, payee common.Address, gross *big.Int) (fees.Result, error) {
	split, err := fees.Split(gross, e.params.FeeBps)
	if err != nil {
		return fees.Result{}, fail(KindValidation, err)
	}
	if err := e.payOut(token, e.params.FeeRecipient, split.Fee); err != nil {
		return fees.Result{}, err
	}
	if err := e.payOut(token, payee, split.Net); err != nil {
		return fees.Result{}, err
	}
	return split, nil
}
