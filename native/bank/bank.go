package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/storage"
)

var balancePrefix = []byte("bank/balance/")

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's
	// balance.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	errNegativeAmount      = errors.New("bank: amount must not be negative")
)

// Bank holds native currency balances in a key-value store.
type Bank struct {
	db storage.Database
}

// New returns a bank persisting to db.
func New(db storage.Database) *Bank {
	return &Bank{db: db}
}

func balanceKey(addr common.Address) []byte {
	return append(append([]byte(nil), balancePrefix...), addr.Bytes()...)
}

// Balance returns the native balance of addr.
func (b *Bank) Balance(addr common.Address) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := storage.GetRLP(b.db, balanceKey(addr), balance)
	if err != nil {
		return nil, fmt.Errorf("bank: load balance: %w", err)
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (b *Bank) setBalance(addr common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return b.db.Delete(balanceKey(addr))
	}
	return storage.PutRLP(b.db, balanceKey(addr), amount)
}

// Credit mints amount to addr. It is used to seed sandbox balances.
func (b *Bank) Credit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	balance, err := b.Balance(addr)
	if err != nil {
		return err
	}
	return b.setBalance(addr, balance.Add(balance, amount))
}

// Transfer moves amount from one account to another.
func (b *Bank) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	fromBalance, err := b.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := b.Balance(to)
	if err != nil {
		return err
	}
	if err := b.setBalance(from, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return b.setBalance(to, toBalance.Add(toBalance, amount))
}
