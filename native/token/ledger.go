package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/storage"
)

var (
	tokenPrefix     = []byte("token/meta/")
	balancePrefix   = []byte("token/balance/")
	allowancePrefix = []byte("token/allowance/")
)

var (
	ErrUnknownToken          = errors.New("token: unknown token")
	ErrTokenExists           = errors.New("token: token already exists")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	errNegativeAmount        = errors.New("token: amount must not be negative")
	errZeroAddress           = errors.New("token: zero address")
)

// Meta describes a registered fungible token.
type Meta struct {
	Symbol   string
	Decimals uint8
}

// Ledger holds balances and allowances for any number of fungible tokens.
type Ledger struct {
	db storage.Database
}

// New returns a ledger persisting to db.
func New(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func key(prefix []byte, parts ...common.Address) []byte {
	out := append([]byte(nil), prefix...)
	for _, p := range parts {
		out = append(out, p.Bytes()...)
	}
	return out
}

func (l *Ledger) loadAmount(k []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := storage.GetRLP(l.db, k, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (l *Ledger) storeAmount(k []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return l.db.Delete(k)
	}
	return storage.PutRLP(l.db, k, amount)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errNegativeAmount
	}
	return nil
}

// CreateToken registers a token contract.
func (l *Ledger) CreateToken(token common.Address, meta Meta) error {
	if token == (common.Address{}) {
		return errZeroAddress
	}
	ok, err := l.HasToken(token)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, token.Hex())
	}
	return storage.PutRLP(l.db, key(tokenPrefix, token), &meta)
}

// HasToken reports whether token is registered.
func (l *Ledger) HasToken(token common.Address) (bool, error) {
	return l.db.Has(key(tokenPrefix, token))
}

// Meta returns the metadata of a registered token.
func (l *Ledger) Meta(token common.Address) (Meta, error) {
	var meta Meta
	ok, err := storage.GetRLP(l.db, key(tokenPrefix, token), &meta)
	if err != nil {
		return Meta{}, err
	}
	if !ok {
		return Meta{}, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return meta, nil
}

func (l *Ledger) requireToken(token common.Address) error {
	ok, err := l.HasToken(token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return nil
}

// Mint credits amount of token to to.
func (l *Ledger) Mint(token, to common.Address, amount *big.Int) error {
	if err := l.requireToken(token); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(token, to)
	if err != nil {
		return err
	}
	return l.storeAmount(key(balancePrefix, token, to), balance.Add(balance, amount))
}

// BalanceOf returns the balance of account.
func (l *Ledger) BalanceOf(token, account common.Address) (*big.Int, error) {
	if err := l.requireToken(token); err != nil {
		return nil, err
	}
	return l.loadAmount(key(balancePrefix, token, account))
}

// Allowance returns how much spender may pull from owner.
func (l *Ledger) Allowance(token, owner, spender common.Address) (*big.Int, error) {
	if err := l.requireToken(token); err != nil {
		return nil, err
	}
	return l.loadAmount(key(allowancePrefix, token, owner, spender))
}

// Approve sets spender's allowance over owner's balance.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if err := l.requireToken(token); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.storeAmount(key(allowancePrefix, token, owner, spender), new(big.Int).Set(amount))
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return errZeroAddress
	}
	fromBalance, err := l.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance, amount)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	toBalance, err := l.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := l.storeAmount(key(balancePrefix, token, from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.storeAmount(key(balancePrefix, token, to), toBalance.Add(toBalance, amount))
}

// TransferFrom spends spender's allowance over from to move amount to to.
func (l *Ledger) TransferFrom(token, spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(token, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowance, amount)
	}
	if err := l.Transfer(token, from, to, amount); err != nil {
		return err
	}
	return l.storeAmount(key(allowancePrefix, token, from, spender), allowance.Sub(allowance, amount))
}

// Account returns the view of token held by holder, such as the marketplace.
func (l *Ledger) Account(token, holder common.Address) (*Account, error) {
	if err := l.requireToken(token); err != nil {
		return nil, err
	}
	return &Account{ledger: l, token: token, holder: holder}, nil
}

// Account is one token seen by a fixed holder: Transfer spends the holder's
// own balance and TransferFrom spends allowances granted to it.
type Account struct {
	ledger *Ledger
	token  common.Address
	holder common.Address
}

func (a *Account) BalanceOf(account common.Address) (*big.Int, error) {
	return a.ledger.BalanceOf(a.token, account)
}

func (a *Account) Transfer(to common.Address, amount *big.Int) error {
	return a.ledger.Transfer(a.token, a.holder, to, amount)
}

func (a *Account) TransferFrom(from, to common.Address, amount *big.Int) error {
	return a.ledger.TransferFrom(a.token, a.holder, from, to, amount)
}
