package sandbox

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/core/state"
	"nftmarket/native/bank"
	"nftmarket/native/marketplace"
	"nftmarket/native/nft"
	"nftmarket/native/token"
	"nftmarket/storage"
)

// Sandbox wires a marketplace engine to in-process asset, token and native
// ledgers that share one journal, so a failed operation rolls back every
// ledger it touched.
type Sandbox struct {
	Journal *storage.Journal
	Store   *state.MarketStore
	Assets  *nft.Registry
	Tokens  *token.Ledger
	Bank    *bank.Bank
	Engine  *marketplace.Engine
}

// New builds the ledgers over db and an engine configured with params.
func New(db storage.Database, params marketplace.Params) (*Sandbox, error) {
	engine, err := marketplace.NewEngine(params)
	if err != nil {
		return nil, err
	}
	journal := storage.NewJournal(db)
	s := &Sandbox{
		Journal: journal,
		Store:   state.NewMarketStore(journal),
		Assets:  nft.New(journal),
		Tokens:  token.New(journal),
		Bank:    bank.New(journal),
		Engine:  engine,
	}
	engine.SetState(s.Store)
	engine.SetCollections(s.Collections())
	engine.SetPayments(s.Payments())
	engine.SetBank(s.Bank)
	engine.SetJournal(journal)
	return s, nil
}

// Collections resolves collections created in the asset registry, bound to
// the marketplace as operator.
func (s *Sandbox) Collections() marketplace.Collections {
	market := s.Engine.Address()
	return marketplace.CollectionsFunc(func(contract common.Address) (marketplace.AssetRegistry, error) {
		view, err := s.Assets.Collection(contract, market)
		if err != nil {
			return nil, err
		}
		return view, nil
	})
}

// Payments resolves token ledgers held by the marketplace.
func (s *Sandbox) Payments() marketplace.PaymentLedgers {
	market := s.Engine.Address()
	return marketplace.LedgersFunc(func(tok common.Address) (marketplace.PaymentLedger, error) {
		account, err := s.Tokens.Account(tok, market)
		if err != nil {
			return nil, err
		}
		return account, nil
	})
}

// Balance is an amount held by an account.
type Balance struct {
	Account common.Address
	Amount  *big.Int
}

// Token seeds a fungible token. Allowances are granted to the marketplace.
type Token struct {
	Address    common.Address
	Symbol     string
	Decimals   uint8
	Balances   []Balance
	Allowances []Balance
}

// Asset seeds a single minted asset.
type Asset struct {
	ID    *uint256.Int
	Owner common.Address
}

// Collection seeds a collection and its assets. Operators listed in
// MarketApprovals have approved the marketplace for all their assets.
type Collection struct {
	Address         common.Address
	Name            string
	Assets          []Asset
	MarketApprovals []common.Address
}

// Genesis is the initial sandbox state.
type Genesis struct {
	Native        []Balance
	Tokens        []Token
	Collections   []Collection
	PayableTokens []common.Address
}

var genesisMarker = []byte("sandbox/genesis")

// Initialized reports whether a genesis has already been applied to the
// underlying database.
func (s *Sandbox) Initialized() (bool, error) {
	return s.Journal.Has(genesisMarker)
}

// ApplyGenesis seeds the ledgers in one committed step, then registers the
// payable tokens through the operator. A database that was already seeded is
// left untouched.
func (s *Sandbox) ApplyGenesis(g Genesis) error {
	done, err := s.Initialized()
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	if err := s.commit(func() error { return s.seedLedgers(g) }); err != nil {
		return fmt.Errorf("sandbox: genesis: %w", err)
	}
	operator := marketplace.Call{Caller: s.Engine.Operator()}
	for _, tok := range g.PayableTokens {
		if err := s.Engine.AddPayableToken(operator, tok); err != nil {
			return fmt.Errorf("sandbox: genesis: %w", err)
		}
	}
	return nil
}

func (s *Sandbox) seedLedgers(g Genesis) error {
	market := s.Engine.Address()
	for _, b := range g.Native {
		if err := s.Bank.Credit(b.Account, b.Amount); err != nil {
			return fmt.Errorf("native balance %s: %w", b.Account.Hex(), err)
		}
	}
	for _, t := range g.Tokens {
		if err := s.Tokens.CreateToken(t.Address, token.Meta{Symbol: t.Symbol, Decimals: t.Decimals}); err != nil {
			return err
		}
		for _, b := range t.Balances {
			if err := s.Tokens.Mint(t.Address, b.Account, b.Amount); err != nil {
				return fmt.Errorf("token %s balance: %w", t.Symbol, err)
			}
		}
		for _, a := range t.Allowances {
			if err := s.Tokens.Approve(t.Address, a.Account, market, a.Amount); err != nil {
				return fmt.Errorf("token %s allowance: %w", t.Symbol, err)
			}
		}
	}
	for _, c := range g.Collections {
		if err := s.Assets.CreateCollection(c.Address, c.Name); err != nil {
			return err
		}
		for _, a := range c.Assets {
			if err := s.Assets.Mint(c.Address, a.Owner, a.ID); err != nil {
				return err
			}
		}
		for _, owner := range c.MarketApprovals {
			if err := s.Assets.SetApprovalForAll(c.Address, owner, market, true); err != nil {
				return err
			}
		}
	}
	return s.Journal.Put(genesisMarker, []byte{1})
}

// ApproveAsset lets the marketplace move a single asset of owner.
func (s *Sandbox) ApproveAsset(owner, contract common.Address, id *uint256.Int) error {
	return s.commit(func() error {
		return s.Assets.Approve(contract, owner, s.Engine.Address(), id)
	})
}

// ApproveToken sets the marketplace's allowance over owner's token balance.
func (s *Sandbox) ApproveToken(owner, tok common.Address, amount *big.Int) error {
	return s.commit(func() error {
		return s.Tokens.Approve(tok, owner, s.Engine.Address(), amount)
	})
}

// BalanceOf returns account's balance of tok, or of native currency when tok
// is the native sentinel.
func (s *Sandbox) BalanceOf(tok, account common.Address) (*big.Int, error) {
	if tok == marketplace.NativeToken {
		return s.Bank.Balance(account)
	}
	return s.Tokens.BalanceOf(tok, account)
}

func (s *Sandbox) commit(fn func() error) error {
	snap := s.Journal.Snapshot()
	if err := fn(); err != nil {
		if rerr := s.Journal.RevertToSnapshot(snap); rerr != nil {
			return fmt.Errorf("%v (rollback: %w)", err, rerr)
		}
		return err
	}
	return s.Journal.Commit()
}
