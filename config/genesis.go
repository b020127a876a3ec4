package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/native/marketplace"
	"nftmarket/native/sandbox"
)

// Params converts the marketplace section into engine parameters.
func (c *Config) Params() (marketplace.Params, error) {
	address, err := parseAddress("marketplace.Address", c.Marketplace.Address)
	if err != nil {
		return marketplace.Params{}, err
	}
	operator, err := parseAddress("marketplace.Operator", c.Marketplace.Operator)
	if err != nil {
		return marketplace.Params{}, err
	}
	recipient, err := parseAddress("marketplace.FeeRecipient", c.Marketplace.FeeRecipient)
	if err != nil {
		return marketplace.Params{}, err
	}
	return marketplace.Params{
		Address:      address,
		Operator:     operator,
		FeeBps:       c.Marketplace.FeeBps,
		FeeRecipient: recipient,
	}, nil
}

// Sandbox converts the genesis section into sandbox seed data.
func (g GenesisConfig) Sandbox() (sandbox.Genesis, error) {
	var out sandbox.Genesis
	for i, raw := range g.PayableTokens {
		addr, err := parseAddress(fmt.Sprintf("genesis.PayableTokens[%d]", i), raw)
		if err != nil {
			return sandbox.Genesis{}, err
		}
		out.PayableTokens = append(out.PayableTokens, addr)
	}
	native, err := parseBalances("genesis.Native", g.Native)
	if err != nil {
		return sandbox.Genesis{}, err
	}
	out.Native = native
	for i, tok := range g.Tokens {
		field := fmt.Sprintf("genesis.Tokens[%d]", i)
		addr, err := parseAddress(field+".Address", tok.Address)
		if err != nil {
			return sandbox.Genesis{}, err
		}
		balances, err := parseBalances(field+".Balances", tok.Balances)
		if err != nil {
			return sandbox.Genesis{}, err
		}
		allowances, err := parseBalances(field+".Allowances", tok.Allowances)
		if err != nil {
			return sandbox.Genesis{}, err
		}
		out.Tokens = append(out.Tokens, sandbox.Token{
			Address:    addr,
			Symbol:     strings.TrimSpace(tok.Symbol),
			Decimals:   tok.Decimals,
			Balances:   balances,
			Allowances: allowances,
		})
	}
	for i, col := range g.Collections {
		field := fmt.Sprintf("genesis.Collections[%d]", i)
		addr, err := parseAddress(field+".Address", col.Address)
		if err != nil {
			return sandbox.Genesis{}, err
		}
		seeded := sandbox.Collection{Address: addr, Name: strings.TrimSpace(col.Name)}
		for j, asset := range col.Assets {
			assetField := fmt.Sprintf("%s.Assets[%d]", field, j)
			id, err := ParseAssetID(asset.ID)
			if err != nil {
				return sandbox.Genesis{}, fmt.Errorf("%s.ID: %w", assetField, err)
			}
			owner, err := parseAddress(assetField+".Owner", asset.Owner)
			if err != nil {
				return sandbox.Genesis{}, err
			}
			seeded.Assets = append(seeded.Assets, sandbox.Asset{ID: id, Owner: owner})
		}
		for j, raw := range col.MarketApprovals {
			owner, err := parseAddress(fmt.Sprintf("%s.MarketApprovals[%d]", field, j), raw)
			if err != nil {
				return sandbox.Genesis{}, err
			}
			seeded.MarketApprovals = append(seeded.MarketApprovals, owner)
		}
		out.Collections = append(out.Collections, seeded)
	}
	return out, nil
}

// ParseAssetID accepts a decimal or 0x-prefixed hexadecimal asset id.
func ParseAssetID(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("asset id required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		id, err := uint256.FromHex(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid asset id %q: %w", raw, err)
		}
		return id, nil
	}
	id, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid asset id %q: %w", raw, err)
	}
	return id, nil
}

// ParseAmount parses a non-negative decimal amount.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", raw)
	}
	return amount, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseBalances(field string, in []BalanceConfig) ([]sandbox.Balance, error) {
	out := make([]sandbox.Balance, 0, len(in))
	for i, b := range in {
		entry := fmt.Sprintf("%s[%d]", field, i)
		account, err := parseAddress(entry+".Account", b.Account)
		if err != nil {
			return nil, err
		}
		amount, err := ParseAmount(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("%s.Amount: %w", entry, err)
		}
		out = append(out, sandbox.Balance{Account: account, Amount: amount})
	}
	return out, nil
}
