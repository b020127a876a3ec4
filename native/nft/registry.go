package nft

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftmarket/storage"
)

var (
	collectionPrefix = []byte("nft/collection/")
	ownerPrefix      = []byte("nft/owner/")
	approvalPrefix   = []byte("nft/approval/")
	operatorPrefix   = []byte("nft/operator/")
)

var (
	ErrUnknownCollection = errors.New("nft: unknown collection")
	ErrCollectionExists  = errors.New("nft: collection already exists")
	ErrTokenNotFound     = errors.New("nft: token does not exist")
	ErrTokenExists       = errors.New("nft: token already minted")
	ErrNotOwner          = errors.New("nft: from is not the owner")
	ErrNotAuthorized     = errors.New("nft: caller is not authorized for the token")
	errZeroAddress       = errors.New("nft: zero address")
)

// Registry is an asset-ownership ledger hosting any number of collections.
// Each collection follows the usual per-token approval and per-owner operator
// rules.
type Registry struct {
	db storage.Database
}

// New returns a registry persisting to db.
func New(db storage.Database) *Registry {
	return &Registry{db: db}
}

func key(prefix []byte, parts ...[]byte) []byte {
	out := append([]byte(nil), prefix...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func tokenKey(prefix []byte, contract common.Address, id *uint256.Int) []byte {
	b := id.Bytes32()
	return key(prefix, contract.Bytes(), b[:])
}

// CreateCollection registers a new collection contract.
func (r *Registry) CreateCollection(contract common.Address, name string) error {
	if contract == (common.Address{}) {
		return errZeroAddress
	}
	ok, err := r.HasCollection(contract)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, contract.Hex())
	}
	return storage.PutRLP(r.db, key(collectionPrefix, contract.Bytes()), name)
}

// HasCollection reports whether contract was created in this registry.
func (r *Registry) HasCollection(contract common.Address) (bool, error) {
	return r.db.Has(key(collectionPrefix, contract.Bytes()))
}

// CollectionName returns the display name of a collection.
func (r *Registry) CollectionName(contract common.Address) (string, error) {
	var name string
	ok, err := storage.GetRLP(r.db, key(collectionPrefix, contract.Bytes()), &name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnknownCollection
	}
	return name, nil
}

func (r *Registry) requireCollection(contract common.Address) error {
	ok, err := r.HasCollection(contract)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, contract.Hex())
	}
	return nil
}

// Mint creates token id in contract owned by to.
func (r *Registry) Mint(contract, to common.Address, id *uint256.Int) error {
	if err := r.requireCollection(contract); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return errZeroAddress
	}
	exists, err := r.db.Has(tokenKey(ownerPrefix, contract, id))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTokenExists, id.Dec())
	}
	return r.db.Put(tokenKey(ownerPrefix, contract, id), to.Bytes())
}

// OwnerOf returns the current owner of a token.
func (r *Registry) OwnerOf(contract common.Address, id *uint256.Int) (common.Address, error) {
	if err := r.requireCollection(contract); err != nil {
		return common.Address{}, err
	}
	data, err := r.db.Get(tokenKey(ownerPrefix, contract, id))
	if errors.Is(err, storage.ErrNotFound) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrTokenNotFound, id.Dec())
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(data), nil
}

// GetApproved returns the single-token approval, or the zero address.
func (r *Registry) GetApproved(contract common.Address, id *uint256.Int) (common.Address, error) {
	data, err := r.db.Get(tokenKey(approvalPrefix, contract, id))
	if errors.Is(err, storage.ErrNotFound) {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(data), nil
}

// IsApprovedForAll reports whether operator may move every token of owner.
func (r *Registry) IsApprovedForAll(contract, owner, operator common.Address) (bool, error) {
	return r.db.Has(key(operatorPrefix, contract.Bytes(), owner.Bytes(), operator.Bytes()))
}

// Approve lets spender move a single token. The caller must be the owner or
// one of its operators.
func (r *Registry) Approve(contract, caller, spender common.Address, id *uint256.Int) error {
	owner, err := r.OwnerOf(contract, id)
	if err != nil {
		return err
	}
	if caller != owner {
		ok, err := r.IsApprovedForAll(contract, owner, caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAuthorized
		}
	}
	if spender == (common.Address{}) {
		return r.db.Delete(tokenKey(approvalPrefix, contract, id))
	}
	return r.db.Put(tokenKey(approvalPrefix, contract, id), spender.Bytes())
}

// SetApprovalForAll grants or revokes operator rights over all of owner's
// tokens in the collection.
func (r *Registry) SetApprovalForAll(contract, owner, operator common.Address, approved bool) error {
	if err := r.requireCollection(contract); err != nil {
		return err
	}
	k := key(operatorPrefix, contract.Bytes(), owner.Bytes(), operator.Bytes())
	if !approved {
		return r.db.Delete(k)
	}
	return r.db.Put(k, []byte{1})
}

// IsAuthorized reports whether operator may move token id on behalf of owner.
func (r *Registry) IsAuthorized(contract, owner, operator common.Address, id *uint256.Int) (bool, error) {
	current, err := r.OwnerOf(contract, id)
	if err != nil {
		return false, err
	}
	if current != owner {
		return false, nil
	}
	if operator == owner {
		return true, nil
	}
	approved, err := r.GetApproved(contract, id)
	if err != nil {
		return false, err
	}
	if approved == operator {
		return true, nil
	}
	return r.IsApprovedForAll(contract, owner, operator)
}

// TransferFrom moves token id from its owner to to on behalf of spender and
// clears the token's single approval.
func (r *Registry) TransferFrom(contract, spender, from, to common.Address, id *uint256.Int) error {
	if to == (common.Address{}) {
		return errZeroAddress
	}
	owner, err := r.OwnerOf(contract, id)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrNotOwner
	}
	ok, err := r.IsAuthorized(contract, from, spender, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	if err := r.db.Delete(tokenKey(approvalPrefix, contract, id)); err != nil {
		return err
	}
	return r.db.Put(tokenKey(ownerPrefix, contract, id), to.Bytes())
}

// Collection returns the view of contract used by an operator such as the
// marketplace. Unknown collections are rejected.
func (r *Registry) Collection(contract, operator common.Address) (*Collection, error) {
	if err := r.requireCollection(contract); err != nil {
		return nil, err
	}
	return &Collection{registry: r, contract: contract, operator: operator}, nil
}

// Collection is a single collection seen by a fixed operator.
type Collection struct {
	registry *Registry
	contract common.Address
	operator common.Address
}

func (c *Collection) OwnerOf(id *uint256.Int) (common.Address, error) {
	return c.registry.OwnerOf(c.contract, id)
}

func (c *Collection) IsAuthorized(owner, operator common.Address, id *uint256.Int) (bool, error) {
	return c.registry.IsAuthorized(c.contract, owner, operator, id)
}

// TransferCustody moves a token with the view's operator as spender.
func (c *Collection) TransferCustody(from, to common.Address, id *uint256.Int) error {
	return c.registry.TransferFrom(c.contract, c.operator, from, to, id)
}
