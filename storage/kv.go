package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"
)

// PutRLP stores value under key using RLP encoding.
func PutRLP(db Database, key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return db.Put(key, encoded)
}

// GetRLP decodes the value stored under key into out. The boolean reports
// whether the key existed.
func GetRLP(db Database, key []byte, out interface{}) (bool, error) {
	data, err := db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
