package bytecode

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// unitNamespace seeds the name-based UUIDs derived from unit content.
var unitNamespace = uuid.MustParse("6f9c0a52-3d1e-4b8a-9c57-1e2f4a7b8d30")

// ContentHash computes the SHA-256 of the unit's canonical encoding. Two
// units with identical code, literals, tables and nested units hash equal.
func ContentHash(u *Unit) ([32]byte, error) {
	data, err := MarshalUnit(u)
	if err != nil {
		return [32]byte{}, fmt.Errorf("bytecode: hash %s: %w", u.Name, err)
	}
	return sha256.Sum256(data), nil
}

// UnitID derives a stable identifier from the unit's content hash, so
// recompiling the same input yields the same id.
func UnitID(u *Unit) (uuid.UUID, error) {
	h, err := ContentHash(u)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.NewSHA1(unitNamespace, h[:]), nil
}
