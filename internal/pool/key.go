package pool

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
)

// Key identifies a pool: an ordered asset pair plus a seed that allows several
// pools over the same pair.
type Key struct {
	AssetA common.Address
	AssetB common.Address
	Seed   uint64
}

// ID derives the pool id from the key.
func (k Key) ID() common.Hash {
	buf := make([]byte, 0, len("clmm/pool")+2*common.AddressLength+8)
	buf = append(buf, "clmm/pool"...)
	buf = append(buf, k.AssetA.Bytes()...)
	buf = append(buf, k.AssetB.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, k.Seed)
	return common.Hash(blake3.Sum256(buf))
}

// Account derives the custody account that holds the pool's reserves.
func (k Key) Account() common.Address {
	id := k.ID()
	sum := blake3.Sum256(append([]byte("clmm/account"), id.Bytes()...))
	return common.BytesToAddress(sum[12:])
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s#%d", k.AssetA.Hex(), k.AssetB.Hex(), k.Seed)
}

// Direction is the side of the pair a swap sells.
type Direction int

const (
	// AToB sells asset A for asset B; the price falls.
	AToB Direction = iota
	// BToA sells asset B for asset A; the price rises.
	BToA
)

func (d Direction) String() string {
	if d == BToA {
		return "b_to_a"
	}
	return "a_to_b"
}

// ParseDirection accepts "a_to_b" or "b_to_a" (dashes allowed, case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "a_to_b", "atob":
		return AToB, nil
	case "b_to_a", "btoa":
		return BToA, nil
	default:
		return AToB, fmt.Errorf("unknown swap direction %q", s)
	}
}
