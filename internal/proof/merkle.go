// Package proof verifies the authorization artifacts pools consume: Merkle
// whitelist proofs and signed contribution quotes.
package proof

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrEmptyTree = errors.New("whitelist has no entries")

// Entry is one whitelist allowance.
type Entry struct {
	PoolID  uint64
	Account common.Address
	Amount  *big.Int
}

// Leaf hashes abi.encodePacked(uint256 poolId, address account, uint256 amount).
// The layout is fixed: 32 + 20 + 32 bytes.
func Leaf(poolID uint64, account common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 256 {
		return common.Hash{}, fmt.Errorf("amount %v out of uint256 range", amount)
	}
	buf := make([]byte, 0, 84)
	buf = append(buf, common.LeftPadBytes(new(big.Int).SetUint64(poolID).Bytes(), 32)...)
	buf = append(buf, account.Bytes()...)
	buf = append(buf, common.LeftPadBytes(amount.Bytes(), 32)...)
	return crypto.Keccak256Hash(buf), nil
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// VerifyWhitelist replays proof from the (poolID, account, amount) leaf and
// reports whether it reaches root. Sibling order within a pair does not matter.
func VerifyWhitelist(root common.Hash, poolID uint64, account common.Address, amount *big.Int, proof []common.Hash) bool {
	if root == (common.Hash{}) {
		return false
	}
	node, err := Leaf(poolID, account, amount)
	if err != nil {
		return false
	}
	for _, sibling := range proof {
		node = hashPair(node, sibling)
	}
	return node == root
}

// WhitelistTree is a sorted-pair keccak tree over entry leaves. Leaves keep
// input order; an unpaired node at the end of a level moves up unchanged.
type WhitelistTree struct {
	levels [][]common.Hash
}

// NewWhitelistTree hashes entries into leaves and builds the tree. Entry order is kept.
func NewWhitelistTree(entries []Entry) (*WhitelistTree, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyTree
	}
	leaves := make([]common.Hash, len(entries))
	for i, e := range entries {
		leaf, err := Leaf(e.PoolID, e.Account, e.Amount)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		leaves[i] = leaf
	}

	levels := [][]common.Hash{leaves}
	for cur := leaves; len(cur) > 1; {
		next := make([]common.Hash, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 == len(cur) {
				next = append(next, cur[i])
				continue
			}
			next = append(next, hashPair(cur[i], cur[i+1]))
		}
		levels = append(levels, next)
		cur = next
	}
	return &WhitelistTree{levels: levels}, nil
}

// Root returns the tree root.
func (t *WhitelistTree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Len is the number of leaves.
func (t *WhitelistTree) Len() int {
	return len(t.levels[0])
}

// Leaf returns the hash of entry i.
func (t *WhitelistTree) Leaf(i int) common.Hash {
	return t.levels[0][i]
}

// Proof returns the sibling path for leaf i.
func (t *WhitelistTree) Proof(i int) ([]common.Hash, error) {
	if i < 0 || i >= t.Len() {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", i, t.Len())
	}
	var path []common.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := i ^ 1
		if sibling < len(level) {
			path = append(path, level[sibling])
		}
		i /= 2
	}
	return path, nil
}
