package proof

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// WhitelistProof is one account's allowance and sibling path.
type WhitelistProof struct {
	PoolID uint64        `json:"pid"`
	Amount string        `json:"amount"`
	Leaf   common.Hash   `json:"leaf"`
	Proof  []common.Hash `json:"proof"`
}

// WhitelistFile is the distributable form of a whitelist: the root an
// admin configures and the proof each account submits.
type WhitelistFile struct {
	Root   common.Hash               `json:"root"`
	Proofs map[string]WhitelistProof `json:"proofs"`
}

// ReadWhitelistCSV parses rows of poolId,address,amount. Amounts are base
// units. A first row that does not start with a number is a header.
func ReadWhitelistCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var out []Entry
	for row := 1; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whitelist row %d: %w", row, err)
		}
		pid, err := strconv.ParseUint(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			if row == 1 {
				continue
			}
			return nil, fmt.Errorf("whitelist row %d: pool id %q: %w", row, rec[0], err)
		}
		addr := strings.TrimSpace(rec[1])
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("whitelist row %d: invalid address %q", row, addr)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(rec[2]), 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("whitelist row %d: invalid amount %q", row, rec[2])
		}
		out = append(out, Entry{PoolID: pid, Account: common.HexToAddress(addr), Amount: amount})
	}
	if len(out) == 0 {
		return nil, ErrEmptyTree
	}
	return out, nil
}

// BuildWhitelistFile builds the tree over entries and collects a proof per
// account. An account may appear once.
func BuildWhitelistFile(entries []Entry) (WhitelistFile, error) {
	tree, err := NewWhitelistTree(entries)
	if err != nil {
		return WhitelistFile{}, err
	}
	out := WhitelistFile{Root: tree.Root(), Proofs: make(map[string]WhitelistProof, len(entries))}
	for i, e := range entries {
		key := e.Account.Hex()
		if _, dup := out.Proofs[key]; dup {
			return WhitelistFile{}, fmt.Errorf("duplicate whitelist account %s", key)
		}
		path, err := tree.Proof(i)
		if err != nil {
			return WhitelistFile{}, err
		}
		out.Proofs[key] = WhitelistProof{
			PoolID: e.PoolID,
			Amount: e.Amount.String(),
			Leaf:   tree.Leaf(i),
			Proof:  path,
		}
	}
	return out, nil
}

// Verify checks every proof in the file against its root.
func (f WhitelistFile) Verify() error {
	for key, p := range f.Proofs {
		amount, ok := new(big.Int).SetString(p.Amount, 10)
		if !ok {
			return fmt.Errorf("%s: invalid amount %q", key, p.Amount)
		}
		if !VerifyWhitelist(f.Root, p.PoolID, common.HexToAddress(key), amount, p.Proof) {
			return fmt.Errorf("%s: proof does not match root %s", key, hexutil.Encode(f.Root[:]))
		}
	}
	return nil
}
