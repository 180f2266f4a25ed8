package proof

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []Entry {
	return []Entry{
		{PoolID: 0, Account: common.HexToAddress("0x1000000000000000000000000000000000000001"), Amount: big.NewInt(100)},
		{PoolID: 0, Account: common.HexToAddress("0x2000000000000000000000000000000000000002"), Amount: big.NewInt(250)},
		{PoolID: 0, Account: common.HexToAddress("0x3000000000000000000000000000000000000003"), Amount: big.NewInt(999)},
		{PoolID: 1, Account: common.HexToAddress("0x1000000000000000000000000000000000000001"), Amount: big.NewInt(100)},
		{PoolID: 0, Account: common.HexToAddress("0x5000000000000000000000000000000000000005"), Amount: new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)},
	}
}

func TestLeafEncodingIsPackedPoolAddressAmount(t *testing.T) {
	account := common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
	got, err := Leaf(7, account, big.NewInt(0x0102))
	require.NoError(t, err)

	packed := make([]byte, 84)
	packed[31] = 7
	copy(packed[32:52], account.Bytes())
	packed[82] = 0x01
	packed[83] = 0x02
	require.Equal(t, crypto.Keccak256Hash(packed), got)

	_, err = Leaf(0, account, big.NewInt(-1))
	require.Error(t, err)
	_, err = Leaf(0, account, new(big.Int).Lsh(big.NewInt(1), 256))
	require.Error(t, err)
}

func TestWhitelistTreeProofsVerify(t *testing.T) {
	for n := 1; n <= len(sampleEntries()); n++ {
		entries := sampleEntries()[:n]
		tree, err := NewWhitelistTree(entries)
		require.NoError(t, err)
		for i, e := range entries {
			path, err := tree.Proof(i)
			require.NoError(t, err)
			require.Truef(t, VerifyWhitelist(tree.Root(), e.PoolID, e.Account, e.Amount, path), "n=%d leaf %d", n, i)
		}
	}
}

func TestSingleLeafRootIsLeaf(t *testing.T) {
	e := sampleEntries()[0]
	tree, err := NewWhitelistTree([]Entry{e})
	require.NoError(t, err)
	leaf, _ := Leaf(e.PoolID, e.Account, e.Amount)
	require.Equal(t, leaf, tree.Root())
	path, err := tree.Proof(0)
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestWhitelistProofRejectsTamperedInputs(t *testing.T) {
	entries := sampleEntries()
	tree, err := NewWhitelistTree(entries)
	require.NoError(t, err)
	root := tree.Root()

	for i, e := range entries {
		path, err := tree.Proof(i)
		require.NoError(t, err)

		require.False(t, VerifyWhitelist(root, e.PoolID, e.Account, new(big.Int).Add(e.Amount, big.NewInt(1)), path), "amount+1")
		require.False(t, VerifyWhitelist(root, e.PoolID, e.Account, new(big.Int).Sub(e.Amount, big.NewInt(1)), path), "amount-1")
		require.False(t, VerifyWhitelist(root, e.PoolID+1, e.Account, e.Amount, path), "other pool")

		other := e.Account
		other[19] ^= 0x01
		require.False(t, VerifyWhitelist(root, e.PoolID, other, e.Amount, path), "other address")

		for j := range entries {
			if j == i {
				continue
			}
			require.False(t, VerifyWhitelist(root, entries[j].PoolID, entries[j].Account, entries[j].Amount, path), "proof %d reused for %d", i, j)
		}

		if len(path) > 0 {
			bad := append([]common.Hash(nil), path...)
			bad[0][0] ^= 0xff
			require.False(t, VerifyWhitelist(root, e.PoolID, e.Account, e.Amount, bad), "tampered sibling")
			require.False(t, VerifyWhitelist(root, e.PoolID, e.Account, e.Amount, path[:len(path)-1]), "truncated proof")
		}
		require.False(t, VerifyWhitelist(common.Hash{}, e.PoolID, e.Account, e.Amount, path), "zero root")
	}
}

func TestWhitelistTreeErrors(t *testing.T) {
	_, err := NewWhitelistTree(nil)
	require.ErrorIs(t, err, ErrEmptyTree)

	tree, err := NewWhitelistTree(sampleEntries())
	require.NoError(t, err)
	_, err = tree.Proof(len(sampleEntries()))
	require.Error(t, err)
}
