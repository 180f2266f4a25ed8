package proof

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestQuoteSignAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	account := common.HexToAddress("0x4444444444444444444444444444444444444444")
	amount := new(big.Int).Mul(big.NewInt(500), big.NewInt(1e18))

	sig, err := SignQuote(key, account, amount)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])

	require.True(t, VerifyQuote(signer, account, amount, sig))
	got, err := RecoverQuoteSigner(account, amount, sig)
	require.NoError(t, err)
	require.Equal(t, signer, got)

	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	require.True(t, VerifyQuote(signer, account, amount, raw), "v in {0,1} accepted")
}

func TestQuoteRejectsTampering(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	account := common.HexToAddress("0x4444444444444444444444444444444444444444")
	amount := big.NewInt(1000)

	sig, err := SignQuote(key, account, amount)
	require.NoError(t, err)

	require.False(t, VerifyQuote(signer, account, big.NewInt(1001), sig), "amount changed")
	require.False(t, VerifyQuote(signer, common.HexToAddress("0x5555555555555555555555555555555555555555"), amount, sig), "account changed")
	require.False(t, VerifyQuote(common.HexToAddress("0x6666666666666666666666666666666666666666"), account, amount, sig), "wrong signer")
	require.False(t, VerifyQuote(common.Address{}, account, amount, sig), "zero signer")

	flipped := append([]byte(nil), sig...)
	flipped[10] ^= 0x01
	require.False(t, VerifyQuote(signer, account, amount, flipped), "r changed")

	digest, err := QuoteDigest(account, amount)
	require.NoError(t, err)
	tampered := append([]byte(nil), digest[:]...)
	tampered[0] ^= 0x80
	require.False(t, VerifySignature(tampered, sig, signer), "message changed")
	require.True(t, VerifySignature(digest[:], sig, signer))
}

func TestVerifySignatureMalformed(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	account := common.HexToAddress("0x4444444444444444444444444444444444444444")
	amount := big.NewInt(42)
	sig, err := SignQuote(key, account, amount)
	require.NoError(t, err)
	digest, _ := QuoteDigest(account, amount)

	require.False(t, VerifySignature(digest[:], sig[:64], signer), "short")
	require.False(t, VerifySignature(digest[:], append(sig, 0), signer), "long")
	require.False(t, VerifySignature(digest[:], nil, signer), "nil")

	badV := append([]byte(nil), sig...)
	badV[64] = 29
	require.False(t, VerifySignature(digest[:], badV, signer), "v=29")

	// (r, n-s) with the flipped recovery id recovers the same key but is malleable.
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	highS := append([]byte(nil), sig...)
	copy(highS[32:64], common.LeftPadBytes(new(big.Int).Sub(n, s).Bytes(), 32))
	highS[64] = 27 + (1 - (sig[64] - 27))
	require.False(t, VerifySignature(digest[:], highS, signer), "high s")

	zero := make([]byte, 65)
	zero[64] = 27
	require.False(t, VerifySignature(digest[:], zero, signer), "zero r,s")
}

func TestQuoteDigestRejectsOutOfRange(t *testing.T) {
	_, err := QuoteDigest(common.Address{}, big.NewInt(-5))
	require.Error(t, err)
	require.False(t, VerifyQuote(common.Address{1}, common.Address{}, nil, make([]byte, 65)))
}
