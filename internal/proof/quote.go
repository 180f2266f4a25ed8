package proof

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

var (
	quoteArgsOnce sync.Once
	quoteArgs     abi.Arguments
	quoteArgsErr  error
)

func loadQuoteArgs() (abi.Arguments, error) {
	quoteArgsOnce.Do(func() {
		addrT, err := abi.NewType("address", "", nil)
		if err != nil {
			quoteArgsErr = err
			return
		}
		uintT, err := abi.NewType("uint256", "", nil)
		if err != nil {
			quoteArgsErr = err
			return
		}
		quoteArgs = abi.Arguments{{Type: addrT}, {Type: uintT}}
	})
	return quoteArgs, quoteArgsErr
}

// QuoteDigest is keccak256(abi.encode(address account, uint256 amount)).
func QuoteDigest(account common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 256 {
		return common.Hash{}, fmt.Errorf("quote amount %v out of uint256 range", amount)
	}
	args, err := loadQuoteArgs()
	if err != nil {
		return common.Hash{}, fmt.Errorf("load quote abi: %w", err)
	}
	packed, err := args.Pack(account, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack quote: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// SignQuote signs the quote digest as a personal message. The returned
// signature is r || s || v with v in {27, 28}.
func SignQuote(key *ecdsa.PrivateKey, account common.Address, amount *big.Int) ([]byte, error) {
	digest, err := QuoteDigest(account, amount)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(digest[:]), key)
	if err != nil {
		return nil, fmt.Errorf("sign quote: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner recovers the address that signed message as a personal
// message. It rejects wrong lengths, unknown v values and high-s signatures.
func RecoverSigner(message, signature []byte) (common.Address, error) {
	if len(signature) != signatureLength {
		return common.Address{}, fmt.Errorf("signature length %d, want %d", len(signature), signatureLength)
	}
	sig := make([]byte, signatureLength)
	copy(sig, signature)
	switch sig[64] {
	case 27, 28:
		sig[64] -= 27
	case 0, 1:
	default:
		return common.Address{}, fmt.Errorf("signature v=%d", signature[64])
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, s, true) {
		return common.Address{}, fmt.Errorf("signature values out of range")
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature reports whether signature over message was produced by
// expected. Malformed signatures yield false.
func VerifySignature(message, signature []byte, expected common.Address) bool {
	if expected == (common.Address{}) {
		return false
	}
	got, err := RecoverSigner(message, signature)
	if err != nil {
		return false
	}
	return got == expected
}

// RecoverQuoteSigner returns the address that signed (account, amount).
func RecoverQuoteSigner(account common.Address, amount *big.Int, signature []byte) (common.Address, error) {
	digest, err := QuoteDigest(account, amount)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverSigner(digest[:], signature)
}

// VerifyQuote reports whether signer authorized account to contribute up to amount.
func VerifyQuote(signer, account common.Address, amount *big.Int, signature []byte) bool {
	digest, err := QuoteDigest(account, amount)
	if err != nil {
		return false
	}
	return VerifySignature(digest[:], signature, signer)
}
