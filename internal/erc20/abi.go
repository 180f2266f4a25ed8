package erc20

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const stringABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}], "name": "allowance", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens return bytes32 for symbol and name.
const bytes32ABIJSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	stringABI      abi.ABI
	stringABIOnce  sync.Once
	stringABIErr   error
	bytes32ABI     abi.ABI
	bytes32ABIOnce sync.Once
	bytes32ABIErr  error
)

// ABI returns the parsed ERC-20 read interface.
func ABI() (abi.ABI, error) {
	stringABIOnce.Do(func() {
		stringABI, stringABIErr = abi.JSON(strings.NewReader(stringABIJSON))
	})
	return stringABI, stringABIErr
}

func legacyABI() (abi.ABI, error) {
	bytes32ABIOnce.Do(func() {
		bytes32ABI, bytes32ABIErr = abi.JSON(strings.NewReader(bytes32ABIJSON))
	})
	return bytes32ABI, bytes32ABIErr
}
