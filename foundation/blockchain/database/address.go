package database

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// addressPrefix marks every wallet address on this chain.
const addressPrefix = "TU"

// addressLength is the number of hex characters following the prefix.
const addressLength = 40

// PublicKeyToAddress converts the public key to a wallet address.
func PublicKeyToAddress(pk ecdsa.PublicKey) string {
	hex := strings.ToLower(crypto.PubkeyToAddress(pk).Hex()[2:])
	return addressPrefix + hex
}

// IsAddress verifies whether the string represents a properly formatted
// wallet address.
func IsAddress(address string) bool {
	if !strings.HasPrefix(address, addressPrefix) {
		return false
	}

	hex := address[len(addressPrefix):]
	if len(hex) != addressLength {
		return false
	}

	for _, c := range []byte(hex) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

// isHexCharacter returns bool of c being a valid hexadecimal.
func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
