package discovery

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ValidateAddress reports whether the string is a well-formed Solana
// address: base58 that decodes to exactly 32 bytes.
func ValidateAddress(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}

// IsOnCurve reports whether the address is a valid ed25519 point.
// Program-derived addresses (launchpad mints among them) are off-curve;
// wallet addresses are on-curve.
func IsOnCurve(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
