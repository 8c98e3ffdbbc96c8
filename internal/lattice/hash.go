package lattice

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainDeck is the domain prefix for deck content hashes.
// Version suffix enables future algorithm migration.
const DomainDeck = "vacc/deck/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DeckHash identifies a rendered deck. Two cycles that fed the solver the
// same deck text share a hash.
func DeckHash(text string) string {
	return hashWithDomain(DomainDeck, []byte(text))
}
