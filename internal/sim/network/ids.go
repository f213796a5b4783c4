package network

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

func newAgentID(n uint64) string {
	return fmt.Sprintf("A%06d", n)
}

func lowerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// handleFor derives a lowercase, alphanumeric handle from a display name.
func handleFor(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "agent"
	}
	return b.String()
}

// validAgentName enforces the registration contract: 3-20 chars, letters,
// digits, underscores.
func validAgentName(name string) bool {
	if len(name) < 3 || len(name) > 20 {
		return false
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if !ok {
			return false
		}
	}
	return true
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func blockHash(height uint64, prevHash, miner string, at int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%d", height, prevHash, miner, at)))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never emits invalid UTF-8.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
