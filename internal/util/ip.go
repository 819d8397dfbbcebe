package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
)

// HMACIP hides a client address for logging: the address is truncated to
// its /24 (IPv4) or /48 (IPv6) network and keyed-hashed. Visitors on the same
// network share a hash.
func HMACIP(ipStr string, key []byte) string {
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return "unknown"
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "unknown"
	}
	m := hmac.New(sha256.New, key)
	m.Write([]byte(prefix.String()))
	return hex.EncodeToString(m.Sum(nil))[:16]
}
