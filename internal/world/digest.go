package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Domain prefixes for state digests. The version suffix allows the walk
// order or field set to change without silently colliding with old saves.
const (
	digestDomainProvinces = "suzerain/provinces/v1"
	digestDomainCountries = "suzerain/countries/v1"
)

// Digest computes a SHA-256 digest over all hot and warm state of both
// stores, in live-id insertion order, as fixed-width little-endian fields.
//
// Two machines that executed the same command log from the same scenario
// produce the same digest; replay verification and the determinism harness
// compare nothing else. Cold-tier ownership history is included because it
// is itself produced by commands and must converge too.
func Digest(p *ProvinceStore, c *CountryStore) string {
	h := sha256.New()
	DigestInto(h, p, c)
	return hex.EncodeToString(h.Sum(nil))
}

// DigestInto writes both stores' digest bytes into an existing hash, so
// callers can fold derived-system state into the same digest.
func DigestInto(h hash.Hash, p *ProvinceStore, c *CountryStore) {
	writeDomain(h, digestDomainProvinces)
	p.appendDigest(h)
	writeDomain(h, digestDomainCountries)
	c.appendDigest(h)
}

// writeDomain writes a domain prefix with a null separator so domain and
// data bytes cannot be confused across the boundary.
func writeDomain(h hash.Hash, domain string) {
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
}

func (s *ProvinceStore) appendDigest(h hash.Hash) {
	var buf [8]byte
	u16 := func(v uint16) {
		binary.LittleEndian.PutUint16(buf[:2], v)
		h.Write(buf[:2])
	}
	u32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:4], v)
		h.Write(buf[:4])
	}
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:8], v)
		h.Write(buf[:8])
	}

	u32(uint32(len(s.ids)))
	for i, id := range s.ids {
		u16(uint16(id))
		u16(uint16(s.owners[i]))
		u16(uint16(s.controllers[i]))
		u16(uint16(s.terrains[i]))
		u16(s.ext[i])

		w := &s.warm[i]
		u64(uint64(w.Development.Raw()))
		u16(uint16(w.CultureID))
		u32(w.Flags)
		h.Write(w.Buildings[:])

		hist := s.History(id)
		u32(uint32(len(hist)))
		for _, hc := range hist {
			u32(hc.Tick)
			u16(uint16(hc.From))
			u16(uint16(hc.To))
		}
	}
}

func (s *CountryStore) appendDigest(h hash.Hash) {
	var buf [8]byte
	u16 := func(v uint16) {
		binary.LittleEndian.PutUint16(buf[:2], v)
		h.Write(buf[:2])
	}
	u32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:4], v)
		h.Write(buf[:4])
	}
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:8], v)
		h.Write(buf[:8])
	}

	u32(uint32(len(s.ids)))
	for i, id := range s.ids {
		u16(uint16(id))
		u32(uint32(s.tags[i]))
		u16(uint16(uint8(s.stabilities[i])))
		u64(uint64(s.treasuries[i].Raw()))

		w := &s.warm[i]
		h.Write(w.Color[:])
		u16(uint16(w.CultureID))
		u32(w.Flags)
	}
}
