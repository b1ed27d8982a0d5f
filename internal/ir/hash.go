package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows migrating the algorithm later.
const (
	DomainProgram      = "apiary/program/v1"
	DomainNamedProgram = "apiary/program-named/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProgramHash computes the content hash of a program graph, ignoring its
// name. Two programs with the same hash are the same Unique Program.
func ProgramHash(g *Graph) (string, error) {
	canonical, err := MarshalCanonical(g.Canonical(false))
	if err != nil {
		return "", fmt.Errorf("ProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// NamedProgramHash is like ProgramHash but includes the graph name. Reports
// use it to count programs that differ only by name.
func NamedProgramHash(g *Graph) (string, error) {
	canonical, err := MarshalCanonical(g.Canonical(true))
	if err != nil {
		return "", fmt.Errorf("NamedProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainNamedProgram, canonical), nil
}

// MustProgramHash is like ProgramHash but panics on error.
// Use only in tests or when the graph is known to be valid.
func MustProgramHash(g *Graph) string {
	h, err := ProgramHash(g)
	if err != nil {
		panic(err)
	}
	return h
}
