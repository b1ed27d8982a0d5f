// Package ir provides the program graph representation shared by the
// registry, the oracle and the classifier.
//
// All other internal packages that touch program graphs import ir; ir imports
// nothing internal.
//
// Key design constraints:
//   - Graphs are read-only once built; workers share them without locking
//   - Content identity is SHA-256 over canonical JSON with domain separation
//   - Canonical JSON sorts object keys by UTF-16 code units and NFC-normalizes
//     strings, so two exports of the same program hash identically
//   - No floats in canonical form
package ir
