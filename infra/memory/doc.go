// Package memory provides destruction policies for ownership groups built
// on the low-level reclamation primitives: a typed object Pool that recycles
// destroyed payloads, a RetireRing of retired objects, and an epoch Domain
// that defers destruction until no reader that might still observe a
// payload remains in its read section.
package memory
