// Package ownership implements reference-counted shared ownership of heap
// values: a shared handle (Shared) that destroys its payload exactly once
// when the last strong owner lets go, a weak observer (Weak), an exclusive
// handle with a pluggable destruction policy (Unique), and a co-allocating
// factory (MakeShared) that keeps the control block and the payload in one
// allocation.
//
// Go copies structs implicitly and has no destructors, so every lifecycle
// event is an explicit call: Clone copies, Move transfers, Release destroys.
// Handles carry a noCopy marker so `go vet` reports accidental value copies.
//
// Reference counts are plain integers. Handles belonging to one ownership
// group must not be used from several goroutines without external
// synchronization; see service/registry for a synchronized wrapper.
package ownership
