package ownership

import (
	"github.com/cockroachdb/errors"
)

// MakeShared allocates a control block with v stored inside it and returns
// the first strong handle. The block and the payload share one allocation,
// which makes MakeShared preferable to New whenever the caller does not
// already hold a separately allocated value.
func MakeShared[T any](v T, opts ...Option) (*Shared[T], error) {
	return MakeSharedFunc(func(p *T) error {
		*p = v
		return nil
	}, opts...)
}

// MakeSharedFunc is MakeShared with in-place construction: init receives a
// pointer to zeroed storage inside the block. A nil init keeps the zero
// value.
//
// When init fails, by error or panic, the block is released, the partially
// built payload is not destroyed and no handle is returned.
func MakeSharedFunc[T any](init func(p *T) error, opts ...Option) (_ *Shared[T], err error) {
	cfg := buildConfig(opts)
	id, err := cfg.tracker.admit(VariantInline)
	if err != nil {
		return nil, err
	}
	b := &inlineBlock[T]{}
	if init != nil {
		constructed := false
		defer func() {
			if !constructed {
				cfg.tracker.abortedBlock(id, VariantInline, typeName[T]())
			}
		}()
		if err := init(&b.value); err != nil {
			return nil, errors.Wrapf(err, "construct %s", typeName[T]())
		}
		constructed = true
	}
	b.init(id, VariantInline, cfg.typeName(typeName[T]), cfg.tracker, b)
	cfg.tracker.allocatedBlock(&b.ControlBlock)
	bindSelf(&b.ControlBlock, &b.value)
	return &Shared[T]{cb: &b.ControlBlock, ptr: &b.value}, nil
}
