package ownership

import (
	"io"

	"github.com/rs/zerolog/log"
)

// Destroyer is implemented by payloads that hold resources beyond their own
// memory. Destroy runs exactly once, when the owning group expires or the
// owning Unique lets go.
type Destroyer interface {
	Destroy()
}

// Deleter is the destruction policy applied to a separately allocated
// payload.
type Deleter[T any] interface {
	Delete(p *T)
}

// DeleterFunc adapts a function to Deleter.
type DeleterFunc[T any] func(p *T)

func (f DeleterFunc[T]) Delete(p *T) { f(p) }

// DefaultDeleter runs Destroy, or Close for io.Closer payloads, and leaves
// the memory to the garbage collector.
type DefaultDeleter[T any] struct{}

func (DefaultDeleter[T]) Delete(p *T) {
	if p != nil {
		destroyValue(p)
	}
}

// NoopDeleter leaves the payload untouched. Useful for handles over values
// whose lifetime is managed elsewhere.
type NoopDeleter[T any] struct{}

func (NoopDeleter[T]) Delete(*T) {}

func destroyValue(p any) {
	switch v := p.(type) {
	case Destroyer:
		v.Destroy()
	case io.Closer:
		if err := v.Close(); err != nil {
			log.Warn().Err(err).Type("type", p).Msg("ownership: payload close failed")
		}
	}
}
