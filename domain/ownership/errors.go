package ownership

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNullDeref is raised when an empty handle is dereferenced.
	ErrNullDeref = errors.New("ownership: dereference of empty handle")

	// ErrResourceExhausted is returned when a Tracker refuses to admit
	// another control block.
	ErrResourceExhausted = errors.New("ownership: control block budget exhausted")

	// ErrNotOwned is returned by SharedFromThis when the value is not owned
	// by a live ownership group.
	ErrNotOwned = errors.New("ownership: value is not owned by a shared handle")

	// ErrExpired is returned by Weak.Load when the observed group has expired.
	ErrExpired = errors.New("ownership: weak handle expired")
)

func typeName[T any]() string {
	return fmt.Sprintf("%T", (*T)(nil))[1:]
}

func nullDeref[T any](handle string) error {
	return errors.Wrapf(ErrNullDeref, "%s[%s]", handle, typeName[T]())
}
