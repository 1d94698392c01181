package generator

import (
	"encoding/json"

	"github.com/google/go-cmp/cmp"
)

// BlobHandler turns caller data into bytes that invalidate an ID when they
// change. Verify guards against trusting corrupt bytes, both freshly
// serialized and loaded from a record.
type BlobHandler interface {
	Serialize() ([]byte, error)
	Verify(data []byte) bool
	Equal(prev, cur []byte) bool
}

// JSONBlob is a BlobHandler for a JSON encodable value. Equality is decided
// on the decoded values, so formatting differences do not trigger a rerun.
// T must not have unexported fields.
type JSONBlob[T any] struct {
	Value T

	// Validate optionally rejects decoded values
	Validate func(T) error
}

// NewJSONBlob creates a handler for v
func NewJSONBlob[T any](v T) *JSONBlob[T] {
	return &JSONBlob[T]{Value: v}
}

func (b *JSONBlob[T]) Serialize() ([]byte, error) {
	return json.Marshal(b.Value)
}

func (b *JSONBlob[T]) Verify(data []byte) bool {
	v, err := b.decode(data)
	if err != nil {
		return false
	}

	if b.Validate != nil && b.Validate(v) != nil {
		return false
	}

	return true
}

func (b *JSONBlob[T]) Equal(prev, cur []byte) bool {
	a, err := b.decode(prev)
	if err != nil {
		return false
	}

	c, err := b.decode(cur)
	if err != nil {
		return false
	}

	return cmp.Equal(a, c)
}

func (b *JSONBlob[T]) decode(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
