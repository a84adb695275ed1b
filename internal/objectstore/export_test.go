package objectstore

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// ContentType returns the stored content type for key.
func (n *NatsObjectStore) ContentType(key string) (string, error) {
	info, err := n.store.GetInfo(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: '%s' in bucket '%s'", ErrNotFound, key, n.bucket)
		}

		return "", fmt.Errorf("failed to stat object '%s': %w", key, err)
	}

	return info.Headers.Get(headerContentType), nil
}
