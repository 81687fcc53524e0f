package secret

import "errors"

// ErrNotFound is returned by Get when no secret is stored under the key.
var ErrNotFound = errors.New("secret not found")

// Store keeps credentials, such as publish database passwords, out of the
// config file.
type Store interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}
