package clients

import (
	"errors"

	ethereum "github.com/ethereum/go-ethereum"
)

// IsNotFound reports whether err means the requested chain object does not
// exist yet, e.g. a receipt for a pending transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
