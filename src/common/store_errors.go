package common

import "fmt"

// StoreErrType enumerates the reasons a store lookup can fail.
type StoreErrType uint32

const (
	// KeyNotFound means the requested key is not in the store.
	KeyNotFound StoreErrType = iota
	// TooLate means the requested item was evicted from a rolling window.
	TooLate
	// KeyAlreadyExists is returned when inserting a duplicate key.
	KeyAlreadyExists
	// Closed means the store was used after Close.
	Closed
)

// StoreErr is the error type returned by message stores.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case TooLate:
		m = "Too Late"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case Closed:
		m = "Closed"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that its code matches
// the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
