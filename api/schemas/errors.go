package schemas

import "errors"

// Error classes shared by the normalizer, loader and query layer. Concrete
// errors wrap one of these, so callers test with errors.Is.
var (
	// ErrValidation marks input of the wrong shape or outside an enumeration.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a lookup key that resolves to nothing.
	ErrNotFound = errors.New("not found")
	// ErrStoreCreation marks a schema that could not be created or verified.
	ErrStoreCreation = errors.New("store creation failed")
	// ErrQuery marks a statement the database rejected as malformed.
	ErrQuery = errors.New("query failed")
)
