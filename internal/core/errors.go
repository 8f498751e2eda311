package core

import "errors"

// Error kinds shared by the import pipeline and the stores. Callers classify
// wrapped errors with errors.Is.
var (
	ErrMalformedAmount    = errors.New("malformed amount")
	ErrMalformedDate      = errors.New("malformed posted date")
	ErrStoreWrite         = errors.New("store write failed")
	ErrTableNotYetCreated = errors.New("table not yet created")
	ErrNoMatchingRow      = errors.New("no matching row")
	ErrAmbiguousMatch     = errors.New("natural key matched more than one row")
)
