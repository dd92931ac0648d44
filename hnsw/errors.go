package hnsw

import "errors"

// Sentinel errors returned by the node store and graph engine. Callers use
// errors.Is against these; the root hnswkv package wraps them into
// host-visible CommandError kinds.
var (
	// ErrNotFound is returned when a referenced node name does not exist.
	ErrNotFound = errors.New("hnsw: node not found")
	// ErrAlreadyExists is returned when inserting a name that already exists.
	ErrAlreadyExists = errors.New("hnsw: node already exists")
	// ErrInUse is returned when removing a node with an outstanding handle.
	ErrInUse = errors.New("hnsw: node in use")
	// ErrDimensionMismatch is returned when a vector's length does not match
	// the index dimensionality.
	ErrDimensionMismatch = errors.New("hnsw: vector dimension mismatch")
	// ErrEmptyVector is returned when a zero-length vector is supplied.
	ErrEmptyVector = errors.New("hnsw: empty vector")
	// ErrInvalidK is returned when a non-positive k is requested from search.
	ErrInvalidK = errors.New("hnsw: invalid k")
	// ErrCorruptSnapshot is returned when rehydration finds a dangling name
	// or an unreadable record.
	ErrCorruptSnapshot = errors.New("hnsw: corrupt snapshot")
	// ErrInvariantViolation marks the index unusable until process restart.
	ErrInvariantViolation = errors.New("hnsw: graph invariant violated")
)
