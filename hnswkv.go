// Copyright (c) 2024 LevelGraph Go Contributors
//
// Permission is hereby granted, free of charge, to any person
// obtaining a copy of this software and associated documentation
// files (the "Software"), to deal in the Software without
// restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the
// Software is furnished to do so, subject to the following
// conditions:
//
// The above copyright notice and this permission notice shall be
// included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

// Package hnswkv provides an in-memory approximate nearest neighbor vector
// search service exposed as a set of commands inside a host key-value
// server. It wraps the hnsw package's graph engine with the registry,
// persistence, and command-dispatch glue needed to keep an in-process
// index handle coherent with the host's snapshot store.
package hnswkv

import (
	"errors"
	"time"

	"github.com/hnswkv/hnswkv/hnsw"
)

// mapErr translates an hnsw package sentinel into a host-visible
// CommandError, the way the teacher wraps storage errors with an
// operation name attached.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, hnsw.ErrNotFound):
		return newCommandError(op, NotFound, err)
	case errors.Is(err, hnsw.ErrAlreadyExists):
		return newCommandError(op, AlreadyExists, err)
	case errors.Is(err, hnsw.ErrInUse):
		return newCommandError(op, InUse, err)
	case errors.Is(err, hnsw.ErrDimensionMismatch), errors.Is(err, hnsw.ErrInvalidK), errors.Is(err, hnsw.ErrEmptyVector):
		return newCommandError(op, BadArgument, err)
	case errors.Is(err, hnsw.ErrCorruptSnapshot):
		return newCommandError(op, CorruptSnapshot, err)
	case errors.Is(err, hnsw.ErrInvariantViolation):
		return newCommandError(op, InvariantViolation, err)
	default:
		return newCommandError(op, BadArgument, err)
	}
}

// mapLookupErr translates a lookup failure into a CommandError: a closed
// server is BadArgument (the caller's handle is no longer usable at all,
// not just missing this one name), anything else is NotFound.
func mapLookupErr(op string, err error) error {
	if errors.Is(err, errClosed) {
		return newCommandError(op, BadArgument, err)
	}
	return newCommandError(op, NotFound, err)
}

// CreateIndex creates a new named index with the given dimensionality,
// metric, and construction parameters. Fails with AlreadyExists if the
// name is already registered or already has a persisted header.
func (s *Server) CreateIndex(name string, dim int, metric hnsw.Metric, m, efConstruction int) error {
	s.mu.RLock()
	_, inMemory := s.entries[name]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return newCommandError("index.create", BadArgument, errClosed)
	}
	if inMemory {
		return newCommandError("index.create", AlreadyExists, hnsw.ErrAlreadyExists)
	}

	if _, err := s.store.Get(indexKey(s.options.KeyPrefix, name), nil); err == nil {
		return newCommandError("index.create", AlreadyExists, hnsw.ErrAlreadyExists)
	}

	ix := hnsw.NewIndex(name, dim, metric, m, efConstruction, time.Now().UnixNano())
	generation := newGeneration()
	if err := saveHeader(s.store, s.options.KeyPrefix, ix, generation); err != nil {
		return newCommandError("index.create", BadArgument, err)
	}
	e := s.register(ix)
	e.generation = generation

	s.options.Logger.Info("index created", "index", name, "dim", dim, "metric", metric.String(), "m", m, "ef_construction", efConstruction)
	return nil
}

// GetIndex returns a metadata snapshot of a named index.
func (s *Server) GetIndex(name string) (map[string]any, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, mapLookupErr("index.get", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	info := map[string]any{
		"name":            e.ix.Name,
		"dim":             e.ix.Dim,
		"metric":          e.ix.Metric.String(),
		"m":               e.ix.M,
		"m_max":           e.ix.MMax,
		"m_max_0":         e.ix.MMax0,
		"ef_construction": e.ix.EfConstruction,
		"node_count":      e.ix.NodeCount(),
		"max_layer":       e.ix.MaxLayer(),
		"generation":      e.generation,
	}
	if ep, ok := e.ix.EntryPointName(); ok {
		info["entry_point"] = ep
	} else {
		info["entry_point"] = nil
	}
	return info, nil
}

// DeleteIndex destroys a named index and every node it owns, both in
// memory and in the persisted store.
func (s *Server) DeleteIndex(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return mapLookupErr("index.del", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	batch := NewBatch()
	batch.Delete(indexKey(s.options.KeyPrefix, name))
	for _, nodeName := range e.ix.AllNodeNames() {
		batch.Delete(nodeKey(s.options.KeyPrefix, name, nodeName))
	}
	if err := s.store.Write(batch, nil); err != nil {
		return newCommandError("index.del", NotFound, err)
	}

	s.forget(name)
	s.options.Logger.Info("index deleted", "index", name)
	return nil
}

// AddNode inserts a named vector into index, running the full HNSW
// construction algorithm, then persisting every node it touched plus the
// updated index header.
func (s *Server) AddNode(index, name string, vector []float32) error {
	e, err := s.lookup(index)
	if err != nil {
		return mapLookupErr("node.add", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var touched []hnsw.NodeState
	err = e.ix.Insert(name, vector, func(state hnsw.NodeState) {
		touched = append(touched, state)
	})
	if err != nil {
		return mapErr("node.add", err)
	}

	generation := newGeneration()
	batch := NewBatch()
	for _, state := range touched {
		batch.Put(nodeKey(s.options.KeyPrefix, index, state.Name), encodeNode(state))
	}
	batch.Put(indexKey(s.options.KeyPrefix, index), encodeHeader(e.ix, generation))
	if err := s.store.Write(batch, nil); err != nil {
		s.options.Logger.Warn("node.add persistence failed, in-memory state ahead of snapshot", "index", index, "node", name, "error", err)
		return nil
	}
	e.generation = generation

	s.options.Logger.Debug("node added", "index", index, "node", name)
	return nil
}

// GetNode returns a node's vector payload and per-layer adjacency.
func (s *Server) GetNode(index, name string) (hnsw.NodeState, error) {
	e, err := s.lookup(index)
	if err != nil {
		return hnsw.NodeState{}, mapLookupErr("node.get", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	state, err := e.ix.Get(name)
	if err != nil {
		return hnsw.NodeState{}, mapErr("node.get", err)
	}
	return state, nil
}

// DeleteNode removes a named node from index, persisting the removal and
// every neighbor record it touched.
func (s *Server) DeleteNode(index, name string) error {
	e, err := s.lookup(index)
	if err != nil {
		return mapLookupErr("node.del", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var touched []hnsw.NodeState
	err = e.ix.Delete(name, func(state hnsw.NodeState) {
		touched = append(touched, state)
	})
	if err != nil {
		return mapErr("node.del", err)
	}

	generation := newGeneration()
	batch := NewBatch()
	batch.Delete(nodeKey(s.options.KeyPrefix, index, name))
	for _, state := range touched {
		batch.Put(nodeKey(s.options.KeyPrefix, index, state.Name), encodeNode(state))
	}
	batch.Put(indexKey(s.options.KeyPrefix, index), encodeHeader(e.ix, generation))
	if err := s.store.Write(batch, nil); err != nil {
		s.options.Logger.Warn("node.del persistence failed, in-memory state ahead of snapshot", "index", index, "node", name, "error", err)
		return nil
	}
	e.generation = generation

	s.options.Logger.Debug("node deleted", "index", index, "node", name)
	return nil
}

// Snapshot forces a full rewrite of index's header and every live node's
// record, representing the in-memory state at a single consistent point.
// AddNode and DeleteNode persist only the header and the nodes they
// touched; Snapshot rewrites every node record as well.
func (s *Server) Snapshot(index string) error {
	e, err := s.lookup(index)
	if err != nil {
		return mapLookupErr("snapshot", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	generation := newGeneration()
	if err := saveIndex(s.store, s.options.KeyPrefix, e.ix, generation); err != nil {
		return newCommandError("snapshot", BadArgument, err)
	}
	e.generation = generation
	return nil
}

// SearchKNN returns up to k nearest neighbors of q in index, best first.
func (s *Server) SearchKNN(index string, q []float32, k int) ([]hnsw.SearchResult, error) {
	e, err := s.lookup(index)
	if err != nil {
		return nil, mapLookupErr("search.kann", err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	results, err := e.ix.Search(q, k)
	if err != nil {
		return nil, mapErr("search.kann", err)
	}
	return results, nil
}
