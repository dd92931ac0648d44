package hnswkv

import (
	"strconv"
	"strings"

	"github.com/hnswkv/hnswkv/hnsw"
)

// IndexInfo is the reply shape for index.get.
type IndexInfo = map[string]any

// NodeInfo is the reply shape for node.get.
type NodeInfo struct {
	Data      []float32  `json:"data"`
	Neighbors [][]string `json:"neighbors"`
}

// SearchHit is a single element of a search.kann reply.
type SearchHit struct {
	Name       string  `json:"name"`
	Similarity float32 `json:"similarity"`
}

// SearchReply is the full reply shape for search.kann: a count followed
// by the ordered hit list, mirroring the command surface's
// "[count, {similarity, name}, …]" contract.
type SearchReply struct {
	Count int         `json:"count"`
	Hits  []SearchHit `json:"hits"`
}

// defaultMetric is used for index.create, whose argument grammar (§6) has
// no metric token; cosine is the most broadly applicable default for
// unnormalized embeddings, matching the teacher's own FlatIndex default.
const defaultMetric = hnsw.Cosine

// Dispatch executes one command by name against its argument list, the
// way a host command handler would after it has already stripped the
// namespace prefix (e.g. "hnsw.") and tokenized the request. Keyword
// tokens (dim, m, efcon) are matched case-insensitively; vector
// components are parsed as decimal reals.
func (s *Server) Dispatch(cmd string, args []string) (any, error) {
	switch strings.ToLower(cmd) {
	case "index.create":
		return s.dispatchIndexCreate(args)
	case "index.get":
		return s.dispatchIndexGet(args)
	case "index.del":
		return s.dispatchIndexDel(args)
	case "node.add":
		return s.dispatchNodeAdd(args)
	case "node.get":
		return s.dispatchNodeGet(args)
	case "node.del":
		return s.dispatchNodeDel(args)
	case "search.kann":
		return s.dispatchSearchKANN(args)
	default:
		return nil, newCommandError(cmd, BadArgument, errUnknownCommand)
	}
}

func (s *Server) dispatchIndexCreate(args []string) (any, error) {
	if len(args) != 7 {
		return nil, newCommandError("index.create", WrongArity, nil)
	}
	name := args[0]
	if !strings.EqualFold(args[1], "dim") || !strings.EqualFold(args[3], "m") || !strings.EqualFold(args[5], "efcon") {
		return nil, newCommandError("index.create", BadArgument, nil)
	}
	dim, err1 := strconv.Atoi(args[2])
	m, err2 := strconv.Atoi(args[4])
	ef, err3 := strconv.Atoi(args[6])
	if err1 != nil || err2 != nil || err3 != nil || dim <= 0 || m <= 1 || ef <= 0 {
		return nil, newCommandError("index.create", BadArgument, nil)
	}

	if err := s.CreateIndex(name, dim, defaultMetric, m, ef); err != nil {
		return nil, err
	}
	return "OK", nil
}

func (s *Server) dispatchIndexGet(args []string) (any, error) {
	if len(args) != 1 {
		return nil, newCommandError("index.get", WrongArity, nil)
	}
	return s.GetIndex(args[0])
}

func (s *Server) dispatchIndexDel(args []string) (any, error) {
	if len(args) != 1 {
		return nil, newCommandError("index.del", WrongArity, nil)
	}
	if err := s.DeleteIndex(args[0]); err != nil {
		return nil, err
	}
	return 1, nil
}

func (s *Server) dispatchNodeAdd(args []string) (any, error) {
	if len(args) < 3 {
		return nil, newCommandError("node.add", WrongArity, nil)
	}
	index, name := args[0], args[1]
	vector, err := parseVector(args[2:])
	if err != nil {
		return nil, newCommandError("node.add", BadArgument, err)
	}
	if err := s.AddNode(index, name, vector); err != nil {
		return nil, err
	}
	return "OK", nil
}

func (s *Server) dispatchNodeGet(args []string) (any, error) {
	if len(args) != 2 {
		return nil, newCommandError("node.get", WrongArity, nil)
	}
	state, err := s.GetNode(args[0], args[1])
	if err != nil {
		return nil, err
	}
	return NodeInfo{Data: state.Vector, Neighbors: state.Neighbors}, nil
}

func (s *Server) dispatchNodeDel(args []string) (any, error) {
	if len(args) != 2 {
		return nil, newCommandError("node.del", WrongArity, nil)
	}
	if err := s.DeleteNode(args[0], args[1]); err != nil {
		return nil, err
	}
	return 1, nil
}

func (s *Server) dispatchSearchKANN(args []string) (any, error) {
	if len(args) < 3 {
		return nil, newCommandError("search.kann", WrongArity, nil)
	}
	index := args[0]
	k, err := strconv.Atoi(args[1])
	if err != nil || k <= 0 {
		return nil, newCommandError("search.kann", BadArgument, err)
	}
	q, err := parseVector(args[2:])
	if err != nil {
		return nil, newCommandError("search.kann", BadArgument, err)
	}

	results, err := s.SearchKNN(index, q, k)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{Name: r.Name, Similarity: r.Score})
	}
	return SearchReply{Count: len(hits), Hits: hits}, nil
}

func parseVector(components []string) ([]float32, error) {
	vec := make([]float32, len(components))
	for i, c := range components {
		f, err := strconv.ParseFloat(c, 32)
		if err != nil {
			return nil, err
		}
		vec[i] = float32(f)
	}
	return vec, nil
}
