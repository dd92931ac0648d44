package hnswkv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/hnswkv/hnswkv/hnsw"
)

// recordVersion is written as the first field of every header and node
// record. A reader seeing an unknown version returns a null handle, which
// the host treats as a missing key rather than attempting to interpret an
// incompatible layout.
const recordVersion uint32 = 1

const nullEntryPoint = "null"

func encodeString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func decodeString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// headerRecord is the decoded form of an index header record, ahead of
// being materialized into an *hnsw.Index by rehydration.
type headerRecord struct {
	name           string
	metric         hnsw.Metric
	dim            int
	m              int
	mMax           int
	mMax0          int
	efConstruction int
	levelMult      float64
	nodeCount      int
	maxLayer       int
	layerMembers   [][]string
	allNodes       []string
	entryPoint     string // nullEntryPoint if absent
	generation     string
}

// encodeHeader serializes ix's header tagged with generation, a fresh
// identifier minted by the caller for every snapshot write so that two
// writes of the same index can be told apart even when their content is
// identical (e.g. for cache invalidation in a layer above the store).
func encodeHeader(ix *hnsw.Index, generation string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, recordVersion)
	encodeString(&buf, generation)
	encodeString(&buf, ix.Name)
	encodeString(&buf, ix.Metric.String())
	binary.Write(&buf, binary.LittleEndian, int32(ix.Dim))
	binary.Write(&buf, binary.LittleEndian, int32(ix.M))
	binary.Write(&buf, binary.LittleEndian, int32(ix.MMax))
	binary.Write(&buf, binary.LittleEndian, int32(ix.MMax0))
	binary.Write(&buf, binary.LittleEndian, int32(ix.EfConstruction))
	binary.Write(&buf, binary.LittleEndian, ix.LevelMult)
	binary.Write(&buf, binary.LittleEndian, int32(ix.NodeCount()))
	maxLayer := ix.MaxLayer()
	binary.Write(&buf, binary.LittleEndian, int32(maxLayer))

	binary.Write(&buf, binary.LittleEndian, int32(maxLayer+1))
	for l := 0; l <= maxLayer; l++ {
		members := ix.LayerMembers(l)
		binary.Write(&buf, binary.LittleEndian, int32(len(members)))
		for _, name := range members {
			encodeString(&buf, name)
		}
	}

	allNodes := ix.AllNodeNames()
	binary.Write(&buf, binary.LittleEndian, int32(len(allNodes)))
	for _, name := range allNodes {
		encodeString(&buf, name)
	}

	if ep, ok := ix.EntryPointName(); ok {
		encodeString(&buf, ep)
	} else {
		encodeString(&buf, nullEntryPoint)
	}

	return buf.Bytes()
}

func decodeHeader(data []byte) (*headerRecord, error) {
	r := bytes.NewReader(data)

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	if version != recordVersion {
		return nil, hnsw.ErrCorruptSnapshot
	}

	h := &headerRecord{}
	var err error
	if h.generation, err = decodeString(r); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	if h.name, err = decodeString(r); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	metricName, err := decodeString(r)
	if err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	metric, ok := hnsw.ParseMetric(metricName)
	if !ok {
		return nil, hnsw.ErrCorruptSnapshot
	}
	h.metric = metric

	var dim, m, mMax, mMax0, efConstruction, nodeCount, maxLayer int32
	fields := []*int32{&dim, &m, &mMax, &mMax0, &efConstruction}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, hnsw.ErrCorruptSnapshot
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &h.levelMult); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	if err := binary.Read(r, binary.LittleEndian, &nodeCount); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	if err := binary.Read(r, binary.LittleEndian, &maxLayer); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	h.dim, h.m, h.mMax, h.mMax0, h.efConstruction = int(dim), int(m), int(mMax), int(mMax0), int(efConstruction)
	h.nodeCount, h.maxLayer = int(nodeCount), int(maxLayer)

	var layerCount int32
	if err := binary.Read(r, binary.LittleEndian, &layerCount); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	h.layerMembers = make([][]string, layerCount)
	for l := int32(0); l < layerCount; l++ {
		var cnt int32
		if err := binary.Read(r, binary.LittleEndian, &cnt); err != nil {
			return nil, hnsw.ErrCorruptSnapshot
		}
		names := make([]string, cnt)
		for i := range names {
			if names[i], err = decodeString(r); err != nil {
				return nil, hnsw.ErrCorruptSnapshot
			}
		}
		h.layerMembers[l] = names
	}

	var allCount int32
	if err := binary.Read(r, binary.LittleEndian, &allCount); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	h.allNodes = make([]string, allCount)
	for i := range h.allNodes {
		if h.allNodes[i], err = decodeString(r); err != nil {
			return nil, hnsw.ErrCorruptSnapshot
		}
	}

	if h.entryPoint, err = decodeString(r); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}

	return h, nil
}

func encodeNode(state hnsw.NodeState) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, recordVersion)
	binary.Write(&buf, binary.LittleEndian, int32(len(state.Vector)))
	for _, f := range state.Vector {
		binary.Write(&buf, binary.LittleEndian, f)
	}
	binary.Write(&buf, binary.LittleEndian, int32(len(state.Neighbors)))
	for _, layer := range state.Neighbors {
		binary.Write(&buf, binary.LittleEndian, int32(len(layer)))
		for _, name := range layer {
			encodeString(&buf, name)
		}
	}
	return buf.Bytes()
}

type nodeRecord struct {
	vector    []float32
	neighbors [][]string
}

func decodeNode(data []byte) (*nodeRecord, error) {
	r := bytes.NewReader(data)

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	if version != recordVersion {
		return nil, hnsw.ErrCorruptSnapshot
	}

	var dim int32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	vec := make([]float32, dim)
	for i := range vec {
		if err := binary.Read(r, binary.LittleEndian, &vec[i]); err != nil {
			return nil, hnsw.ErrCorruptSnapshot
		}
	}

	var layerCount int32
	if err := binary.Read(r, binary.LittleEndian, &layerCount); err != nil {
		return nil, hnsw.ErrCorruptSnapshot
	}
	neighbors := make([][]string, layerCount)
	for l := int32(0); l < layerCount; l++ {
		var cnt int32
		if err := binary.Read(r, binary.LittleEndian, &cnt); err != nil {
			return nil, hnsw.ErrCorruptSnapshot
		}
		names := make([]string, cnt)
		for i := range names {
			name, err := decodeString(r)
			if err != nil {
				return nil, hnsw.ErrCorruptSnapshot
			}
			names[i] = name
		}
		neighbors[l] = names
	}

	return &nodeRecord{vector: vec, neighbors: neighbors}, nil
}

// indexKey and nodeKey build the fully-qualified host key-space names for
// an index header and a node record respectively.
func indexKey(prefix, index string) []byte {
	return []byte(fmt.Sprintf("%s.%s", prefix, index))
}

func nodeKey(prefix, index, node string) []byte {
	return []byte(fmt.Sprintf("%s.%s.%s", prefix, index, node))
}

// saveIndex writes the header record and every live node's record to
// store, representing a single consistent-point snapshot of ix, tagged
// with a fresh generation identifier.
func saveIndex(store KVStore, prefix string, ix *hnsw.Index, generation string) error {
	batch := NewBatch()
	batch.Put(indexKey(prefix, ix.Name), encodeHeader(ix, generation))

	for _, name := range ix.AllNodeNames() {
		state, err := ix.Get(name)
		if err != nil {
			continue
		}
		batch.Put(nodeKey(prefix, ix.Name, name), encodeNode(state))
	}

	return store.Write(batch, nil)
}

// saveHeader writes just the index header, used when an index is created.
func saveHeader(store KVStore, prefix string, ix *hnsw.Index, generation string) error {
	return store.Put(indexKey(prefix, ix.Name), encodeHeader(ix, generation), nil)
}

// newGeneration mints a fresh snapshot generation identifier.
func newGeneration() string {
	return uuid.NewString()
}

// loadIndex reconstructs an *hnsw.Index from its persisted header and node
// records, following the two-pass protocol: pass one creates every node
// with its vector and reserved layer slots; pass two resolves each node's
// neighbor names into adjacency. Any dangling name aborts with
// ErrCorruptSnapshot, matching the persistence adapter's contract for an
// unreadable or inconsistent snapshot. Returns the snapshot's generation
// identifier alongside the reconstructed index.
func loadIndex(store KVStore, prefix, name string, seed int64) (*hnsw.Index, string, error) {
	raw, err := store.Get(indexKey(prefix, name), nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", errNoIndex
		}
		return nil, "", err
	}
	header, err := decodeHeader(raw)
	if err != nil {
		return nil, "", err
	}

	ix := hnsw.NewIndexShell(header.name, header.dim, header.metric, header.m, header.mMax, header.mMax0, header.efConstruction, header.levelMult, seed)

	records := make(map[string]*nodeRecord, len(header.allNodes))
	for _, nodeName := range header.allNodes {
		raw, err := store.Get(nodeKey(prefix, name, nodeName), nil)
		if err != nil {
			return nil, "", hnsw.ErrCorruptSnapshot
		}
		rec, err := decodeNode(raw)
		if err != nil {
			return nil, "", err
		}
		records[nodeName] = rec
	}

	for _, nodeName := range header.allNodes {
		rec := records[nodeName]
		topLayer := len(rec.neighbors) - 1
		if topLayer < 0 {
			topLayer = 0
		}
		if err := ix.RawCreateNode(nodeName, rec.vector, topLayer); err != nil {
			return nil, "", hnsw.ErrCorruptSnapshot
		}
	}

	for _, nodeName := range header.allNodes {
		rec := records[nodeName]
		for l, neighborNames := range rec.neighbors {
			if err := ix.RawLinkNeighbors(nodeName, l, neighborNames); err != nil {
				return nil, "", err
			}
		}
	}

	ix.SetMaxLayer(header.maxLayer)
	if header.entryPoint == nullEntryPoint {
		ix.ClearEntryPoint()
	} else if err := ix.SetEntryPoint(header.entryPoint); err != nil {
		return nil, "", err
	}

	return ix, header.generation, nil
}
