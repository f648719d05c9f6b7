// Package delta implements the BinaryDeltaCodec capability: diff(old, new)
// and apply(old, delta) over in-memory byte buffers. The default
// implementation is an adaptation of an rsync-style rolling-checksum engine:
// a signature (weak + strong hashes per block) is computed over the old
// buffer, then the new buffer is scanned for block matches against that
// signature, emitting a minimal sequence of literal-data and matched-block
// operations.
package delta

import (
	"bytes"
	"crypto/sha1"
	"hash"
	"io"

	"github.com/pkg/errors"
)

// BlockHash is the weak and strong hash pair computed for one block of the
// base buffer.
type BlockHash struct {
	// Weak is the rolling checksum for the block.
	Weak uint32
	// Strong is the cryptographic digest of the block, used to confirm a
	// weak-hash match.
	Strong []byte
}

// EnsureValid verifies block hash invariants.
func (h *BlockHash) EnsureValid() error {
	if h == nil {
		return errors.New("nil block hash")
	}
	if len(h.Strong) == 0 {
		return errors.New("empty strong signature")
	}
	return nil
}

// Signature is the block-hash table computed over a base buffer.
type Signature struct {
	// BlockSize is the size used for every block except possibly the last.
	BlockSize uint64
	// LastBlockSize is the size of the final block, which may be shorter
	// than BlockSize.
	LastBlockSize uint64
	// Hashes holds one BlockHash per block, in order.
	Hashes []*BlockHash
}

// EnsureValid verifies signature invariants.
func (s *Signature) EnsureValid() error {
	if s == nil {
		return errors.New("nil signature")
	}
	for _, h := range s.Hashes {
		if err := h.EnsureValid(); err != nil {
			return errors.Wrap(err, "invalid block hash")
		}
	}
	if s.BlockSize == 0 {
		if s.LastBlockSize != 0 {
			return errors.New("block size of 0 with non-0 last block size")
		} else if len(s.Hashes) != 0 {
			return errors.New("block size of 0 with non-0 number of hashes")
		}
		return nil
	}
	if s.LastBlockSize == 0 {
		return errors.New("non-0 block size with last block size of 0")
	} else if s.LastBlockSize > s.BlockSize {
		return errors.New("last block size greater than block size")
	}
	if len(s.Hashes) == 0 {
		return errors.New("non-0 block size with no block hashes")
	}
	return nil
}

// Operation is one step of a delta: either a literal data chunk (Data
// non-empty) or a reference to Count consecutive blocks of the base buffer
// starting at block index Start.
type Operation struct {
	Data  []byte
	Start uint64
	Count uint64
}

// EnsureValid verifies operation invariants.
func (o *Operation) EnsureValid() error {
	if o == nil {
		return errors.New("nil operation")
	}
	if len(o.Data) > 0 {
		if o.Start != 0 {
			return errors.New("data operation with non-0 block start index")
		} else if o.Count != 0 {
			return errors.New("data operation with non-0 block count")
		}
	} else if o.Count == 0 {
		return errors.New("block operation with 0 block count")
	}
	return nil
}

// Copy creates a deep copy of an operation.
func (o *Operation) Copy() *Operation {
	var data []byte
	if len(o.Data) > 0 {
		data = make([]byte, len(o.Data))
		copy(data, o.Data)
	}
	return &Operation{Data: data, Start: o.Start, Count: o.Count}
}

const (
	// minimumOptimalBlockSize is the minimum block size OptimalBlockSize will
	// return; it must be well above the size of a BlockHash.
	minimumOptimalBlockSize = 1 << 10
	// maximumOptimalBlockSize bounds memory use and keeps the weak hash
	// algorithm (which needs blockSize to fit well within uint32 arithmetic)
	// safe.
	maximumOptimalBlockSize = 1 << 16
	// DefaultBlockSize is used when OptimalBlockSize isn't applicable.
	DefaultBlockSize = 1 << 13
	// DefaultMaximumDataOperationSize bounds how much literal data a single
	// Operation carries.
	DefaultMaximumDataOperationSize = 1 << 14
	// weakHashModulus is the modulus for the rolling checksum, per the rsync
	// thesis.
	weakHashModulus = 1 << 16
)

// OptimalBlockSize picks a block size from the base length using the formula
// given in the rsync thesis, assuming roughly one change per file.
func OptimalBlockSize(baseLength uint64) uint64 {
	result := isqrt(24 * baseLength)
	if result < minimumOptimalBlockSize {
		result = minimumOptimalBlockSize
	} else if result > maximumOptimalBlockSize {
		result = maximumOptimalBlockSize
	}
	return result
}

func isqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// Engine provides rolling-checksum diff/patch functionality over in-memory
// buffers. It is designed to be reused to avoid per-call buffer allocation,
// but is not safe for concurrent use.
type Engine struct {
	strongHasher     hash.Hash
	strongHashBuffer []byte
	operation        *Operation
}

// NewEngine creates a new delta engine. SHA-1 is used for the strong block
// hash: it is not a security boundary here (only a collision-avoidance check
// backing the weak rolling hash), so speed is preferred over cryptographic
// strength.
func NewEngine() *Engine {
	strongHasher := sha1.New()
	return &Engine{
		strongHasher:     strongHasher,
		strongHashBuffer: make([]byte, strongHasher.Size()),
		operation:        &Operation{},
	}
}

func (e *Engine) strongHash(data []byte, allocate bool) []byte {
	e.strongHasher.Reset()
	e.strongHasher.Write(data)
	var output []byte
	if !allocate {
		output = e.strongHashBuffer[:0]
	}
	return e.strongHasher.Sum(output)
}

// weakHash computes the rsync-thesis rolling checksum for a block.
func weakHash(data []byte, blockSize uint64) (combined, r1, r2 uint32) {
	for i, b := range data {
		r1 += uint32(b)
		r2 += (uint32(blockSize) - uint32(i)) * uint32(b)
	}
	r1 %= weakHashModulus
	r2 %= weakHashModulus
	return r1 + weakHashModulus*r2, r1, r2
}

// rollWeakHash updates a rolling checksum by dropping the outgoing byte and
// adding the incoming one, without rescanning the whole block.
func rollWeakHash(r1, r2 uint32, out, in byte, blockSize uint64) (combined, newR1, newR2 uint32) {
	r1 = (r1 - uint32(out) + uint32(in)) % weakHashModulus
	r2 = (r2 - uint32(blockSize)*uint32(out) + r1) % weakHashModulus
	return r1 + weakHashModulus*r2, r1, r2
}

// Signature computes the block-hash signature of a base buffer. If blockSize
// is 0, OptimalBlockSize is used.
func (e *Engine) Signature(base []byte, blockSize uint64) *Signature {
	if blockSize == 0 {
		blockSize = OptimalBlockSize(uint64(len(base)))
	}

	result := &Signature{BlockSize: blockSize}

	for offset := 0; offset < len(base); offset += int(blockSize) {
		end := offset + int(blockSize)
		if end > len(base) {
			end = len(base)
		}
		block := base[offset:end]

		weak, _, _ := weakHash(block, blockSize)
		strong := e.strongHash(block, true)
		result.Hashes = append(result.Hashes, &BlockHash{Weak: weak, Strong: strong})

		if end == len(base) {
			result.LastBlockSize = uint64(len(block))
		} else {
			result.LastBlockSize = blockSize
		}
	}

	if len(result.Hashes) == 0 {
		result.BlockSize = 0
		result.LastBlockSize = 0
	}

	return result
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// transmitData appends data to the result as one or more literal-data
// operations of at most maxDataOpSize bytes each. Any pending run of block
// operations must be flushed by the caller first.
func transmitData(data []byte, maxDataOpSize uint64, result *[]*Operation) {
	for len(data) > 0 {
		sendSize := minUint64(uint64(len(data)), maxDataOpSize)
		*result = append(*result, &Operation{Data: append([]byte(nil), data[:sendSize]...)})
		data = data[sendSize:]
	}
}

// Deltafy computes the sequence of operations needed to reconstitute target
// from base, given base's signature. If maxDataOpSize is 0,
// DefaultMaximumDataOperationSize is used.
func (e *Engine) Deltafy(target []byte, base *Signature, maxDataOpSize uint64) []*Operation {
	if maxDataOpSize == 0 {
		maxDataOpSize = DefaultMaximumDataOperationSize
	}

	if len(base.Hashes) == 0 {
		var result []*Operation
		transmitData(target, maxDataOpSize, &result)
		return result
	}

	var result []*Operation
	var coalescedStart, coalescedCount uint64
	flushBlock := func() {
		if coalescedCount > 0 {
			result = append(result, &Operation{Start: coalescedStart, Count: coalescedCount})
			coalescedCount = 0
		}
	}
	sendBlock := func(index uint64) {
		if coalescedCount > 0 && coalescedStart+coalescedCount == index {
			coalescedCount++
			return
		}
		flushBlock()
		coalescedStart = index
		coalescedCount = 1
	}
	sendData := func(data []byte) {
		if len(data) > 0 {
			flushBlock()
			transmitData(data, maxDataOpSize, &result)
		}
	}

	hashes := base.Hashes
	haveShortLastBlock := false
	var lastBlockIndex uint64
	var shortLastBlock *BlockHash
	if base.LastBlockSize != base.BlockSize {
		haveShortLastBlock = true
		lastBlockIndex = uint64(len(hashes) - 1)
		shortLastBlock = hashes[lastBlockIndex]
		hashes = hashes[:lastBlockIndex]
	}
	weakToBlockHashes := make(map[uint32][]uint64, len(hashes))
	for i, h := range hashes {
		weakToBlockHashes[h.Weak] = append(weakToBlockHashes[h.Weak], uint64(i))
	}

	blockSize := base.BlockSize
	reader := bytes.NewReader(target)
	buffer := make([]byte, 0, maxDataOpSize+blockSize)
	buffer = buffer[:0]

	var occupancy uint64
	var weak, r1, r2 uint32

	growBuffer := func(needed uint64) {
		if uint64(cap(buffer)) < needed {
			grown := make([]byte, needed)
			copy(grown, buffer)
			buffer = grown[:len(buffer)]
		}
	}

	for {
		if occupancy == 0 {
			growBuffer(blockSize)
			buffer = buffer[:blockSize]
			n, err := io.ReadFull(reader, buffer)
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				occupancy = uint64(n)
				buffer = buffer[:occupancy]
				break
			}
			occupancy = blockSize
			weak, r1, r2 = weakHash(buffer[:occupancy], blockSize)
		} else if occupancy < blockSize {
			panic("buffer contains less than a block worth of data")
		} else {
			b, err := reader.ReadByte()
			if err == io.EOF {
				break
			}
			growBuffer(occupancy + 1)
			buffer = buffer[:occupancy+1]
			out := buffer[occupancy-blockSize]
			weak, r1, r2 = rollWeakHash(r1, r2, out, b, blockSize)
			buffer[occupancy] = b
			occupancy++
		}

		potentials := weakToBlockHashes[weak]
		match := false
		var matchIndex uint64
		if len(potentials) > 0 {
			strong := e.strongHash(buffer[occupancy-blockSize:occupancy], false)
			for _, p := range potentials {
				if bytes.Equal(base.Hashes[p].Strong, strong) {
					match = true
					matchIndex = p
					break
				}
			}
		}

		if match {
			sendData(buffer[:occupancy-blockSize])
			sendBlock(matchIndex)
			occupancy = 0
			buffer = buffer[:0]
		} else if occupancy == uint64(cap(buffer)) && occupancy == uint64(len(buffer)) {
			sendData(buffer[:occupancy-blockSize])
			copy(buffer[:blockSize], buffer[occupancy-blockSize:occupancy])
			buffer = buffer[:blockSize]
			occupancy = blockSize
		}
	}

	if haveShortLastBlock && occupancy >= base.LastBlockSize {
		candidate := buffer[occupancy-base.LastBlockSize : occupancy]
		if w, _, _ := weakHash(candidate, blockSize); w == shortLastBlock.Weak {
			if bytes.Equal(e.strongHash(candidate, false), shortLastBlock.Strong) {
				sendData(buffer[:occupancy-base.LastBlockSize])
				sendBlock(lastBlockIndex)
				occupancy = 0
				buffer = buffer[:0]
			}
		}
	}

	sendData(buffer[:occupancy])
	flushBlock()

	return result
}

// Patch reconstitutes a buffer from base, signature, and a sequence of
// operations produced by Deltafy.
func (e *Engine) Patch(base []byte, signature *Signature, operations []*Operation) ([]byte, error) {
	output := bytes.NewBuffer(nil)
	for _, o := range operations {
		if len(o.Data) > 0 {
			output.Write(o.Data)
			continue
		}
		for c := uint64(0); c < o.Count; c++ {
			blockIndex := o.Start + c
			start := blockIndex * signature.BlockSize
			length := signature.BlockSize
			if blockIndex == uint64(len(signature.Hashes)-1) {
				length = signature.LastBlockSize
			}
			if start+length > uint64(len(base)) {
				return nil, errors.New("operation references data beyond base length")
			}
			output.Write(base[start : start+length])
		}
	}
	return output.Bytes(), nil
}
