package delta

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// BinaryDeltaCodec is the opaque binary-delta capability the core consumes:
// diff(old, new) -> delta, apply(old, delta) -> new. A bsdiff-family
// implementation is a valid alternative backend; RsyncDeltaCodec is the
// default provided here.
type BinaryDeltaCodec interface {
	// Diff computes a delta such that Apply(old, delta) reproduces new.
	Diff(old, new []byte) ([]byte, error)
	// Apply reconstitutes new from old and a delta produced by Diff.
	Apply(old, delta []byte) ([]byte, error)
}

// RsyncDeltaCodec implements BinaryDeltaCodec using the rolling-checksum
// Engine in this package. The wire encoding of its delta payload is a
// purpose-built binary format (not gob or protobuf): a uvarint block size,
// a uvarint operation count, then per operation a tag byte (0 = literal
// data, 1 = block reference) followed by the operation's fields.
type RsyncDeltaCodec struct {
	// BlockSize overrides the block size used for diffing; 0 selects
	// OptimalBlockSize automatically.
	BlockSize uint64
	// MaxDataOperationSize bounds how much literal data a single operation
	// carries; 0 selects DefaultMaximumDataOperationSize.
	MaxDataOperationSize uint64
}

// Diff implements BinaryDeltaCodec.Diff.
func (c *RsyncDeltaCodec) Diff(old, new []byte) ([]byte, error) {
	engine := NewEngine()
	signature := engine.Signature(old, c.BlockSize)
	operations := engine.Deltafy(new, signature, c.MaxDataOperationSize)
	return encodeDelta(signature.BlockSize, operations)
}

// Apply implements BinaryDeltaCodec.Apply.
func (c *RsyncDeltaCodec) Apply(old, delta []byte) ([]byte, error) {
	blockSize, operations, err := decodeDelta(delta)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode delta payload")
	}

	// Reconstruct the minimal signature shell needed by Patch: it only
	// dereferences BlockSize, LastBlockSize and len(Hashes) (to locate and
	// size the final, possibly-short block), never hash contents, so there's no need
	// to have stored the full block-hash table in the delta payload.
	signature, err := signatureShellForLength(uint64(len(old)), blockSize)
	if err != nil {
		return nil, errors.Wrap(err, "unable to reconstruct signature shell")
	}

	engine := NewEngine()
	produced, err := engine.Patch(old, signature, operations)
	if err != nil {
		return nil, errors.Wrap(err, "unable to apply delta operations")
	}
	return produced, nil
}

// signatureShellForLength reconstructs a Signature with the correct
// BlockSize/LastBlockSize/block count for a base buffer of the given length,
// without needing the original hash table.
func signatureShellForLength(length, blockSize uint64) (*Signature, error) {
	if blockSize == 0 {
		if length != 0 {
			return nil, errors.New("zero block size with non-zero base length")
		}
		return &Signature{}, nil
	}

	numBlocks := (length + blockSize - 1) / blockSize
	if numBlocks == 0 {
		return &Signature{}, nil
	}
	lastBlockSize := length - (numBlocks-1)*blockSize
	if lastBlockSize == 0 {
		lastBlockSize = blockSize
	}

	hashes := make([]*BlockHash, numBlocks)
	for i := range hashes {
		hashes[i] = &BlockHash{}
	}

	return &Signature{
		BlockSize:     blockSize,
		LastBlockSize: lastBlockSize,
		Hashes:        hashes,
	}, nil
}

const (
	operationTagData  byte = 0
	operationTagBlock byte = 1
)

func encodeDelta(blockSize uint64, operations []*Operation) ([]byte, error) {
	var buffer bytes.Buffer
	var scratch [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		n := binary.PutUvarint(scratch[:], v)
		buffer.Write(scratch[:n])
	}

	putUvarint(blockSize)
	putUvarint(uint64(len(operations)))

	for _, op := range operations {
		if len(op.Data) > 0 {
			buffer.WriteByte(operationTagData)
			putUvarint(uint64(len(op.Data)))
			buffer.Write(op.Data)
		} else {
			buffer.WriteByte(operationTagBlock)
			putUvarint(op.Start)
			putUvarint(op.Count)
		}
	}

	return buffer.Bytes(), nil
}

func decodeDelta(data []byte) (uint64, []*Operation, error) {
	reader := bytes.NewReader(data)

	blockSize, err := binary.ReadUvarint(reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "unable to read block size")
	}

	count, err := binary.ReadUvarint(reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "unable to read operation count")
	}

	operations := make([]*Operation, 0, count)
	for i := uint64(0); i < count; i++ {
		tag, err := reader.ReadByte()
		if err != nil {
			return 0, nil, errors.Wrap(err, "unable to read operation tag")
		}
		switch tag {
		case operationTagData:
			length, err := binary.ReadUvarint(reader)
			if err != nil {
				return 0, nil, errors.Wrap(err, "unable to read data operation length")
			}
			chunk := make([]byte, length)
			if _, err := io.ReadFull(reader, chunk); err != nil {
				return 0, nil, errors.Wrap(err, "unable to read data operation payload")
			}
			operations = append(operations, &Operation{Data: chunk})
		case operationTagBlock:
			start, err := binary.ReadUvarint(reader)
			if err != nil {
				return 0, nil, errors.Wrap(err, "unable to read block operation start")
			}
			blockCount, err := binary.ReadUvarint(reader)
			if err != nil {
				return 0, nil, errors.Wrap(err, "unable to read block operation count")
			}
			operations = append(operations, &Operation{Start: start, Count: blockCount})
		default:
			return 0, nil, errors.Errorf("unrecognized operation tag: %d", tag)
		}
	}

	return blockSize, operations, nil
}
