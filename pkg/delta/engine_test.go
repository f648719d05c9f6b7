package delta

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestBlockHashNilInvalid(t *testing.T) {
	var hash *BlockHash
	if hash.EnsureValid() == nil {
		t.Error("nil block hash considered valid")
	}
}

func TestBlockHashEmptyStrongHashInvalid(t *testing.T) {
	hash := &BlockHash{Weak: 5, Strong: make([]byte, 0)}
	if hash.EnsureValid() == nil {
		t.Error("block hash with empty strong hash considered valid")
	}
}

func TestSignatureNilInvalid(t *testing.T) {
	var signature *Signature
	if signature.EnsureValid() == nil {
		t.Error("nil signature considered valid")
	}
}

func TestSignatureZeroBlockSizeNonZeroLastBlockSizeInvalid(t *testing.T) {
	signature := &Signature{LastBlockSize: 8192}
	if signature.EnsureValid() == nil {
		t.Error("zero block size with non-zero last block size considered valid")
	}
}

func TestSignatureLastBlockSizeTooBigInvalid(t *testing.T) {
	signature := &Signature{BlockSize: 8192, LastBlockSize: 8193}
	if signature.EnsureValid() == nil {
		t.Error("overly large last block size considered valid")
	}
}

func TestSignatureEmptyBase(t *testing.T) {
	engine := NewEngine()
	signature := engine.Signature(nil, 1024)
	if err := signature.EnsureValid(); err != nil {
		t.Fatalf("signature of empty base considered invalid: %v", err)
	}
	if signature.BlockSize != 0 || len(signature.Hashes) != 0 {
		t.Error("signature of empty base should have zero block size and no hashes")
	}
}

func TestDeltafyAndPatchRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		old  []byte
		new  []byte
	}{
		{"both empty", nil, nil},
		{"old empty", nil, []byte("hello")},
		{"new empty", []byte("hello"), nil},
		{"identical", []byte("the quick brown fox"), []byte("the quick brown fox")},
		{"single byte change", []byte("aaaaaaaaaa"), []byte("aaaaaaaaab")},
		{"prepend", []byte("world"), []byte("hello world")},
		{"append", []byte("hello"), []byte("hello world")},
		{"shuffle blocks", []byte("ABCDEFGHIJ"), []byte("FGHIJABCDE")},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			engine := NewEngine()
			signature := engine.Signature(testCase.old, 4)
			operations := engine.Deltafy(testCase.new, signature, 8)

			result, err := engine.Patch(testCase.old, signature, operations)
			if err != nil {
				t.Fatalf("patch failed: %v", err)
			}
			if !bytes.Equal(result, testCase.new) {
				t.Errorf("patched result (%q) does not match expected (%q)", result, testCase.new)
			}
		})
	}
}

func TestDeltafyAndPatchRandomData(t *testing.T) {
	random := rand.New(rand.NewSource(1))

	old := make([]byte, 10000)
	random.Read(old)

	new := append([]byte(nil), old...)
	// Apply a handful of localized mutations so there's a mix of matched
	// blocks and literal data.
	for i := 0; i < 20; i++ {
		index := random.Intn(len(new))
		new[index] = byte(random.Intn(256))
	}
	new = append(new, []byte("trailing appended content")...)

	engine := NewEngine()
	signature := engine.Signature(old, 256)
	operations := engine.Deltafy(new, signature, 512)

	result, err := engine.Patch(old, signature, operations)
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	if !bytes.Equal(result, new) {
		t.Error("patched result does not match expected random mutation")
	}
}

func TestOptimalBlockSizeBounded(t *testing.T) {
	if size := OptimalBlockSize(0); size < minimumOptimalBlockSize {
		t.Errorf("optimal block size (%d) below minimum", size)
	}
	if size := OptimalBlockSize(1 << 40); size > maximumOptimalBlockSize {
		t.Errorf("optimal block size (%d) above maximum", size)
	}
}
