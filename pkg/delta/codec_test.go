package delta

import (
	"bytes"
	"testing"
)

func TestRsyncDeltaCodecRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		old  []byte
		new  []byte
	}{
		{"identical", []byte("the quick brown fox jumps over the lazy dog"), []byte("the quick brown fox jumps over the lazy dog")},
		{"small edit", []byte("version one of the file"), []byte("version two of the file")},
		{"grow from empty", nil, []byte("brand new content")},
		{"shrink to empty", []byte("going away"), nil},
	}

	codec := &RsyncDeltaCodec{BlockSize: 4, MaxDataOperationSize: 8}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			payload, err := codec.Diff(testCase.old, testCase.new)
			if err != nil {
				t.Fatalf("diff failed: %v", err)
			}

			result, err := codec.Apply(testCase.old, payload)
			if err != nil {
				t.Fatalf("apply failed: %v", err)
			}
			if !bytes.Equal(result, testCase.new) {
				t.Errorf("applied result (%q) does not match expected (%q)", result, testCase.new)
			}
		})
	}
}

func TestEncodeDecodeDeltaRoundTrip(t *testing.T) {
	operations := []*Operation{
		{Data: []byte("literal")},
		{Start: 3, Count: 2},
		{Data: []byte("more literal data")},
	}

	encoded, err := encodeDelta(1024, operations)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	blockSize, decoded, err := decodeDelta(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if blockSize != 1024 {
		t.Errorf("decoded block size (%d) does not match expected (1024)", blockSize)
	}
	if len(decoded) != len(operations) {
		t.Fatalf("decoded operation count (%d) does not match expected (%d)", len(decoded), len(operations))
	}
	for i, op := range operations {
		if !bytes.Equal(op.Data, decoded[i].Data) || op.Start != decoded[i].Start || op.Count != decoded[i].Count {
			t.Errorf("decoded operation %d (%+v) does not match expected (%+v)", i, decoded[i], op)
		}
	}
}
