package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jpenney/pdar/pkg/delta"
	"github.com/jpenney/pdar/pkg/hashing"
)

func TestKindStringAndParseRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindDiff, KindNew, KindDelete, KindCopy, KindMove} {
		tag := kind.String()
		parsed, err := ParseKind(tag)
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}
}

func TestParseKindRejectsUnknownTag(t *testing.T) {
	_, err := ParseKind("transmute")
	require.Error(t, err)
}

func TestKindStringUnknown(t *testing.T) {
	require.Equal(t, "unknown", Kind(255).String())
}

func TestEntryEnsureValid(t *testing.T) {
	require.Error(t, (*Entry)(nil).EnsureValid())

	require.Error(t, (&Entry{Kind: KindNew}).EnsureValid(), "empty target")

	require.NoError(t, (&Entry{Kind: KindDiff, Target: "a", Payload: []byte("x")}).EnsureValid())
	require.Error(t, (&Entry{Kind: KindDiff, Target: "a"}).EnsureValid(), "diff needs a payload")

	require.NoError(t, (&Entry{Kind: KindNew, Target: "a"}).EnsureValid(), "new may have empty payload")

	require.NoError(t, (&Entry{Kind: KindDelete, Target: "a"}).EnsureValid())

	require.Error(t, (&Entry{Kind: KindCopy, Target: "a"}).EnsureValid(), "copy needs target_source")
	require.Error(t, (&Entry{Kind: KindCopy, Target: "a", TargetSource: "a"}).EnsureValid(),
		"target_source may not equal target")
	require.NoError(t, (&Entry{Kind: KindCopy, Target: "a", TargetSource: "b"}).EnsureValid())

	require.Error(t, (&Entry{Kind: Kind(99), Target: "a"}).EnsureValid())
}

func TestVerifyOrig(t *testing.T) {
	diff := &Entry{Kind: KindDiff, OrigDigest: "deadbeef"}
	require.True(t, diff.VerifyOrig(true, "deadbeef"))
	require.False(t, diff.VerifyOrig(true, "other"))
	require.False(t, diff.VerifyOrig(false, "deadbeef"))

	newEntry := &Entry{Kind: KindNew}
	require.True(t, newEntry.VerifyOrig(false, ""))
	require.False(t, newEntry.VerifyOrig(true, ""))

	copyEntry := &Entry{Kind: KindCopy}
	require.True(t, copyEntry.VerifyOrig(false, ""))
	require.False(t, copyEntry.VerifyOrig(true, ""))
}

func TestVerifySource(t *testing.T) {
	diff := &Entry{Kind: KindDiff}
	require.True(t, diff.VerifySource(false, ""), "non copy/move entries have no source precondition")

	move := &Entry{Kind: KindMove, DestDigest: "cafe"}
	require.True(t, move.VerifySource(true, "cafe"))
	require.False(t, move.VerifySource(true, "other"))
	require.False(t, move.VerifySource(false, "cafe"))
}

func TestVerifyDestAndProduce(t *testing.T) {
	engine, err := hashing.New(hashing.SHA1)
	require.NoError(t, err)
	codec := &delta.RsyncDeltaCodec{}

	del := &Entry{Kind: KindDelete}
	require.True(t, del.VerifyDest(engine, nil, true))
	require.False(t, del.VerifyDest(engine, nil, false))

	newEntry := &Entry{Kind: KindNew, Payload: []byte("hello"), DestDigest: engine.HashBytes([]byte("hello"))}
	produced, err := newEntry.Produce(nil, nil, codec)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), produced)
	require.True(t, newEntry.VerifyDest(engine, produced, false))
	require.False(t, newEntry.VerifyDest(engine, produced, true))

	payload, err := codec.Diff([]byte("x"), []byte("y"))
	require.NoError(t, err)
	diffEntry := &Entry{Kind: KindDiff, Payload: payload, DestDigest: engine.HashBytes([]byte("y"))}
	produced, err = diffEntry.Produce([]byte("x"), nil, codec)
	require.NoError(t, err)
	require.Equal(t, []byte("y"), produced)
	require.True(t, diffEntry.VerifyDest(engine, produced, false))

	_, err = (&Entry{Kind: KindDelete}).Produce(nil, nil, codec)
	require.Error(t, err)

	copyEntry := &Entry{Kind: KindCopy}
	produced, err = copyEntry.Produce(nil, []byte("source bytes"), codec)
	require.NoError(t, err)
	require.Equal(t, []byte("source bytes"), produced)
}
