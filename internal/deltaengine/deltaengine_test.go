package deltaengine

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestBlockSizeClampedPowerOfTwo(t *testing.T) {
	cases := []struct {
		size uint64
		want uint32
	}{
		{0, MinBlockSize},
		{1024, MinBlockSize},
		{1 << 20, MinBlockSize}, // sqrt(1MiB) = 1024, below the 2 KiB floor
		{1 << 40, MaxBlockSize},
	}
	for _, c := range cases {
		if got := BlockSize(c.size); got != c.want {
			t.Errorf("BlockSize(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestOpRoundTrip(t *testing.T) {
	ops := []Op{
		CopyOp(0, 4096),
		LiteralOp([]byte("hello world")),
		CopyOp(1<<20, 2048),
	}
	encoded := EncodeOps(ops)
	decoded, err := DecodeOps(encoded)
	if err != nil {
		t.Fatalf("DecodeOps: %v", err)
	}
	if len(decoded) != len(ops) {
		t.Fatalf("got %d ops, want %d", len(decoded), len(ops))
	}
	for i := range ops {
		if ops[i].Kind != decoded[i].Kind || ops[i].Offset != decoded[i].Offset {
			t.Fatalf("op %d mismatch: %+v vs %+v", i, ops[i], decoded[i])
		}
		if ops[i].Kind == OpLiteral && !bytes.Equal(ops[i].Literal, decoded[i].Literal) {
			t.Fatalf("literal mismatch at %d", i)
		}
	}
}

func TestGenerateAndApplyRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	original := make([]byte, 300*1024)
	rng.Read(original)

	// modified: insert 37 bytes in the middle, leave the rest untouched
	modified := make([]byte, 0, len(original)+37)
	modified = append(modified, original[:150*1024]...)
	insert := make([]byte, 37)
	rng.Read(insert)
	modified = append(modified, insert...)
	modified = append(modified, original[150*1024:]...)

	blockSize := BlockSize(uint64(len(original)))
	checksums, err := ComputeChecksums(bytes.NewReader(original), blockSize)
	if err != nil {
		t.Fatalf("ComputeChecksums: %v", err)
	}

	ops, err := GenerateDelta(bytes.NewReader(modified), checksums, blockSize)
	if err != nil {
		t.Fatalf("GenerateDelta: %v", err)
	}

	var literalBytes int
	for _, op := range ops {
		if op.Kind == OpLiteral {
			literalBytes += len(op.Literal)
		}
	}
	if literalBytes > int(blockSize)*4 {
		t.Errorf("literal bytes %d exceed expected small multiple of block size %d", literalBytes, blockSize)
	}

	var out bytes.Buffer
	applier := NewApplier(bytes.NewReader(original), &out, blockSize)
	for _, op := range ops {
		if err := applier.Apply(op); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if !bytes.Equal(out.Bytes(), modified) {
		t.Fatalf("applied delta does not reconstruct modified content (got %d bytes, want %d)", out.Len(), len(modified))
	}
}

func TestApplyCopyPastEndOfOriginalIsFatal(t *testing.T) {
	original := bytes.NewReader(make([]byte, 100))
	var out bytes.Buffer
	applier := NewApplier(original, &out, 64)

	// An offset/length pair a real checksum table would never produce
	// against a 100-byte original: the original shrank out from under a
	// delta generated against its old, larger size.
	err := applier.Apply(CopyOp(50, 64))
	if err == nil {
		t.Fatal("expected an error for a copy op reaching past the end of the original file")
	}
	if out.Len() != 0 {
		t.Fatalf("expected no bytes written to staging on a short read, got %d", out.Len())
	}
}

func TestGenerateDeltaIdenticalFileIsAllCopies(t *testing.T) {
	data := make([]byte, 64*1024)
	rand.New(rand.NewSource(2)).Read(data)

	blockSize := BlockSize(uint64(len(data)))
	checksums, err := ComputeChecksums(bytes.NewReader(data), blockSize)
	if err != nil {
		t.Fatalf("ComputeChecksums: %v", err)
	}
	ops, err := GenerateDelta(bytes.NewReader(data), checksums, blockSize)
	if err != nil {
		t.Fatalf("GenerateDelta: %v", err)
	}
	for _, op := range ops {
		if op.Kind != OpCopy {
			t.Fatalf("expected only copy ops for an unmodified file, got a %v op", op.Kind)
		}
	}
}
