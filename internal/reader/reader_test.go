package reader

import (
	"bytes"
	"context"
	"testing"

	"github.com/raj-prince/gcscfuse/internal/store"
)

// countingInner serves fixed content and counts distinct fetch calls.
type countingInner struct {
	content map[string][]byte
	calls   int
}

func (c *countingInner) ReadAt(_ context.Context, name string, p []byte, off int64) (int, error) {
	c.calls++
	data, ok := c.content[name]
	if !ok {
		return 0, store.ErrNotFound
	}
	if off >= int64(len(data)) {
		return 0, nil
	}
	return copy(p, data[off:]), nil
}

func (c *countingInner) Invalidate(string) {}
func (c *countingInner) Clear()            {}

func TestSyntheticReturnsZeroFilledBytes(t *testing.T) {
	r := NewSynthetic()
	buf := []byte("xxxxxxxxxxxxx") // 13 bytes of garbage
	n, err := r.ReadAt(context.Background(), "anything", buf, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 13 {
		t.Fatalf("n = %d, want 13", n)
	}
	if !bytes.Equal(buf, make([]byte, 13)) {
		t.Error("buffer not zero-filled")
	}
}

func TestSyntheticIgnoresNameAndOffset(t *testing.T) {
	r := NewSynthetic()
	buf := make([]byte, 7)
	n, err := r.ReadAt(context.Background(), "other", buf, 1<<40)
	if err != nil || n != 7 {
		t.Fatalf("n, err = %d, %v; want 7, nil", n, err)
	}
}

func TestRemoteReadsExactRange(t *testing.T) {
	f := store.NewFake()
	f.SetObject("obj", []byte("hello world"))
	r := NewRemote(f)

	buf := make([]byte, 5)
	n, err := r.ReadAt(context.Background(), "obj", buf, 6)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf[:n]) != "world" {
		t.Errorf("got %q, want %q", buf[:n], "world")
	}
}

func TestRemotePastEndReturnsZero(t *testing.T) {
	f := store.NewFake()
	f.SetObject("obj", []byte("abc"))
	r := NewRemote(f)

	buf := make([]byte, 4)
	n, err := r.ReadAt(context.Background(), "obj", buf, 10)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0", n)
	}
}

func TestRemoteNotFound(t *testing.T) {
	r := NewRemote(store.NewFake())
	_, err := r.ReadAt(context.Background(), "missing", make([]byte, 4), 0)
	if err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestCachingServesSliceAndFetchesOnce(t *testing.T) {
	inner := &countingInner{content: map[string][]byte{
		"obj": []byte("0123456789"),
	}}
	c := NewCaching(inner)
	ctx := context.Background()

	buf1 := make([]byte, 4)
	n, err := c.ReadAt(ctx, "obj", buf1, 2)
	if err != nil {
		t.Fatalf("first ReadAt: %v", err)
	}
	if string(buf1[:n]) != "2345" {
		t.Errorf("first read = %q, want %q", buf1[:n], "2345")
	}

	buf2 := make([]byte, 4)
	n, err = c.ReadAt(ctx, "obj", buf2, 2)
	if err != nil {
		t.Fatalf("second ReadAt: %v", err)
	}
	if !bytes.Equal(buf1[:4], buf2[:n]) {
		t.Error("repeated reads of the same range differ")
	}

	// The whole object fits in the initial fetch buffer, so exactly one
	// inner call covers both reads.
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestCachingClampsPastEnd(t *testing.T) {
	inner := &countingInner{content: map[string][]byte{"obj": []byte("abcdef")}}
	c := NewCaching(inner)
	ctx := context.Background()

	buf := make([]byte, 10)
	n, err := c.ReadAt(ctx, "obj", buf, 4)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf[:n]) != "ef" {
		t.Errorf("got %q, want %q", buf[:n], "ef")
	}

	n, err = c.ReadAt(ctx, "obj", buf, 100)
	if err != nil {
		t.Fatalf("ReadAt past end: %v", err)
	}
	if n != 0 {
		t.Errorf("read past end = %d bytes, want 0", n)
	}
}

func TestCachingInvalidateForcesRefetch(t *testing.T) {
	inner := &countingInner{content: map[string][]byte{"obj": []byte("data")}}
	c := NewCaching(inner)
	ctx := context.Background()
	buf := make([]byte, 4)

	if _, err := c.ReadAt(ctx, "obj", buf, 0); err != nil {
		t.Fatal(err)
	}
	c.Invalidate("obj")
	if _, err := c.ReadAt(ctx, "obj", buf, 0); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls after invalidate = %d, want 2", inner.calls)
	}
}

func TestCachingClearDropsEverything(t *testing.T) {
	inner := &countingInner{content: map[string][]byte{
		"a": []byte("aa"),
		"b": []byte("bb"),
	}}
	c := NewCaching(inner)
	ctx := context.Background()
	buf := make([]byte, 2)

	c.ReadAt(ctx, "a", buf, 0)
	c.ReadAt(ctx, "b", buf, 0)
	c.Clear()
	c.ReadAt(ctx, "a", buf, 0)
	c.ReadAt(ctx, "b", buf, 0)

	if inner.calls != 4 {
		t.Errorf("inner calls = %d, want 4", inner.calls)
	}
}

func TestCachingPropagatesNotFound(t *testing.T) {
	c := NewCaching(&countingInner{content: map[string][]byte{}})
	_, err := c.ReadAt(context.Background(), "gone", make([]byte, 4), 0)
	if err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestCachingEmptyObjectNotCached(t *testing.T) {
	inner := &countingInner{content: map[string][]byte{"empty": {}}}
	c := NewCaching(inner)
	ctx := context.Background()
	buf := make([]byte, 4)

	n, err := c.ReadAt(ctx, "empty", buf, 0)
	if err != nil || n != 0 {
		t.Fatalf("n, err = %d, %v; want 0, nil", n, err)
	}
	c.ReadAt(ctx, "empty", buf, 0)
	if inner.calls != 2 {
		t.Errorf("empty objects must not populate the cache; calls = %d", inner.calls)
	}
}
