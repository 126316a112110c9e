package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/mover/internal/account"
	"github.com/roach88/mover/internal/ir"
)

func TestOpen_Memory(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma(context.Background(), "user_version", "1"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma(context.Background(), "busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestOpen_FileIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_MemoryStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	a := createTestStore(t)
	b := createTestStore(t)

	if err := a.Put(ctx, balancePath("0xa"), []byte(`{"value":1}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	_, ok, err := b.Get(ctx, balancePath("0xa"))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("second in-memory store saw the first store's data")
	}
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	path := balancePath("0xa")

	if _, ok, err := s.Get(ctx, path); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	if err := s.Put(ctx, path, []byte(`{"value":1}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Put(ctx, path, []byte(`{"value":2}`)); err != nil {
		t.Fatalf("Put() overwrite failed: %v", err)
	}

	got, ok, err := s.Get(ctx, path)
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if string(got) != `{"value":2}` {
		t.Errorf("Get() = %s, want overwritten value", got)
	}

	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("Delete() of absent path failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, path); ok {
		t.Error("value still present after Delete()")
	}
}

func TestPut_RejectsInvalidPath(t *testing.T) {
	s := createTestStore(t)
	if err := s.Put(context.Background(), "not-a-path", []byte("x")); err == nil {
		t.Error("expected error for invalid access path")
	}
}

func TestAddModuleAndModules(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	id := ir.ModuleID{Address: account.CoreAddress, Name: "Account"}
	if err := s.AddModule(ctx, id, []byte(`{"kind":"module"}`)); err != nil {
		t.Fatalf("AddModule() failed: %v", err)
	}
	if err := s.Put(ctx, balancePath("0xa"), []byte(`{"value":1}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	modules, err := s.Modules(ctx)
	if err != nil {
		t.Fatalf("Modules() failed: %v", err)
	}
	if len(modules) != 1 || modules[0].Path != ir.ModulePath(id) {
		t.Errorf("Modules() = %v, want only %s", modules, ir.ModulePath(id))
	}
}

func TestEntries_OrderedByPath(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	paths := []ir.AccessPath{
		balancePath("0xc"),
		ir.ModulePath(ir.ModuleID{Address: account.CoreAddress, Name: "Debug"}),
		balancePath("0xa"),
		ir.ModulePath(ir.ModuleID{Address: account.CoreAddress, Name: "Account"}),
	}
	for _, p := range paths {
		if err := s.Put(ctx, p, []byte("{}")); err != nil {
			t.Fatalf("Put(%s) failed: %v", p, err)
		}
	}

	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}
	if len(entries) != len(paths) {
		t.Fatalf("Entries() returned %d entries, want %d", len(entries), len(paths))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Path >= entries[i].Path {
			t.Errorf("entries out of order: %s before %s", entries[i-1].Path, entries[i].Path)
		}
	}
}

func TestApplyWriteSet(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	if err := s.Put(ctx, balancePath("0xa"), []byte(`{"value":1}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	ws := ir.NewWriteSet([]ir.WriteOp{
		{Path: balancePath("0xa"), Kind: ir.WriteKindDelete},
		{Path: balancePath("0xb"), Kind: ir.WriteKindSet, Value: []byte(`{"value":5}`)},
	})
	if err := s.ApplyWriteSet(ctx, ws); err != nil {
		t.Fatalf("ApplyWriteSet() failed: %v", err)
	}

	if _, ok, _ := s.Get(ctx, balancePath("0xa")); ok {
		t.Error("deleted path still present")
	}
	got, ok, _ := s.Get(ctx, balancePath("0xb"))
	if !ok || string(got) != `{"value":5}` {
		t.Errorf("Get(0xb) = %s, %v", got, ok)
	}
}

func TestApplyWriteSet_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	ws := ir.WriteSet{
		{Path: balancePath("0xa"), Kind: ir.WriteKindSet, Value: []byte(`{"value":1}`)},
		{Path: "bogus", Kind: ir.WriteKindSet, Value: []byte("x")},
	}
	if err := s.ApplyWriteSet(ctx, ws); err == nil {
		t.Fatal("expected error for invalid path")
	}

	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("partial write set applied: %v", entries)
	}
}

func TestSnapshotReproducesStore(t *testing.T) {
	ctx := context.Background()
	src := createTestStore(t)
	for _, owner := range []string{"0xb", "0xa"} {
		if err := src.Put(ctx, balancePath(owner), []byte(`{"value":9}`)); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}

	snap, err := src.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	dst := createTestStore(t)
	if err := dst.ApplyWriteSet(ctx, snap); err != nil {
		t.Fatalf("ApplyWriteSet() failed: %v", err)
	}

	want, _ := src.Entries(ctx)
	got, _ := dst.Entries(ctx)
	if len(want) != len(got) {
		t.Fatalf("entry count %d, want %d", len(got), len(want))
	}
	for i := range want {
		if want[i].Path != got[i].Path || !bytes.Equal(want[i].Value, got[i].Value) {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}
