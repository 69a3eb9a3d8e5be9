package docstore

import (
	"errors"
	"testing"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	id, err := l.Save([]byte("candidate cv text"), "cv.txt")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(id) != 32 {
		t.Errorf("id length = %d, want 32", len(id))
	}

	got, err := l.Open(id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "candidate cv text" {
		t.Errorf("content = %q", got)
	}
	if !l.Exists(id) {
		t.Error("Exists returned false for stored document")
	}
}

func TestSaveIsContentAddressed(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	id1, _ := l.Save([]byte("same bytes"), "a.pdf")
	id2, _ := l.Save([]byte("same bytes"), "b.pdf")
	if id1 != id2 {
		t.Errorf("identical content produced different ids: %s vs %s", id1, id2)
	}

	id3, _ := l.Save([]byte("other bytes"), "c.pdf")
	if id3 == id1 {
		t.Error("different content produced the same id")
	}
}

func TestOpenUnknownID(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	if _, err := l.Open("deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(unknown) = %v, want ErrNotFound", err)
	}
	if l.Exists("deadbeef") {
		t.Error("Exists returned true for unknown id")
	}
}

func TestFindRejectsPathTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if l.Exists("../etc/passwd") {
		t.Error("path traversal id resolved")
	}
}
