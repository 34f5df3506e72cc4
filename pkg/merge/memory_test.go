package merge

import (
	"bytes"
	"strings"
	"testing"
)

func TestMemory_RecordLookupCommit(t *testing.T) {
	m := NewMemory()
	preimage := []byte("<<<<<<< current\nA\n||||||| base\nx\n=======\nB\n>>>>>>> alpha\n")
	resolution := []byte("A and B\n")

	token := m.RecordPreimage(preimage)
	if token != PreimageToken(preimage) {
		t.Errorf("token = %s, want %s", token, PreimageToken(preimage))
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token))
	}

	if _, ok := m.LookupByPreimage(preimage); ok {
		t.Fatal("lookup before commit must miss")
	}

	if err := m.CommitResolution(token, resolution); err != nil {
		t.Fatalf("CommitResolution() error = %v", err)
	}

	got, ok := m.LookupByPreimage(preimage)
	if !ok {
		t.Fatal("lookup after commit must hit")
	}
	if !bytes.Equal(got, resolution) {
		t.Errorf("resolution = %q, want %q", got, resolution)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestMemory_RecordIsIdempotent(t *testing.T) {
	m := NewMemory()
	preimage := []byte("conflict text\n")

	first := m.RecordPreimage(preimage)
	second := m.RecordPreimage(preimage)
	if first != second {
		t.Errorf("tokens differ: %s vs %s", first, second)
	}
}

func TestMemory_CommitUnknownToken(t *testing.T) {
	m := NewMemory()
	err := m.CommitResolution("deadbeef", []byte("resolved\n"))
	if err == nil {
		t.Fatal("expected an error for an unrecorded token")
	}
	if !strings.Contains(err.Error(), "unknown preimage token") {
		t.Errorf("error = %v", err)
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	preimage := []byte("conflict\n")
	token := m.RecordPreimage(preimage)
	if err := m.CommitResolution(token, []byte("resolved\n")); err != nil {
		t.Fatal(err)
	}

	got, _ := m.LookupByPreimage(preimage)
	got[0] = 'X'

	again, _ := m.LookupByPreimage(preimage)
	if string(again) != "resolved\n" {
		t.Errorf("stored resolution was mutated through a returned slice: %q", again)
	}
}
