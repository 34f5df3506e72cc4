package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// ReplayMemory is the merge tool's resolution-replay store: a
// preimage-to-postimage lookup keyed by a content-derived token. The
// replay orchestrator consults it whenever a merge conflicts, so a
// resolution accepted once auto-resolves every later identical conflict.
//
// The abstraction allows swapping the in-process store for an external
// merge tool's own replay memory without touching orchestration logic.
type ReplayMemory interface {
	// RecordPreimage registers conflict-marked content and returns its
	// token. Recording is idempotent.
	RecordPreimage(preimage []byte) string

	// LookupByPreimage returns the committed resolution for the exact
	// preimage, if one exists.
	LookupByPreimage(preimage []byte) ([]byte, bool)

	// CommitResolution stores the accepted resolution for a previously
	// recorded preimage token.
	CommitResolution(token string, resolution []byte) error
}

// PreimageToken derives the replay-memory token for conflict content.
// The same token format is persisted in resolution sidecar files.
func PreimageToken(preimage []byte) string {
	sum := sha256.Sum256(preimage)
	return hex.EncodeToString(sum[:])
}

// Memory is the in-process ReplayMemory implementation.
type Memory struct {
	mu          sync.RWMutex
	preimages   map[string][]byte
	resolutions map[string][]byte
}

// NewMemory creates an empty in-process replay memory.
func NewMemory() *Memory {
	return &Memory{
		preimages:   make(map[string][]byte),
		resolutions: make(map[string][]byte),
	}
}

// RecordPreimage implements ReplayMemory.
func (m *Memory) RecordPreimage(preimage []byte) string {
	token := PreimageToken(preimage)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.preimages[token]; !ok {
		cp := make([]byte, len(preimage))
		copy(cp, preimage)
		m.preimages[token] = cp
	}
	return token
}

// LookupByPreimage implements ReplayMemory.
func (m *Memory) LookupByPreimage(preimage []byte) ([]byte, bool) {
	token := PreimageToken(preimage)
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.resolutions[token]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(res))
	copy(cp, res)
	return cp, true
}

// CommitResolution implements ReplayMemory.
func (m *Memory) CommitResolution(token string, resolution []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.preimages[token]; !ok {
		return fmt.Errorf("unknown preimage token %s", token)
	}
	cp := make([]byte, len(resolution))
	copy(cp, resolution)
	m.resolutions[token] = cp
	return nil
}

// Len returns the number of committed resolutions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.resolutions)
}
