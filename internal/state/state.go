package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/imamik/stackforge/internal/graph"
)

// Version is the format version written by this build.
const Version = 1

// ResourceState is the recorded result of applying one node.
type ResourceState struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	// Config is the declared attributes, references rendered as placeholders.
	Config       map[string]any  `json:"config"`
	InputsHash   string          `json:"inputs_hash"`
	Inputs       map[string]any  `json:"inputs"`
	Outputs      map[string]any  `json:"outputs"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Lifecycle    graph.Lifecycle `json:"lifecycle"`
	// Tainted marks a resource whose create failed after the provider had
	// assigned an id. The next plan replaces it.
	Tainted bool `json:"tainted,omitempty"`
	// Drift lists inputs whose live value no longer matches, as found by
	// the last refresh.
	Drift []string `json:"drift,omitempty"`
}

// State is the full remote state document.
type State struct {
	Version   int                       `json:"version"`
	Serial    int64                     `json:"serial"`
	Lineage   string                    `json:"lineage"`
	Resources map[string]*ResourceState `json:"resources"`
	Outputs   map[string]any            `json:"outputs,omitempty"`
}

// New returns an empty state with a fresh lineage.
func New() *State {
	return &State{
		Version:   Version,
		Lineage:   uuid.NewString(),
		Resources: make(map[string]*ResourceState),
		Outputs:   make(map[string]any),
	}
}

// Decode parses a state document.
func Decode(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	if s.Version > Version {
		return nil, fmt.Errorf("state version %d is newer than supported version %d", s.Version, Version)
	}
	if s.Resources == nil {
		s.Resources = make(map[string]*ResourceState)
	}
	if s.Outputs == nil {
		s.Outputs = make(map[string]any)
	}
	if s.Lineage == "" {
		s.Lineage = uuid.NewString()
	}
	s.Version = Version
	return &s, nil
}

// Encode renders the state as indented JSON.
func (s *State) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy.
func (s *State) Clone() (*State, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to clone state: %w", err)
	}
	return Decode(data)
}

// Get returns the resource recorded at addr.
func (s *State) Get(addr string) (*ResourceState, bool) {
	r, ok := s.Resources[addr]
	return r, ok
}

// Set records a resource.
func (s *State) Set(addr string, r *ResourceState) {
	if s.Resources == nil {
		s.Resources = make(map[string]*ResourceState)
	}
	s.Resources[addr] = r
}

// Remove forgets a resource.
func (s *State) Remove(addr string) {
	delete(s.Resources, addr)
}

// Addresses returns the recorded addresses in sorted order.
func (s *State) Addresses() []string {
	out := make([]string, 0, len(s.Resources))
	for addr := range s.Resources {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves refs against recorded outputs.
func (s *State) Lookup(ref graph.Ref) (any, bool) {
	r, ok := s.Resources[ref.Node.String()]
	if !ok || r.Outputs == nil {
		return nil, false
	}
	v, ok := r.Outputs[ref.Attr]
	return v, ok
}

// Canonical converts attributes to their JSON form: refs become placeholders,
// integers become float64 and nested Attrs become plain maps. Two attribute
// sets are equal exactly when their canonical forms are.
func Canonical(attrs map[string]any) (map[string]any, error) {
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalise attributes: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to canonicalise attributes: %w", err)
	}
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

// HashInputs returns the sha256 of the canonical JSON of attrs. Map keys are
// sorted by encoding/json, so the hash is stable.
func HashInputs(attrs map[string]any) (string, error) {
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to hash attributes: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
