// Package alias loads the radio-ID-to-display-name lookup table used to
// annotate Zello text announcements and call records with a human-readable
// station name. The alias file lookup itself stays an external collaborator
// at the interface described here; this package owns only the YAML load and
// the case/space-insensitive match.
package alias

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/openfne/zello-gateway/pkg/gatewayerr"
)

// Entry is a single alias record as it appears in the YAML file.
type Entry struct {
	RadioID  uint32 `yaml:"radio_id"`
	Alias    string `yaml:"alias"`
	Callsign string `yaml:"callsign,omitempty"`
}

type fileFormat struct {
	Aliases []Entry `yaml:"aliases"`
}

// Map is a concurrency-safe, reloadable radio-ID alias table. Lookups
// normalize on both sides to make "N0CALL", "n0call", and " N0CALL " match
// the same stored alias.
type Map struct {
	mu       sync.RWMutex
	byID     map[uint32]Entry
	byName   map[string]Entry
	byAlias  map[string]uint32
}

// New returns an empty Map.
func New() *Map {
	return &Map{
		byID:    make(map[uint32]Entry),
		byName:  make(map[string]Entry),
		byAlias: make(map[string]uint32),
	}
}

// Load reads a YAML alias file from path and replaces the Map's contents.
func Load(path string) (*Map, error) {
	m := New()
	if err := m.Reload(path); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads path and atomically replaces the in-memory table.
func (m *Map) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return gatewayerr.InternalErr("alias.Reload", err)
	}

	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return gatewayerr.InternalErr("alias.Reload", fmt.Errorf("parse %s: %w", path, err))
	}

	byID := make(map[uint32]Entry, len(ff.Aliases))
	byName := make(map[string]Entry, len(ff.Aliases))
	byAlias := make(map[string]uint32, len(ff.Aliases))
	for _, e := range ff.Aliases {
		byID[e.RadioID] = e
		if e.Callsign != "" {
			byName[normalize(e.Callsign)] = e
		}
		if e.Alias != "" {
			byAlias[normalize(e.Alias)] = e.RadioID
		}
	}

	m.mu.Lock()
	m.byID = byID
	m.byName = byName
	m.byAlias = byAlias
	m.mu.Unlock()
	return nil
}

// Lookup resolves an alias name to its radio ID, ignoring case and
// surrounding/internal whitespace. Returns 0 when name is empty or unknown.
func (m *Map) Lookup(name string) uint32 {
	if name == "" {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byAlias[normalize(name)]
}

// ByRadioID returns the alias entry for a radio ID, if one is loaded.
func (m *Map) ByRadioID(radioID uint32) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[radioID]
	return e, ok
}

// ByCallsign looks up an alias by callsign, ignoring case and surrounding
// whitespace.
func (m *Map) ByCallsign(callsign string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byName[normalize(callsign)]
	return e, ok
}

// Entries returns a snapshot of every loaded alias entry, for callers
// that need to mirror the table elsewhere (e.g. a persisted roster).
func (m *Map) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.byID))
	for _, e := range m.byID {
		out = append(out, e)
	}
	return out
}

// DisplayName returns the best available human-readable name for a radio
// ID: its alias if known, otherwise the decimal radio ID.
func (m *Map) DisplayName(radioID uint32) string {
	if e, ok := m.ByRadioID(radioID); ok && e.Alias != "" {
		return e.Alias
	}
	return fmt.Sprintf("%d", radioID)
}

func normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
