package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syntrixbase/inventory/internal/inventory/model"
)

// Snapshot is the file form of an embedded source. Records use the same
// field names as change-event payloads.
type Snapshot struct {
	TMOs  []model.TMO  `json:"tmo"`
	TPRMs []model.TPRM `json:"tprm"`
	MOs   []model.MO   `json:"mo"`
	PRMs  []model.PRM  `json:"prm"`
}

// ReadSnapshot decodes a YAML (or JSON) snapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var raw any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return &Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	// Round-trip through JSON so records decode with their wire field names.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// LoadSnapshot returns a source holding the snapshot stored at path.
func LoadSnapshot(path string, chunkSize int) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	snap, err := ReadSnapshot(f)
	if err != nil {
		return nil, err
	}
	s := New(chunkSize)
	s.Put(snap)
	return s, nil
}

// Put adds every record of snap.
func (s *Source) Put(snap *Snapshot) {
	s.PutTMO(snap.TMOs...)
	s.PutTPRM(snap.TPRMs...)
	s.PutMO(snap.MOs...)
	s.PutPRM(snap.PRMs...)
}
