package vcs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mrowan/hutch/lockfile"
)

// sideRegistry persists per-workspace metadata for tools without a native
// per-workspace metadata slot. It is a single JSON document colocated with
// the tool's own state directory and guarded by the shared lockfile
// primitive.
type sideRegistry struct {
	path    string
	timeout time.Duration
}

type sideEntry struct {
	Path      string    `json:"path"`
	Branch    string    `json:"branch,omitempty"`
	Parent    string    `json:"parent,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

type sideDocument struct {
	Workspaces map[string]sideEntry `json:"workspaces"`
}

func newSideRegistry(path string) *sideRegistry {
	return &sideRegistry{path: path, timeout: 5 * time.Second}
}

func (r *sideRegistry) load() (sideDocument, error) {
	data, err := lockfile.Read(r.path, r.timeout)
	if err != nil {
		return sideDocument{}, err
	}
	return parseSideDocument(data), nil
}

func parseSideDocument(data []byte) sideDocument {
	doc := sideDocument{Workspaces: map[string]sideEntry{}}
	if len(data) == 0 {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.Workspaces == nil {
		// Corrupt side registry: start over rather than wedging the backend.
		doc.Workspaces = map[string]sideEntry{}
	}
	return doc
}

func (r *sideRegistry) update(mutate func(doc *sideDocument) error) error {
	return lockfile.WithLock(r.path, r.timeout, func(current []byte) ([]byte, error) {
		doc := parseSideDocument(current)
		if err := mutate(&doc); err != nil {
			return nil, err
		}
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding workspace registry: %w", err)
		}
		return append(out, '\n'), nil
	})
}
