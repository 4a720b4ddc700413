// Package model defines the stored documents: projects, blocks, orders and
// the rollups that bundle a project with its blocks.
package model

import (
	"encoding/json"
	"sort"
	"time"
)

// Metadata is shared by projects, blocks and orders.
type Metadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Authors     []string       `json:"authors"`
	Tags        map[string]any `json:"tags,omitempty"`
	Keywords    []string       `json:"keywords,omitempty"`
	Color       string         `json:"color,omitempty"`
	Created     int64          `json:"created,omitempty"`
}

// Project is the top-level design document.
type Project struct {
	ID         string         `json:"id"`
	Version    string         `json:"version,omitempty"`   // sha of the last save
	LastSaved  int64          `json:"lastSaved,omitempty"` // unix millis of the last save
	IsSample   bool           `json:"isSample,omitempty"`
	Metadata   Metadata       `json:"metadata"`
	Components []string       `json:"components"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// Annotation marks a feature on a block's sequence.
type Annotation struct {
	Name   string `json:"name"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Strand string `json:"strand,omitempty"`
	Color  string `json:"color,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// Sequence points a block at content in the sequence store.
type Sequence struct {
	MD5         string       `json:"md5,omitempty"`
	Length      int          `json:"length"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Block is a single design component.
type Block struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"projectId"`
	Metadata   Metadata        `json:"metadata"`
	Components []string        `json:"components"`
	Options    map[string]bool `json:"options,omitempty"`
	Rules      map[string]any  `json:"rules,omitempty"`
	Sequence   Sequence        `json:"sequence"`
	Notes      map[string]any  `json:"notes,omitempty"`
}

// BlockMap is a project's block manifest, keyed by block id.
type BlockMap map[string]*Block

// IDs returns the block ids in sorted order.
func (m BlockMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OrderStatus tracks an order after submission.
type OrderStatus struct {
	Foundry  string  `json:"foundry,omitempty"`
	RemoteID string  `json:"remoteId,omitempty"`
	Price    float64 `json:"price,omitempty"`
	TimeSent int64   `json:"timeSent,omitempty"`
}

// Order is a synthesis request against a saved project version.
type Order struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"projectId"`
	ProjectVersion string         `json:"projectVersion"`
	User           string         `json:"user"`
	Constructs     []string       `json:"constructs"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Metadata       Metadata       `json:"metadata"`
	Status         OrderStatus    `json:"status"`
}

// Rollup bundles a project with its blocks.
type Rollup struct {
	Project *Project `json:"project"`
	Blocks  BlockMap `json:"blocks"`
}

// NowMillis is the timestamp form used in documents.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// MergeAuthor appends userID to authors when it is not already present.
func MergeAuthor(authors []string, userID string) []string {
	if userID == "" {
		return authors
	}
	for _, a := range authors {
		if a == userID {
			return authors
		}
	}
	return append(authors, userID)
}

// ToMap converts a document to its generic JSON form.
func ToMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FromMap decodes a generic JSON form into v.
func FromMap(m map[string]any, v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Clone deep-copies a project through its JSON form.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	var out Project
	data, _ := json.Marshal(p)
	_ = json.Unmarshal(data, &out)
	return &out
}

// Clone deep-copies a block map through its JSON form.
func (m BlockMap) Clone() BlockMap {
	if m == nil {
		return nil
	}
	out := BlockMap{}
	data, _ := json.Marshal(m)
	_ = json.Unmarshal(data, &out)
	return out
}
