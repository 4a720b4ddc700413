// Package commitmsg builds and parses the structured commit messages that
// label project history, so history can be filtered by operation type.
//
// A message renders as
//
//	type(scope)
//
//	notes
//
//	details
//
//	Genestore-Meta: <base64 JSON of Message>
//
// The trailer carries the exact record; the readable sections are derived
// from it and are only parsed when the trailer is absent.
package commitmsg

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
)

// Type is an operation kind in the commit taxonomy.
type Type string

const (
	projectSuffix = "_project"
	blockSuffix   = "_block"
)

const (
	Save     Type = "save"
	Snapshot Type = "snapshot"
	Promote  Type = "promote"
	Sequence Type = "sequence"

	Create        Type = "create"
	CreateProject Type = Create + projectSuffix
	CreateBlock   Type = Create + blockSuffix

	Commit        Type = "commit"
	CommitProject Type = Commit + projectSuffix
	CommitBlock   Type = Commit + blockSuffix

	Delete        Type = "delete"
	DeleteProject Type = Delete + projectSuffix
	DeleteBlock   Type = Delete + blockSuffix
)

// TrailerKey prefixes the machine-readable trailer line.
const TrailerKey = "Genestore-Meta: "

// Message is the structured record behind a commit message.
type Message struct {
	Type    Type   `json:"type"`
	Scope   string `json:"scope"`
	Notes   string `json:"notes,omitempty"`
	Details string `json:"details,omitempty"`
}

// Base returns the operation without its target suffix: "create_block" -> "create".
func (t Type) Base() Type {
	s := string(t)
	s = strings.TrimSuffix(s, projectSuffix)
	s = strings.TrimSuffix(s, blockSuffix)
	return Type(s)
}

// String renders the human-readable part only.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(string(m.Type))
	b.WriteByte('(')
	b.WriteString(m.Scope)
	b.WriteByte(')')
	if m.Notes != "" {
		b.WriteString("\n\n")
		b.WriteString(m.Notes)
	}
	if m.Details != "" {
		b.WriteString("\n\n")
		b.WriteString(m.Details)
	}
	return b.String()
}

// Encode renders the message with its metadata trailer.
func (m Message) Encode() string {
	meta, _ := json.Marshal(m)
	return m.String() + "\n\n" + TrailerKey + base64.StdEncoding.EncodeToString(meta)
}

var headerRe = regexp.MustCompile(`^(\w+)\((.+?)\)$`)

// Parse recovers a Message from commit text. The trailer is authoritative;
// without one the header and blank-line separated sections are used. ok is
// false when neither yields a type and scope.
func Parse(text string) (Message, bool) {
	text = strings.TrimRight(text, "\n")

	if i := strings.LastIndex(text, TrailerKey); i >= 0 && (i == 0 || text[i-1] == '\n') {
		raw := strings.TrimSpace(text[i+len(TrailerKey):])
		if data, err := base64.StdEncoding.DecodeString(raw); err == nil {
			var m Message
			if json.Unmarshal(data, &m) == nil && m.Type != "" {
				return m, true
			}
		}
		text = strings.TrimRight(text[:i], "\n")
	}

	sections := strings.SplitN(text, "\n\n", 3)
	match := headerRe.FindStringSubmatch(strings.TrimSpace(sections[0]))
	if match == nil {
		return Message{}, false
	}
	m := Message{Type: Type(match[1]), Scope: match[2]}
	if len(sections) > 1 {
		m.Notes = sections[1]
	}
	if len(sections) > 2 {
		m.Details = sections[2]
	}
	return m, true
}

// Project is the default message for a project commit.
func Project(projectID, notes string) Message {
	return Message{Type: CommitProject, Scope: projectID, Notes: notes}
}

// Block is the default message for a block commit.
func Block(blockID, notes string) Message {
	return Message{Type: CommitBlock, Scope: blockID, Notes: notes}
}

// SaveMessage labels an autosave.
func SaveMessage(projectID, notes string) Message {
	return Message{Type: Save, Scope: projectID, Notes: notes}
}

// SnapshotMessage labels an explicit, user-visible checkpoint.
func SnapshotMessage(projectID, notes string) Message {
	return Message{Type: Snapshot, Scope: projectID, Notes: notes}
}

func CreateProjectMessage(projectID string) Message {
	return Message{Type: CreateProject, Scope: projectID}
}

func DeleteProjectMessage(projectID string) Message {
	return Message{Type: DeleteProject, Scope: projectID}
}

func DeleteBlockMessage(blockID string) Message {
	return Message{Type: DeleteBlock, Scope: blockID}
}
