package model

import (
	"fmt"

	"genestore/internal/paths"
)

// Validator is the schema collaborator consulted before every write.
// A false result aborts the write with INVALID_MODEL.
type Validator interface {
	ValidateProject(p *Project) bool
	ValidateBlock(b *Block) bool
	ValidateOrder(o *Order) bool
}

// SchemaValidator checks document structure. The Check* methods report why
// a document was rejected.
type SchemaValidator struct{}

func (SchemaValidator) ValidateProject(p *Project) bool { return CheckProject(p) == nil }
func (SchemaValidator) ValidateBlock(b *Block) bool     { return CheckBlock(b) == nil }
func (SchemaValidator) ValidateOrder(o *Order) bool     { return CheckOrder(o) == nil }

// CheckProject validates a project document.
func CheckProject(p *Project) error {
	if p == nil {
		return fmt.Errorf("project is nil")
	}
	if err := paths.ValidateID(p.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if err := checkMetadata(&p.Metadata); err != nil {
		return err
	}
	return checkIDList("components", p.Components)
}

// CheckBlock validates a block document.
func CheckBlock(b *Block) error {
	if b == nil {
		return fmt.Errorf("block is nil")
	}
	if err := paths.ValidateID(b.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if b.ProjectID != "" {
		if err := paths.ValidateID(b.ProjectID); err != nil {
			return fmt.Errorf("projectId: %w", err)
		}
	}
	if err := checkMetadata(&b.Metadata); err != nil {
		return err
	}
	if err := checkIDList("components", b.Components); err != nil {
		return err
	}
	for _, c := range b.Components {
		if c == b.ID {
			return fmt.Errorf("block %s lists itself as a component", b.ID)
		}
	}
	return checkSequence(&b.Sequence)
}

// CheckOrder validates an order document.
func CheckOrder(o *Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}
	if err := paths.ValidateID(o.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if err := paths.ValidateID(o.ProjectID); err != nil {
		return fmt.Errorf("projectId: %w", err)
	}
	if o.ProjectVersion == "" {
		return fmt.Errorf("projectVersion is required")
	}
	if o.User == "" {
		return fmt.Errorf("user is required")
	}
	if len(o.Constructs) == 0 {
		return fmt.Errorf("at least one construct is required")
	}
	if err := checkIDList("constructs", o.Constructs); err != nil {
		return err
	}
	if o.Status.Price < 0 {
		return fmt.Errorf("status.price must not be negative")
	}
	return checkMetadata(&o.Metadata)
}

func checkMetadata(m *Metadata) error {
	for i, a := range m.Authors {
		if a == "" {
			return fmt.Errorf("metadata.authors[%d] is empty", i)
		}
	}
	if m.Created < 0 {
		return fmt.Errorf("metadata.created must not be negative")
	}
	return nil
}

func checkIDList(field string, ids []string) error {
	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("%s[%d] is empty", field, i)
		}
	}
	return nil
}

func checkSequence(s *Sequence) error {
	if s.Length < 0 {
		return fmt.Errorf("sequence.length must not be negative")
	}
	if s.MD5 != "" && !IsPseudoMD5(s.MD5) {
		return fmt.Errorf("sequence.md5 %q is not an md5", s.MD5)
	}
	for i, a := range s.Annotations {
		if a.Start < 0 || a.End < a.Start {
			return fmt.Errorf("sequence.annotations[%d] has invalid range %d..%d", i, a.Start, a.End)
		}
		if s.Length > 0 && a.End > s.Length {
			return fmt.Errorf("sequence.annotations[%d] ends past the sequence", i)
		}
		switch a.Strand {
		case "", "+", "-":
		default:
			return fmt.Errorf("sequence.annotations[%d] has invalid strand %q", i, a.Strand)
		}
	}
	return nil
}
