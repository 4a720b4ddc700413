package model

import (
	"strings"
	"testing"
)

func validProject() *Project {
	return &Project{
		ID:         "p1",
		Metadata:   Metadata{Name: "Plasmid", Authors: []string{"u1"}},
		Components: []string{"b1"},
	}
}

func validBlock() *Block {
	return &Block{
		ID:        "b1",
		ProjectID: "p1",
		Metadata:  Metadata{Name: "promoter"},
		Sequence: Sequence{
			MD5:         "0123456789abcdef0123456789abcdef",
			Length:      10,
			Annotations: []Annotation{{Name: "tata", Start: 2, End: 6, Strand: "+"}},
		},
	}
}

func validOrder() *Order {
	return &Order{
		ID:             "o1",
		ProjectID:      "p1",
		ProjectVersion: "abc",
		User:           "u1",
		Constructs:     []string{"b1"},
	}
}

func TestSchemaValidator_Project(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Project)
		valid  bool
	}{
		{"valid", func(*Project) {}, true},
		{"empty id", func(p *Project) { p.ID = "" }, false},
		{"path id", func(p *Project) { p.ID = "../x" }, false},
		{"empty author", func(p *Project) { p.Metadata.Authors = []string{""} }, false},
		{"empty component", func(p *Project) { p.Components = []string{"b1", ""} }, false},
		{"no components", func(p *Project) { p.Components = nil }, true},
	}

	v := SchemaValidator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProject()
			tt.mutate(p)
			if got := v.ValidateProject(p); got != tt.valid {
				t.Errorf("ValidateProject = %v, want %v (%v)", got, tt.valid, CheckProject(p))
			}
		})
	}
	if v.ValidateProject(nil) {
		t.Error("nil project should be invalid")
	}
}

func TestSchemaValidator_Block(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Block)
		valid  bool
	}{
		{"valid", func(*Block) {}, true},
		{"no project id", func(b *Block) { b.ProjectID = "" }, true},
		{"empty id", func(b *Block) { b.ID = "" }, false},
		{"self component", func(b *Block) { b.Components = []string{"b1"} }, false},
		{"negative length", func(b *Block) { b.Sequence.Length = -1 }, false},
		{"bad md5", func(b *Block) { b.Sequence.MD5 = "xyz" }, false},
		{"ranged md5", func(b *Block) { b.Sequence.MD5 = "0123456789ABCDEF0123456789abcdef[0:4]" }, true},
		{"inverted annotation", func(b *Block) { b.Sequence.Annotations[0].End = 1 }, false},
		{"annotation past end", func(b *Block) { b.Sequence.Annotations[0].End = 11 }, false},
		{"bad strand", func(b *Block) { b.Sequence.Annotations[0].Strand = "x" }, false},
	}

	v := SchemaValidator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBlock()
			tt.mutate(b)
			if got := v.ValidateBlock(b); got != tt.valid {
				t.Errorf("ValidateBlock = %v, want %v (%v)", got, tt.valid, CheckBlock(b))
			}
		})
	}
}

func TestSchemaValidator_Order(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Order)
		valid  bool
	}{
		{"valid", func(*Order) {}, true},
		{"no version", func(o *Order) { o.ProjectVersion = "" }, false},
		{"no user", func(o *Order) { o.User = "" }, false},
		{"no constructs", func(o *Order) { o.Constructs = nil }, false},
		{"negative price", func(o *Order) { o.Status.Price = -1 }, false},
	}

	v := SchemaValidator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOrder()
			tt.mutate(o)
			if got := v.ValidateOrder(o); got != tt.valid {
				t.Errorf("ValidateOrder = %v, want %v (%v)", got, tt.valid, CheckOrder(o))
			}
		})
	}
}

func TestMergeAuthor(t *testing.T) {
	got := MergeAuthor([]string{"u1"}, "u2")
	if strings.Join(got, ",") != "u1,u2" {
		t.Errorf("MergeAuthor = %v, want [u1 u2]", got)
	}
	got = MergeAuthor([]string{"u1", "u2"}, "u1")
	if strings.Join(got, ",") != "u1,u2" {
		t.Errorf("MergeAuthor duplicate = %v, want [u1 u2]", got)
	}
	if got := MergeAuthor(nil, "u1"); len(got) != 1 {
		t.Errorf("MergeAuthor(nil) = %v", got)
	}
}

func TestPseudoMD5(t *testing.T) {
	tests := []struct {
		in       string
		pseudo   bool
		strict   bool
		hasRange bool
	}{
		{"0123456789abcdef0123456789abcdef", true, true, false},
		{"0123456789ABCDEF0123456789abcdef", true, false, false},
		{"0123456789abcdef0123456789abcdef[2:5]", true, false, true},
		{"0123456789abcdef0123456789abcdef[5:2]", true, false, false},
		{"0123456789abcdef", false, false, false},
		{"zz23456789abcdef0123456789abcdef", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := IsPseudoMD5(tt.in); got != tt.pseudo {
				t.Errorf("IsPseudoMD5 = %v, want %v", got, tt.pseudo)
			}
			if got := IsStrictMD5(tt.in); got != tt.strict {
				t.Errorf("IsStrictMD5 = %v, want %v", got, tt.strict)
			}
			_, _, _, hasRange, _ := ParsePseudoMD5(tt.in)
			if hasRange != tt.hasRange {
				t.Errorf("hasRange = %v, want %v", hasRange, tt.hasRange)
			}
		})
	}
}

func TestMD5Hex(t *testing.T) {
	if got := MD5Hex("ACGT"); got != "f1f8f4bf413b16ad135722aa4591043e" {
		t.Errorf("MD5Hex(ACGT) = %s", got)
	}
}

func TestFingerprint_ContentEquality(t *testing.T) {
	a, b := validBlock(), validBlock()
	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, _ := Fingerprint(b)
	if fa != fb {
		t.Error("equal content must fingerprint equally regardless of identity")
	}

	b.Metadata.Name = "terminator"
	fb, _ = Fingerprint(b)
	if fa == fb {
		t.Error("changed content must change the fingerprint")
	}

	a.Rules = map[string]any{"z": 1, "a": 2}
	b = validBlock()
	b.Rules = map[string]any{"a": 2, "z": 1}
	fa, _ = Fingerprint(a)
	fb, _ = Fingerprint(b)
	if fa != fb {
		t.Error("map key order must not affect the fingerprint")
	}
}

func TestToMapFromMap(t *testing.T) {
	p := validProject()
	m, err := ToMap(p)
	if err != nil {
		t.Fatal(err)
	}
	m["metadata"].(map[string]any)["name"] = "renamed"

	var out Project
	if err := FromMap(m, &out); err != nil {
		t.Fatal(err)
	}
	if out.Metadata.Name != "renamed" || out.ID != "p1" {
		t.Errorf("FromMap = %+v", out)
	}
}

func TestClone_IsDeep(t *testing.T) {
	p := validProject()
	c := p.Clone()
	c.Components[0] = "changed"
	if p.Components[0] != "b1" {
		t.Error("Clone shares slices with the original")
	}

	blocks := BlockMap{"b1": validBlock()}
	cb := blocks.Clone()
	cb["b1"].Metadata.Name = "changed"
	if blocks["b1"].Metadata.Name != "promoter" {
		t.Error("BlockMap.Clone shares blocks with the original")
	}
}
