package handler

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/listsource"
	"github.com/afpipeline/runtime/internal/memstore"
	"github.com/afpipeline/runtime/pkg/attribute"
)

func TestEliminateDuplicates(t *testing.T) {
	forest := attribute.NewForest(
		attribute.New("A", "x", attribute.New("C", "1")),
		attribute.New("A", "x", attribute.New("C", "1")),
		attribute.New("a", "x", attribute.New("C", "2")),
		attribute.New("B", "x"),
		attribute.New("A", "x", attribute.New("C", "1")),
	)
	h, err := NewEliminateDuplicatesFromConfig(EliminateDuplicatesConfig{})
	if err != nil {
		t.Fatalf("NewEliminateDuplicatesFromConfig() error = %v", err)
	}

	if err := h.Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got, want := texts(forest), []string{"A=x", "a=x", "B=x"}; !slices.Equal(got, want) {
		t.Errorf("roots = %v, want %v", got, want)
	}

	// idempotent
	if err := h.Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if forest.Len() != 3 {
		t.Errorf("second run left %d roots, want 3", forest.Len())
	}
}

func TestEliminateDuplicates_IgnoreChildren(t *testing.T) {
	forest := attribute.NewForest(
		attribute.New("A", "x", attribute.New("C", "1")),
		attribute.New("A", "x", attribute.New("C", "2")),
	)
	cfg, err := ParseEliminateDuplicatesConfig(map[string]interface{}{"ignoreChildren": true})
	if err != nil {
		t.Fatalf("ParseEliminateDuplicatesConfig() error = %v", err)
	}
	h, err := NewEliminateDuplicatesFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewEliminateDuplicatesFromConfig() error = %v", err)
	}

	if err := h.Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if forest.Len() != 1 {
		t.Fatalf("expected 1 root, got %d", forest.Len())
	}
	if got := forest.At(0).Children[0].Text(); got != "1" {
		t.Errorf("kept child = %q, want first occurrence %q", got, "1")
	}
}

func TestRemoveInvalidEntries(t *testing.T) {
	doc := document.New("doc-1", "in.tif")
	doc.RegisterValidator("digits", document.FormatValidatorFunc(func(s string) bool {
		for _, r := range s {
			if r < '0' || r > '9' {
				return false
			}
		}
		return s != ""
	}))

	bad := attribute.New("Zip", "12a")
	bad.Validator = "digits"
	good := attribute.New("Zip", "123")
	good.Validator = "digits"
	unknown := attribute.New("Zip", "zz")
	unknown.Validator = "nope"
	nestedBad := attribute.New("Zip", "x")
	nestedBad.Validator = "digits"
	plain := attribute.New("Name", "anything", nestedBad)

	forest := attribute.NewForest(bad, good, unknown, plain)
	if err := NewRemoveInvalidEntries().Process(context.Background(), forest, doc); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !slices.Equal(forest.Roots(), []*attribute.Attribute{good, unknown, plain}) {
		t.Errorf("roots = %v, want [Zip=123 Zip=zz Name=anything]", texts(forest))
	}
	if len(plain.Children) != 0 {
		t.Errorf("nested invalid entry not removed: %d children", len(plain.Children))
	}
}

func TestSelectUsingMajority(t *testing.T) {
	a := func(text string) *attribute.Attribute { return attribute.New("A", text) }
	tests := []struct {
		name  string
		roots []*attribute.Attribute
		want  []string
	}{
		{
			name:  "clear majority",
			roots: []*attribute.Attribute{a("x"), a("x"), a("y")},
			want:  []string{"A=x"},
		},
		{
			name:  "tie keeps every leader",
			roots: []*attribute.Attribute{a("x"), a("y")},
			want:  []string{"A=x", "A=y"},
		},
		{
			name:  "three way tie keeps first instance of each",
			roots: []*attribute.Attribute{a("x"), a("y"), a("z"), a("y"), a("x"), a("z")},
			want:  []string{"A=x", "A=y", "A=z"},
		},
		{
			name:  "three way tie drops lower count",
			roots: []*attribute.Attribute{a("w"), a("x"), a("y"), a("z"), a("z"), a("y"), a("x")},
			want:  []string{"A=x", "A=y", "A=z"},
		},
		{
			name:  "groups are independent",
			roots: []*attribute.Attribute{a("x"), attribute.New("B", "z"), attribute.New("a", "x"), a("q")},
			want:  []string{"A=x", "B=z"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forest := attribute.NewForest(tt.roots...)
			if err := NewSelectUsingMajority().Process(context.Background(), forest, nil); err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if got := texts(forest); !slices.Equal(got, tt.want) {
				t.Errorf("roots = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectUsingMajority_KeepsFirstInstance(t *testing.T) {
	firstY := attribute.New("A", "y")
	forest := attribute.NewForest(attribute.New("A", "x"), firstY, attribute.New("A", "y"), attribute.New("A", "x"))
	if err := NewSelectUsingMajority().Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if forest.Len() != 2 || forest.At(1) != firstY {
		t.Errorf("roots = %v, want first x and first y", texts(forest))
	}
}

func TestSelectOnlyUniqueValues(t *testing.T) {
	forest := attribute.NewForest(
		attribute.New("A", "x"),
		attribute.New("B", "1"),
		attribute.New("A", "x"),
		attribute.New("B", "2"),
		attribute.New("C", "solo"),
	)
	if err := NewSelectOnlyUniqueValues().Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got, want := texts(forest), []string{"A=x", "C=solo"}; !slices.Equal(got, want) {
		t.Errorf("roots = %v, want %v", got, want)
	}
}

func TestKeepAttributesInMemory(t *testing.T) {
	_, err := NewKeepAttributesInMemoryFromConfig(KeepAttributesInMemoryConfig{})
	if !errhandling.IsInvalidConfiguration(err) {
		t.Fatalf("expected invalid configuration for empty name, got %v", err)
	}

	store := memstore.New()
	h, err := NewKeepAttributesInMemoryFromConfig(KeepAttributesInMemoryConfig{Name: "saved", Store: store})
	if err != nil {
		t.Fatalf("NewKeepAttributesInMemoryFromConfig() error = %v", err)
	}

	forest := attribute.NewForest(attribute.New("A", "1"))
	if err := h.Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, ok := store.Get("saved")
	if !ok {
		t.Fatal("forest not stored under 'saved'")
	}
	forest.Append(attribute.New("B", "2"))
	if got.Len() != 2 {
		t.Errorf("stored forest has %d roots, want 2 (shared reference)", got.Len())
	}
}

func TestRemoveEntriesFromList_Static(t *testing.T) {
	h, err := NewRemoveEntriesFromListFromConfig(RemoveEntriesFromListConfig{Entries: []string{"N/A", "straße"}})
	if err != nil {
		t.Fatalf("NewRemoveEntriesFromListFromConfig() error = %v", err)
	}

	keep := attribute.New("Name", "Bob", attribute.New("Note", "n/a"))
	forest := attribute.NewForest(attribute.New("Name", "STRASSE"), keep, attribute.New("X", "N/A"))
	if err := h.Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !slices.Equal(forest.Roots(), []*attribute.Attribute{keep}) {
		t.Errorf("roots = %v, want [Name=Bob]", texts(forest))
	}
	if len(keep.Children) != 0 {
		t.Errorf("nested listed entry not removed: %d children", len(keep.Children))
	}
}

func TestRemoveEntriesFromList_CaseSensitive(t *testing.T) {
	h, err := NewRemoveEntriesFromListFromConfig(RemoveEntriesFromListConfig{Entries: []string{"N/A"}, CaseSensitive: true})
	if err != nil {
		t.Fatalf("NewRemoveEntriesFromListFromConfig() error = %v", err)
	}

	forest := attribute.NewForest(attribute.New("A", "n/a"), attribute.New("B", "N/A"))
	if err := h.Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got, want := texts(forest), []string{"A=n/a"}; !slices.Equal(got, want) {
		t.Errorf("roots = %v, want %v", got, want)
	}
}

func TestRemoveEntriesFromList_FileAndTags(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "acme.txt"), []byte("// blocked\nspam\n\njunk\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	lists := listsource.New()
	lists.BaseDir = dir
	h, err := NewRemoveEntriesFromListFromConfig(RemoveEntriesFromListConfig{
		Entries: []string{"file://<Vendor>.txt", "<SourceDocName>"},
		Lists:   lists,
	})
	if err != nil {
		t.Fatalf("NewRemoveEntriesFromListFromConfig() error = %v", err)
	}

	doc := document.New("doc-1", "in.tif")
	doc.SetTag("Vendor", "acme")
	forest := attribute.NewForest(
		attribute.New("A", "spam"),
		attribute.New("B", "keep"),
		attribute.New("C", "JUNK"),
		attribute.New("D", "in.tif"),
	)
	if err := h.Process(context.Background(), forest, doc); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got, want := texts(forest), []string{"B=keep"}; !slices.Equal(got, want) {
		t.Errorf("roots = %v, want %v", got, want)
	}
	if lists.Loads() != 1 {
		t.Errorf("Loads() = %d, want 1", lists.Loads())
	}

	if err := h.Process(context.Background(), attribute.NewForest(), doc); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if lists.Loads() != 1 {
		t.Errorf("Loads() = %d after second run, want 1 (cached per document)", lists.Loads())
	}
}

func TestRemoveEntriesFromList_MissingFile(t *testing.T) {
	lists := listsource.New()
	lists.BaseDir = t.TempDir()
	h, err := NewRemoveEntriesFromListFromConfig(RemoveEntriesFromListConfig{Entries: []string{"file://missing.txt"}, Lists: lists})
	if err != nil {
		t.Fatalf("NewRemoveEntriesFromListFromConfig() error = %v", err)
	}

	err = h.Process(context.Background(), attribute.NewForest(attribute.New("A", "x")), document.New("d", "s"))
	if err == nil {
		t.Fatal("expected error for missing list file")
	}
	if got := errhandling.GetErrorCategory(err); got != errhandling.CategoryIO {
		t.Errorf("category = %s, want %s", got, errhandling.CategoryIO)
	}
}

func TestParseRemoveEntriesFromListConfig_ListSettings(t *testing.T) {
	cfg, err := ParseRemoveEntriesFromListConfig(map[string]interface{}{"entries": []interface{}{"x"}})
	if err != nil {
		t.Fatalf("ParseRemoveEntriesFromListConfig() error = %v", err)
	}
	if cfg.Lists != nil {
		t.Error("expected shared cache without list settings")
	}

	dir := t.TempDir()
	cfg, err = ParseRemoveEntriesFromListConfig(map[string]interface{}{
		"entries": []interface{}{"file://l.txt"},
		"listDir": dir,
		"http": map[string]interface{}{
			"headers":   map[string]interface{}{"X-Doc": "{{doc.id}}"},
			"timeoutMs": 1000.0,
		},
	})
	if err != nil {
		t.Fatalf("ParseRemoveEntriesFromListConfig() error = %v", err)
	}
	if cfg.Lists == nil {
		t.Fatal("expected a dedicated list source")
	}
	if cfg.Lists.BaseDir != dir {
		t.Errorf("BaseDir = %q, want %q", cfg.Lists.BaseDir, dir)
	}
	if got := cfg.Lists.Headers["X-Doc"]; got != "{{doc.id}}" {
		t.Errorf("header X-Doc = %q, want %q", got, "{{doc.id}}")
	}

	_, err = ParseRemoveEntriesFromListConfig(map[string]interface{}{
		"entries": []interface{}{"x"},
		"http":    map[string]interface{}{"headers": map[string]interface{}{"X-Doc": "{{doc.id"}},
	})
	if !errhandling.IsInvalidConfiguration(err) {
		t.Errorf("expected invalid configuration for unterminated template, got %v", err)
	}
}

func TestMoveAndModify_ToRootDeletesEmptyAncestors(t *testing.T) {
	target := attribute.New("Target", "v")
	forest := attribute.NewForest(attribute.New("Root", "", attribute.New("Child", "", target)))

	h, err := NewMoveAndModifyFromConfig(MoveAndModifyConfig{Query: "Root/Child/Target", DeleteEmptyAncestors: true})
	if err != nil {
		t.Fatalf("NewMoveAndModifyFromConfig() error = %v", err)
	}
	if err := h.Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !slices.Equal(forest.Roots(), []*attribute.Attribute{target}) {
		t.Errorf("roots = %v, want [Target=v]", texts(forest))
	}
}

func TestMoveAndModify_KeepsRelocatedAncestors(t *testing.T) {
	inner := attribute.New("T", "inner")
	outer := attribute.New("T", "outer", inner)
	forest := attribute.NewForest(attribute.New("R", "", outer))

	h, err := NewMoveAndModifyFromConfig(MoveAndModifyConfig{Query: "*/T|*/T/T", DeleteEmptyAncestors: true})
	if err != nil {
		t.Fatalf("NewMoveAndModifyFromConfig() error = %v", err)
	}
	if err := h.Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !slices.Equal(forest.Roots(), []*attribute.Attribute{outer, inner}) {
		t.Errorf("roots = %v, want [T=outer T=inner]", texts(forest))
	}
	if len(outer.Children) != 0 {
		t.Errorf("outer T still has %d children", len(outer.Children))
	}
}

func TestMoveAndModify_ToParentRenamesAndRetypes(t *testing.T) {
	street := attribute.NewTyped("Street", "Line", "1 Main St")
	address := attribute.NewTyped("Address", "Billing", "", street)
	vendor := attribute.New("Vendor", "", address)
	forest := attribute.NewForest(vendor)

	h, err := NewMoveAndModifyFromConfig(MoveAndModifyConfig{
		Query:               "Vendor/Address/Street",
		MoveTo:              MoveToParent,
		NameMode:            NameRootOrParent,
		RetainType:          true,
		AddRootOrParentType: true,
		AddNameToType:       true,
	})
	if err != nil {
		t.Fatalf("NewMoveAndModifyFromConfig() error = %v", err)
	}
	if err := h.Process(context.Background(), forest, nil); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(vendor.Children) != 2 {
		t.Fatalf("Vendor has %d children, want 2", len(vendor.Children))
	}
	if vendor.Children[1] != street {
		t.Error("moved attribute is not appended to the grandparent")
	}
	if street.Name != "Address" {
		t.Errorf("Name = %q, want %q", street.Name, "Address")
	}
	if street.Type != "Line+Billing+Street" {
		t.Errorf("Type = %q, want %q", street.Type, "Line+Billing+Street")
	}
	if len(address.Children) != 0 {
		t.Errorf("Address still has %d children", len(address.Children))
	}
}

func TestMoveAndModify_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  MoveAndModifyConfig
	}{
		{"empty query", MoveAndModifyConfig{}},
		{"root query", MoveAndModifyConfig{Query: "A|B/C"}},
		{"bad moveTo", MoveAndModifyConfig{Query: "A/B", MoveTo: "sideways"}},
		{"bad name", MoveAndModifyConfig{Query: "A/B", NameMode: NameSpecified, SpecifiedName: "1bad"}},
		{"missing type", MoveAndModifyConfig{Query: "A/B", AddSpecifiedType: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMoveAndModifyFromConfig(tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errhandling.IsInvalidConfiguration(err) {
				t.Errorf("error = %v, want invalid configuration", err)
			}
		})
	}
}

func TestRemoveSubAttributes(t *testing.T) {
	allRoots := selectorFunc(func(f *attribute.Forest) []*attribute.Attribute { return f.Roots() })

	tests := []struct {
		name   string
		roots  []string
		config RemoveSubAttributesConfig
		want   []string
	}{
		{
			name:   "unconditional",
			roots:  []string{"1", "2"},
			config: RemoveSubAttributesConfig{Selector: allRoots},
			want:   []string{},
		},
		{
			name:  "fixed threshold",
			roots: []string{"a", "b", "c"},
			config: RemoveSubAttributesConfig{
				Selector:          allRoots,
				ConditionalRemove: true,
				Scorer:            scoreByText{"a": 20, "b": 70, "c": 40},
				Operator:          OpLess,
				Threshold:         50,
			},
			want: []string{"S=b"},
		},
		{
			name:  "relative to max keeps unscored",
			roots: []string{"a", "b", "?"},
			config: RemoveSubAttributesConfig{
				Selector:          allRoots,
				ConditionalRemove: true,
				Scorer:            scoreByText{"a": 20, "b": 70},
				Operator:          OpNotEqual,
				CompareTo:         CompareMax,
			},
			want: []string{"S=b", "S=?"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forest := attribute.NewForest()
			for _, text := range tt.roots {
				forest.Append(attribute.New("S", text))
			}
			h, err := NewRemoveSubAttributesFromConfig(tt.config)
			if err != nil {
				t.Fatalf("NewRemoveSubAttributesFromConfig() error = %v", err)
			}
			if err := h.Process(context.Background(), forest, nil); err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if got := texts(forest); !slices.Equal(got, tt.want) {
				t.Errorf("roots = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemoveSubAttributes_Errors(t *testing.T) {
	allRoots := selectorFunc(func(f *attribute.Forest) []*attribute.Attribute { return f.Roots() })

	h, err := NewRemoveSubAttributesFromConfig(RemoveSubAttributesConfig{})
	if err != nil {
		t.Fatalf("NewRemoveSubAttributesFromConfig() error = %v", err)
	}
	if err := h.Process(context.Background(), attribute.NewForest(), nil); !errhandling.IsNotConfigured(err) {
		t.Errorf("missing selector: error = %v, want not configured", err)
	}

	h, err = NewRemoveSubAttributesFromConfig(RemoveSubAttributesConfig{Selector: allRoots, ConditionalRemove: true})
	if err != nil {
		t.Fatalf("NewRemoveSubAttributesFromConfig() error = %v", err)
	}
	if err := h.Process(context.Background(), attribute.NewForest(), nil); !errhandling.IsNotConfigured(err) {
		t.Errorf("missing scorer: error = %v, want not configured", err)
	}

	_, err = NewRemoveSubAttributesFromConfig(RemoveSubAttributesConfig{ConditionalRemove: true, Threshold: 101})
	if !errhandling.IsInvalidConfiguration(err) {
		t.Errorf("threshold 101: error = %v, want invalid configuration", err)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		value, ref int
		op         string
		want       bool
	}{
		{5, 5, OpEqual, true},
		{4, 5, OpNotEqual, true},
		{4, 5, OpLess, true},
		{6, 5, OpGreater, true},
		{5, 5, OpLessEqual, true},
		{5, 5, OpGreaterEqual, true},
		{5, 5, OpGreater, false},
		{5, 5, "~", false},
	}
	for _, tt := range tests {
		if got := Compare(tt.value, tt.op, tt.ref); got != tt.want {
			t.Errorf("Compare(%d, %q, %d) = %v, want %v", tt.value, tt.op, tt.ref, got, tt.want)
		}
	}
}
