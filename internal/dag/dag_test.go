package dag

import (
	"testing"
)

// buildItems creates: Items <- Weapons <- Swords, Items <- Armor, Gear <- Weapons.
func buildItems(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	g.AddNode(1, "Items")
	g.AddNode(2, "Weapons")
	g.AddNode(3, "Swords")
	g.AddNode(4, "Armor")
	g.AddNode(5, "Gear")
	for _, e := range [][2]int64{{1, 2}, {2, 3}, {1, 4}, {5, 2}} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("failed to add edge %v: %v", e, err)
		}
	}
	return g
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := NewGraph()

	g.AddNode(1, "a")
	g.AddNode(2, "b")
	g.AddNode(3, "c")

	if n := len(g.GetAllNodes()); n != 3 {
		t.Errorf("expected 3 nodes, got %d", n)
	}

	if err := g.AddEdge(1, 2); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	if err := g.AddEdge(2, 3); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// duplicate edges are ignored
	if err := g.AddEdge(2, 3); err != nil {
		t.Errorf("failed to add duplicate edge: %v", err)
	}

	if got := g.Inheritors(2); len(got) != 1 || got[0] != 3 {
		t.Errorf("expected inheritors [3], got %v", got)
	}
	if got := g.Masters(3); len(got) != 1 || got[0] != 2 {
		t.Errorf("expected masters [2], got %v", got)
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode(1, "a")

	if err := g.AddEdge(1, 99); err == nil {
		t.Error("expected error for nonexistent inheritor node")
	}
	if err := g.AddEdge(99, 1); err == nil {
		t.Error("expected error for nonexistent master node")
	}
}

func TestGraph_AddEdge_SelfLoop(t *testing.T) {
	g := NewGraph()
	g.AddNode(1, "a")

	if err := g.AddEdge(1, 1); err == nil {
		t.Error("expected error for self-loop")
	}
}

func TestGraph_MastersAndInheritors(t *testing.T) {
	g := buildItems(t)

	masters := g.Masters(2)
	if len(masters) != 2 || masters[0] != 1 || masters[1] != 5 {
		t.Errorf("expected Weapons masters [1 5], got %v", masters)
	}

	inheritors := g.Inheritors(1)
	if len(inheritors) != 2 {
		t.Errorf("expected Items to have 2 inheritors, got %v", inheritors)
	}
}

func TestGraph_Reaches(t *testing.T) {
	g := buildItems(t)

	tests := []struct {
		from, to int64
		want     bool
	}{
		{1, 1, true},
		{1, 2, true},
		{1, 3, true},
		{5, 3, true},
		{3, 1, false},
		{4, 3, false},
		{2, 4, false},
	}
	for _, tt := range tests {
		if got := g.Reaches(tt.from, tt.to); got != tt.want {
			t.Errorf("Reaches(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestGraph_CheckMasters(t *testing.T) {
	g := buildItems(t)

	tests := []struct {
		name      string
		id        int64
		masters   []int64
		wantOK    bool
		offending int64
	}{
		{"no masters", 1, nil, true, 0},
		{"self", 1, []int64{1}, false, 1},
		{"direct subtype", 1, []int64{2}, false, 2},
		{"transitive subtype", 1, []int64{3}, false, 3},
		{"sibling", 4, []int64{2}, true, 0},
		{"replacing existing masters", 2, []int64{4}, true, 0},
		{"second master cyclic", 5, []int64{4, 3}, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offending, ok := g.CheckMasters(tt.id, tt.masters)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if offending != tt.offending {
				t.Errorf("expected offending master %d, got %d", tt.offending, offending)
			}
		})
	}
}

func TestGraph_Descendants(t *testing.T) {
	g := buildItems(t)

	desc := g.Descendants(1)
	if len(desc) != 3 {
		t.Fatalf("expected 3 descendants, got %v", desc)
	}
	// level 1 sorted by name: Armor, Weapons; then Swords at level 2
	want := []Leveled{
		{ID: 4, Name: "Armor", Level: 1},
		{ID: 2, Name: "Weapons", Level: 1},
		{ID: 3, Name: "Swords", Level: 2},
	}
	for i, w := range want {
		if desc[i] != w {
			t.Errorf("descendant %d: expected %+v, got %+v", i, w, desc[i])
		}
	}

	if len(g.Descendants(3)) != 0 {
		t.Error("leaf table should have no descendants")
	}

	all := g.DescendantsOrSelf(5)
	if len(all) != 3 || all[0] != 5 {
		t.Errorf("expected Gear, Weapons, Swords; got %v", all)
	}
}

func TestGraph_AncestorsOrSelf(t *testing.T) {
	g := buildItems(t)

	got := g.AncestorsOrSelf(3)
	want := []int64{1, 5, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}

func TestGraph_Depth(t *testing.T) {
	g := buildItems(t)

	tests := map[int64]int{1: 0, 5: 0, 2: 1, 4: 1, 3: 2}
	for id, want := range tests {
		if got := g.Depth(id); got != want {
			t.Errorf("Depth(%d) = %d, want %d", id, got, want)
		}
	}
}

func TestGraph_HasCycle(t *testing.T) {
	g := buildItems(t)
	if hasCycle, _ := g.HasCycle(); hasCycle {
		t.Error("expected no cycle")
	}

	cyclic := NewGraph()
	cyclic.AddNode(1, "a")
	cyclic.AddNode(2, "b")
	cyclic.AddNode(3, "c")
	_ = cyclic.AddEdge(1, 2)
	_ = cyclic.AddEdge(2, 3)
	_ = cyclic.AddEdge(3, 1)

	hasCycle, path := cyclic.HasCycle()
	if !hasCycle {
		t.Fatal("expected cycle to be detected")
	}
	if len(path) < 3 {
		t.Errorf("expected cycle path with at least 3 nodes, got %v", path)
	}
}
