// Package dag provides directed acyclic graph operations for table inheritance.
// Edges point from a master table to the tables that inherit from it.
// It supports reachability, cycle checks and hierarchy-level enumeration
// of masters and subtypes.
package dag

import (
	"fmt"
	"sort"
)

// Node represents a table in the inheritance graph.
type Node struct {
	// ID is the table OID
	ID int64
	// Name is the table name, used for deterministic ordering
	Name string
}

// Leveled is a node annotated with its distance from a starting node.
type Leveled struct {
	ID    int64
	Name  string
	Level int
}

// Graph represents the master/inheritor graph of tables.
type Graph struct {
	nodes      map[int64]*Node
	inheritors map[int64][]int64 // master -> inheritors
	masters    map[int64][]int64 // inheritor -> masters, in declaration order
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[int64]*Node),
		inheritors: make(map[int64][]int64),
		masters:    make(map[int64][]int64),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id int64, name string) {
	if n, exists := g.nodes[id]; exists {
		n.Name = name
		return
	}
	g.nodes[id] = &Node{ID: id, Name: name}
	g.inheritors[id] = []int64{}
	g.masters[id] = []int64{}
}

// AddEdge records that inheritorID inherits from masterID.
func (g *Graph) AddEdge(masterID, inheritorID int64) error {
	if _, exists := g.nodes[masterID]; !exists {
		return fmt.Errorf("master node %d does not exist", masterID)
	}
	if _, exists := g.nodes[inheritorID]; !exists {
		return fmt.Errorf("inheritor node %d does not exist", inheritorID)
	}
	if masterID == inheritorID {
		return fmt.Errorf("self-loop detected: %d", masterID)
	}

	if !contains(g.inheritors[masterID], inheritorID) {
		g.inheritors[masterID] = append(g.inheritors[masterID], inheritorID)
	}
	if !contains(g.masters[inheritorID], masterID) {
		g.masters[inheritorID] = append(g.masters[inheritorID], masterID)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id int64) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// Masters returns the direct masters of a node.
func (g *Graph) Masters(id int64) []int64 {
	return append([]int64(nil), g.masters[id]...)
}

// Inheritors returns the direct inheritors of a node.
func (g *Graph) Inheritors(id int64) []int64 {
	return append([]int64(nil), g.inheritors[id]...)
}

// GetAllNodes returns all nodes sorted by name, then ID.
func (g *Graph) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name != nodes[j].Name {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// Reaches reports whether to is reachable from `from` by following
// inheritor edges, i.e. whether `to` inherits from `from` directly or
// transitively. A node reaches itself.
func (g *Graph) Reaches(from, to int64) bool {
	if from == to {
		return true
	}
	visited := map[int64]bool{from: true}
	stack := []int64{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range g.inheritors[id] {
			if child == to {
				return true
			}
			if !visited[child] {
				visited[child] = true
				stack = append(stack, child)
			}
		}
	}
	return false
}

// CheckMasters reports the first master in masterIDs that would make the
// graph cyclic if id declared exactly that master list. The current masters
// of id are ignored since the list replaces them.
func (g *Graph) CheckMasters(id int64, masterIDs []int64) (int64, bool) {
	for _, m := range masterIDs {
		if g.Reaches(id, m) {
			return m, false
		}
	}
	return 0, true
}

// Descendants returns every node inheriting from id, directly or
// transitively, with Level set to the shortest inheritance distance.
// The result is ordered by level, then name.
func (g *Graph) Descendants(id int64) []Leveled {
	levels := map[int64]int{id: 0}
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range g.inheritors[cur] {
			if _, seen := levels[child]; seen {
				continue
			}
			levels[child] = levels[cur] + 1
			queue = append(queue, child)
		}
	}
	delete(levels, id)

	result := make([]Leveled, 0, len(levels))
	for nid, level := range levels {
		name := ""
		if n, ok := g.nodes[nid]; ok {
			name = n.Name
		}
		result = append(result, Leveled{ID: nid, Name: name, Level: level})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Level != result[j].Level {
			return result[i].Level < result[j].Level
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// DescendantsOrSelf returns id and every node inheriting from it.
func (g *Graph) DescendantsOrSelf(id int64) []int64 {
	ids := []int64{id}
	for _, d := range g.Descendants(id) {
		ids = append(ids, d.ID)
	}
	return ids
}

// AncestorsOrSelf returns id and every node it inherits from, ordered so
// that masters precede their inheritors; id is always last. Masters are
// visited in declaration order.
func (g *Graph) AncestorsOrSelf(id int64) []int64 {
	visited := make(map[int64]bool)
	var result []int64

	var visit func(n int64)
	visit = func(n int64) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, m := range g.masters[n] {
			visit(m)
		}
		result = append(result, n)
	}
	visit(id)
	return result
}

// Depth returns the length of the longest master chain above id.
// Root tables have depth 0.
func (g *Graph) Depth(id int64) int {
	memo := make(map[int64]int)
	var depth func(n int64, onPath map[int64]bool) int
	depth = func(n int64, onPath map[int64]bool) int {
		if d, ok := memo[n]; ok {
			return d
		}
		onPath[n] = true
		best := 0
		for _, m := range g.masters[n] {
			if onPath[m] {
				continue
			}
			if d := depth(m, onPath) + 1; d > best {
				best = d
			}
		}
		delete(onPath, n)
		memo[n] = best
		return best
	}
	return depth(id, make(map[int64]bool))
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []int64) {
	visited := make(map[int64]bool)
	recStack := make(map[int64]bool)
	path := make(map[int64]int64)

	var cyclePath []int64

	var dfs func(id int64) bool
	dfs = func(id int64) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.inheritors[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []int64{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]int64{curr}, cyclePath...)
				}
				cyclePath = append([]int64{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, node := range g.GetAllNodes() {
		if !visited[node.ID] {
			if dfs(node.ID) {
				return true, cyclePath
			}
		}
	}

	return false, nil
}

func contains(slice []int64, item int64) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
