// Package graph builds resolved views over graph documents and checks
// them for structural problems. The compiler and the validator share
// the same contraction: loop groups collapse to a single vertex, tool
// nodes attach to agents and never appear on the control path.
package graph

import (
	"sort"

	"github.com/minseok/weft/internal/weft"
)

// Index is a resolved view over a document: nodes by id, declaration
// order, loop group membership, and the contracted control graph.
// Duplicate node ids keep the first declaration.
type Index struct {
	Doc     weft.GraphDocument
	Nodes   map[string]weft.Node
	Order   map[string]int
	Members map[string][]string
}

func BuildIndex(doc weft.GraphDocument) *Index {
	ix := &Index{
		Doc:     doc,
		Nodes:   make(map[string]weft.Node, len(doc.Nodes)),
		Order:   make(map[string]int, len(doc.Nodes)),
		Members: make(map[string][]string),
	}
	for i, n := range doc.Nodes {
		if _, dup := ix.Nodes[n.ID]; dup {
			continue
		}
		ix.Nodes[n.ID] = n
		ix.Order[n.ID] = i
	}
	for _, n := range doc.Nodes {
		if n.ParentID == "" || n.ParentID == n.ID {
			continue
		}
		if g, ok := ix.Nodes[n.ParentID]; ok && g.Type == weft.NodeTypeLoopGroup {
			ix.Members[n.ParentID] = append(ix.Members[n.ParentID], n.ID)
		}
	}
	return ix
}

// Vertex maps a node id to its contracted vertex. Members collapse into
// their group; tool nodes have no vertex.
func (ix *Index) Vertex(id string) (string, bool) {
	n, ok := ix.Nodes[id]
	if !ok {
		return "", false
	}
	if n.Type == weft.NodeTypeTool {
		return "", false
	}
	if n.ParentID != "" && n.ParentID != n.ID {
		if g, ok := ix.Nodes[n.ParentID]; ok && g.Type == weft.NodeTypeLoopGroup {
			return n.ParentID, true
		}
	}
	return id, true
}

// Vertices returns the contracted vertex ids, one per vertex, ordered
// by first appearance in the node list.
func (ix *Index) Vertices() []string {
	var vs []string
	seen := make(map[string]bool)
	for _, n := range ix.Doc.Nodes {
		v, ok := ix.Vertex(n.ID)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		vs = append(vs, v)
	}
	return vs
}

// ControlEdges returns contracted (source, target) vertex pairs in edge
// declaration order. Edges with unknown endpoints, tool edges, and
// edges that contract to a self-loop are skipped.
func (ix *Index) ControlEdges() [][2]string {
	var pairs [][2]string
	for _, e := range ix.Doc.Edges {
		sv, ok := ix.Vertex(e.Source)
		if !ok {
			continue
		}
		tv, ok := ix.Vertex(e.Target)
		if !ok || sv == tv {
			continue
		}
		pairs = append(pairs, [2]string{sv, tv})
	}
	return pairs
}

// AgentToolIDs returns the tool node ids bound to an agent: the agent's
// tools list first, then sources of incoming tool edges, deduplicated
// in encounter order. Unknown or non-tool references from the tools
// list are kept so the validator can flag them.
func (ix *Index) AgentToolIDs(agentID string) []string {
	agent, ok := ix.Nodes[agentID]
	if !ok || agent.Type != weft.NodeTypeAgent {
		return nil
	}
	var ids []string
	seen := make(map[string]bool)
	for _, id := range agent.Tools {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	for _, e := range ix.Doc.Edges {
		if e.Target != agentID || seen[e.Source] {
			continue
		}
		if src, ok := ix.Nodes[e.Source]; ok && src.Type == weft.NodeTypeTool {
			seen[e.Source] = true
			ids = append(ids, e.Source)
		}
	}
	return ids
}

// UsedToolIDs returns the set of tool node ids referenced by any agent.
func (ix *Index) UsedToolIDs() map[string]bool {
	used := make(map[string]bool)
	for _, n := range ix.Doc.Nodes {
		if n.Type != weft.NodeTypeAgent {
			continue
		}
		for _, id := range ix.AgentToolIDs(n.ID) {
			used[id] = true
		}
	}
	return used
}

func (ix *Index) sortByOrder(vs []string) {
	sort.Slice(vs, func(i, j int) bool { return ix.Order[vs[i]] < ix.Order[vs[j]] })
}

// TopoOrder returns the contracted vertices in topological order, ties
// broken by node declaration order. The second result lists vertices
// stuck in cycles and is empty for acyclic graphs.
func (ix *Index) TopoOrder() ([]string, []string) {
	vertices := ix.Vertices()
	indeg := make(map[string]int, len(vertices))
	adj := make(map[string][]string)
	for _, v := range vertices {
		indeg[v] = 0
	}
	for _, p := range ix.ControlEdges() {
		adj[p[0]] = append(adj[p[0]], p[1])
		indeg[p[1]]++
	}

	var queue []string
	for _, v := range vertices {
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}
	ix.sortByOrder(queue)

	order := make([]string, 0, len(vertices))
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, w := range adj[v] {
			indeg[w]--
			if indeg[w] == 0 {
				queue = append(queue, w)
			}
		}
		ix.sortByOrder(queue)
	}
	if len(order) == len(vertices) {
		return order, nil
	}

	placed := make(map[string]bool, len(order))
	for _, v := range order {
		placed[v] = true
	}
	var cyclic []string
	for _, v := range vertices {
		if !placed[v] {
			cyclic = append(cyclic, v)
		}
	}
	ix.sortByOrder(cyclic)
	return order, cyclic
}

// MemberOrder returns a group's member nodes (tools excluded) in
// topological order over intra-group edges, declaration ties first.
func (ix *Index) MemberOrder(groupID string) ([]string, []string) {
	var members []string
	isMember := make(map[string]bool)
	for _, id := range ix.Members[groupID] {
		if n := ix.Nodes[id]; n.Type == weft.NodeTypeTool {
			continue
		}
		members = append(members, id)
		isMember[id] = true
	}

	indeg := make(map[string]int, len(members))
	adj := make(map[string][]string)
	for _, id := range members {
		indeg[id] = 0
	}
	for _, e := range ix.Doc.Edges {
		if !isMember[e.Source] || !isMember[e.Target] || e.Source == e.Target {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
		indeg[e.Target]++
	}

	var queue []string
	for _, id := range members {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	ix.sortByOrder(queue)

	order := make([]string, 0, len(members))
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, w := range adj[v] {
			indeg[w]--
			if indeg[w] == 0 {
				queue = append(queue, w)
			}
		}
		ix.sortByOrder(queue)
	}
	if len(order) == len(members) {
		return order, nil
	}
	placed := make(map[string]bool, len(order))
	for _, v := range order {
		placed[v] = true
	}
	var cyclic []string
	for _, id := range members {
		if !placed[id] {
			cyclic = append(cyclic, id)
		}
	}
	ix.sortByOrder(cyclic)
	return order, cyclic
}
