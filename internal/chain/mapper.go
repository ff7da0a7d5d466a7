// Package chain builds the exposure chain graph for one scan session.
//
// Each discovered exposure contributes up to five stage nodes
// (domain → load balancer → ingress → service → pod). Nodes are keyed by a
// content-derived ID, so feeding the same resource twice updates the existing
// node instead of duplicating it. The accumulated graph is a DAG: edges only
// run from an earlier stage to a later one.
//
// A Mapper is not safe for concurrent mutation. Use one Mapper per scan.
package chain

// Edge is a directed parent → child link.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the transport form of the accumulated graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Stats summarises the accumulated graph.
type Stats struct {
	TotalNodes  int            `json:"total_nodes"`
	TotalEdges  int            `json:"total_edges"`
	NodesByType map[string]int `json:"nodes_by_type"`
}

// Mapper accumulates chain nodes and edges across BuildFromExposure calls.
type Mapper struct {
	nodes    map[string]*Node
	order    []string            // node IDs in first-insertion order
	children map[string][]string // adjacency, in edge-insertion order
	inDegree map[string]int
	edges    []Edge
	edgeSet  map[Edge]struct{}
}

// NewMapper returns an empty Mapper.
func NewMapper() *Mapper {
	return &Mapper{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
		inDegree: make(map[string]int),
		edgeSet:  make(map[Edge]struct{}),
	}
}

// stageBuilders derive each stage from a record, in chain order.
var stageBuilders = []func(Record) (Node, bool){
	domainNode,
	loadBalancerNode,
	ingressNode,
	serviceNode,
	podNode,
}

// BuildFromExposure adds the stages present in r to the graph and links each
// one to the previous present stage. It returns the nodes derived from r.
func (m *Mapper) BuildFromExposure(r Record) []Node {
	var created []Node
	parent := ""
	for _, build := range stageBuilders {
		node, ok := build(r)
		if !ok {
			continue
		}
		m.upsert(node)
		if parent != "" {
			m.link(parent, node.ID)
		}
		created = append(created, clone(node))
		parent = node.ID
	}
	return created
}

func (m *Mapper) upsert(n Node) {
	if _, exists := m.nodes[n.ID]; !exists {
		m.order = append(m.order, n.ID)
	}
	stored := n
	m.nodes[n.ID] = &stored
}

func (m *Mapper) link(parent, child string) {
	e := Edge{Source: parent, Target: child}
	if _, exists := m.edgeSet[e]; exists {
		return
	}
	m.edgeSet[e] = struct{}{}
	m.edges = append(m.edges, e)
	m.children[parent] = append(m.children[parent], child)
	m.inDegree[child]++
}

// Node returns the node with the given ID.
func (m *Mapper) Node(id string) (Node, bool) {
	n, ok := m.nodes[id]
	if !ok {
		return Node{}, false
	}
	return clone(*n), true
}

// FullChains returns every path from a node with no parents to a node with
// no children. An isolated node is a chain of length one.
//
// The number of paths grows with the product of fan-out along the way. That
// is fine for a single scan's graph; very wide graphs should be queried per
// domain instead.
func (m *Mapper) FullChains() [][]Node {
	chains := [][]Node{}
	for _, id := range m.order {
		if m.inDegree[id] == 0 {
			chains = append(chains, m.pathsFrom(id)...)
		}
	}
	return chains
}

// ChainsForDomain returns the chains rooted at the given domain's node, or
// an empty slice when the domain was never seen.
func (m *Mapper) ChainsForDomain(domain string) [][]Node {
	id := "domain:" + domain
	if _, ok := m.nodes[id]; !ok {
		return [][]Node{}
	}
	return m.pathsFrom(id)
}

// pathsFrom walks depth-first from root and collects every simple path that
// ends in a leaf.
func (m *Mapper) pathsFrom(root string) [][]Node {
	var paths [][]Node
	onPath := make(map[string]bool)
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		if onPath[id] {
			return
		}
		onPath[id] = true
		stack = append(stack, id)

		kids := m.children[id]
		if len(kids) == 0 {
			path := make([]Node, len(stack))
			for i, nid := range stack {
				path[i] = clone(*m.nodes[nid])
			}
			paths = append(paths, path)
		}
		for _, kid := range kids {
			visit(kid)
		}

		stack = stack[:len(stack)-1]
		onPath[id] = false
	}
	visit(root)
	return paths
}

// Stats reports node and edge totals and a per-type node count.
func (m *Mapper) Stats() Stats {
	byType := make(map[string]int)
	for _, n := range m.nodes {
		byType[n.Type.String()]++
	}
	return Stats{
		TotalNodes:  len(m.nodes),
		TotalEdges:  len(m.edges),
		NodesByType: byType,
	}
}

// Snapshot returns the graph as plain data, nodes in insertion order.
func (m *Mapper) Snapshot() Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(m.order)),
		Edges: make([]Edge, len(m.edges)),
	}
	for _, id := range m.order {
		g.Nodes = append(g.Nodes, clone(*m.nodes[id]))
	}
	copy(g.Edges, m.edges)
	return g
}

// clone copies n with its own top-level metadata map.
func clone(n Node) Node {
	md := make(map[string]any, len(n.Metadata))
	for k, v := range n.Metadata {
		md[k] = v
	}
	n.Metadata = md
	return n
}
