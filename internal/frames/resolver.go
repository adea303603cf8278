// resolver.go — Tab-scoped frame association resolver.
package frames

// Resolver owns one Graph per tab.
type Resolver struct {
	graphs map[int]*Graph
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{graphs: make(map[int]*Graph)}
}

// Graph returns tabID's graph, creating it on first use.
func (r *Resolver) Graph(tabID int) *Graph {
	g := r.graphs[tabID]
	if g == nil {
		g = NewGraph()
		r.graphs[tabID] = g
	}
	return g
}

// Lookup returns tabID's graph without creating it.
func (r *Resolver) Lookup(tabID int) (*Graph, bool) {
	g, ok := r.graphs[tabID]
	return g, ok
}

// RecordFrameRelationship stores a parent/child pair for tabID.
func (r *Resolver) RecordFrameRelationship(tabID int, frameID, parentID string) bool {
	return r.Graph(tabID).RecordRelationship(frameID, parentID)
}

// ResolveAncestorFrame returns the nearest ancestor of frameID (inclusive)
// in knownTargets. A tab with no graph resolves nothing.
func (r *Resolver) ResolveAncestorFrame(tabID int, frameID string, knownTargets map[string]struct{}) (string, bool) {
	g, ok := r.graphs[tabID]
	if !ok {
		if _, known := knownTargets[frameID]; known && frameID != "" {
			return frameID, true
		}
		return "", false
	}
	return g.Resolve(frameID, knownTargets)
}

// DropTab forgets every frame of tabID.
func (r *Resolver) DropTab(tabID int) {
	delete(r.graphs, tabID)
}

// Reset replaces tabID's graph with an empty one.
func (r *Resolver) Reset(tabID int) {
	r.graphs[tabID] = NewGraph()
}

// Has reports whether tabID has a graph.
func (r *Resolver) Has(tabID int) bool {
	_, ok := r.graphs[tabID]
	return ok
}

// Clear drops every tab.
func (r *Resolver) Clear() {
	r.graphs = make(map[int]*Graph)
}
