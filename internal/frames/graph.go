// graph.go — Per-tab frame ancestry and frame/origin association.
// Populated incrementally from frame-attached, frame-navigated and
// target-attached events, which arrive in any order. A child may be recorded
// long before its parent is known; Resolve tolerates every missing link.
package frames

import (
	"sort"

	"github.com/brennhill/psat-core/internal/util"
)

// MaxDepth bounds ancestry walks. Real frame trees are far shallower.
const MaxDepth = 64

// Graph holds one tab's frame relationships. Not safe for concurrent use;
// the owning capture.Capture serializes access under its mutex.
type Graph struct {
	parents      map[string]string              // child frame id -> parent frame id
	targets      map[string]struct{}            // frames that are attached targets
	originFrames map[string]map[string]struct{} // origin -> frame ids observed there
	frameOrigin  map[string]string              // frame id -> last origin recorded
}

// NewGraph returns an empty frame graph.
func NewGraph() *Graph {
	return &Graph{
		parents:      make(map[string]string),
		targets:      make(map[string]struct{}),
		originFrames: make(map[string]map[string]struct{}),
		frameOrigin:  make(map[string]string),
	}
}

// RecordRelationship stores frameID's parent. Re-recording the same pair is
// a no-op; a later pair for the same child replaces the earlier parent.
// Returns true when the graph changed.
func (g *Graph) RecordRelationship(frameID, parentID string) bool {
	if frameID == "" || parentID == "" || frameID == parentID {
		return false
	}
	if cur, ok := g.parents[frameID]; ok && cur == parentID {
		return false
	}
	g.parents[frameID] = parentID
	return true
}

// Parent returns frameID's recorded parent.
func (g *Graph) Parent(frameID string) (string, bool) {
	p, ok := g.parents[frameID]
	return p, ok
}

// AddTarget marks frameID as a currently attached target.
func (g *Graph) AddTarget(frameID string) {
	if frameID == "" {
		return
	}
	g.targets[frameID] = struct{}{}
}

// RemoveTarget unmarks frameID. Its ancestry links are kept so that events
// still in flight can resolve through it.
func (g *Graph) RemoveTarget(frameID string) {
	delete(g.targets, frameID)
}

// IsTarget reports whether frameID is a currently attached target.
func (g *Graph) IsTarget(frameID string) bool {
	_, ok := g.targets[frameID]
	return ok
}

// Targets returns a copy of the known-target set.
func (g *Graph) Targets() map[string]struct{} {
	out := make(map[string]struct{}, len(g.targets))
	for id := range g.targets {
		out[id] = struct{}{}
	}
	return out
}

// Known reports whether the graph has any information about frameID.
// An unknown frame is one whose context has not arrived yet.
func (g *Graph) Known(frameID string) bool {
	if _, ok := g.targets[frameID]; ok {
		return true
	}
	if _, ok := g.parents[frameID]; ok {
		return true
	}
	_, ok := g.frameOrigin[frameID]
	return ok
}

// RecordURL associates frameID with the origin of rawURL. A frame that
// navigates to a new origin moves out of its previous origin set.
func (g *Graph) RecordURL(frameID, rawURL string) {
	if frameID == "" {
		return
	}
	origin := util.ExtractOrigin(rawURL)
	if origin == "" {
		return
	}
	if prev, ok := g.frameOrigin[frameID]; ok && prev != origin {
		if set := g.originFrames[prev]; set != nil {
			delete(set, frameID)
			if len(set) == 0 {
				delete(g.originFrames, prev)
			}
		}
	}
	set := g.originFrames[origin]
	if set == nil {
		set = make(map[string]struct{})
		g.originFrames[origin] = set
	}
	set[frameID] = struct{}{}
	g.frameOrigin[frameID] = origin
}

// OriginOf returns the last origin recorded for frameID.
func (g *Graph) OriginOf(frameID string) string {
	return g.frameOrigin[frameID]
}

// FrameOrigins returns origin -> sorted frame ids.
func (g *Graph) FrameOrigins() map[string][]string {
	out := make(map[string][]string, len(g.originFrames))
	for origin, set := range g.originFrames {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[origin] = ids
	}
	return out
}

// Resolve walks from frameID towards the root and returns the nearest frame
// (frameID included) that is a member of knownTargets. ok is false when a
// link is missing, when a cycle is detected, or when the walk exceeds
// MaxDepth; callers then treat the event as tab-level.
func (g *Graph) Resolve(frameID string, knownTargets map[string]struct{}) (string, bool) {
	visited := make(map[string]struct{}, 4)
	cur := frameID
	for depth := 0; depth <= MaxDepth; depth++ {
		if cur == "" {
			return "", false
		}
		if _, ok := knownTargets[cur]; ok {
			return cur, true
		}
		if _, seen := visited[cur]; seen {
			return "", false
		}
		visited[cur] = struct{}{}
		parent, ok := g.parents[cur]
		if !ok {
			return "", false
		}
		cur = parent
	}
	return "", false
}

// ResolveTarget resolves against the graph's own target set.
func (g *Graph) ResolveTarget(frameID string) (string, bool) {
	return g.Resolve(frameID, g.targets)
}

// Frontier follows frameID's ancestry to the first frame with no recorded
// parent and returns it. ok is false on a cycle or when the walk exceeds
// MaxDepth. A frontier that is neither a target nor navigated is a link whose
// context has not arrived yet.
func (g *Graph) Frontier(frameID string) (string, bool) {
	if frameID == "" {
		return "", false
	}
	visited := make(map[string]struct{}, 4)
	cur := frameID
	for depth := 0; depth <= MaxDepth; depth++ {
		if _, seen := visited[cur]; seen {
			return "", false
		}
		visited[cur] = struct{}{}
		parent, ok := g.parents[cur]
		if !ok {
			return cur, true
		}
		cur = parent
	}
	return "", false
}

// Anchored reports whether frameID is a target or has a recorded origin,
// i.e. it can terminate an ancestry chain legitimately.
func (g *Graph) Anchored(frameID string) bool {
	if _, ok := g.targets[frameID]; ok {
		return true
	}
	_, ok := g.frameOrigin[frameID]
	return ok
}
