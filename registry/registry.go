// Package registry maintains an in-memory view of all worktrees derived
// from the active VCS backend, including the parent/child forest and
// deterministic fuzzy name resolution.
package registry

import (
	"sort"

	"github.com/mrowan/hutch/vcs"
)

// Registry is a point-in-time snapshot. It holds no persisted state of its
// own: the backend's bookkeeping is the source of truth and Load rebuilds
// the view from scratch every time.
type Registry struct {
	worktrees []vcs.Worktree
	byName    map[string]int
}

// Load rebuilds the registry by querying the backend.
func Load(backend vcs.Backend) (*Registry, error) {
	worktrees, err := backend.ListWorkspaces()
	if err != nil {
		return nil, err
	}
	return FromWorktrees(worktrees), nil
}

// FromWorktrees builds a registry from an already-materialized list.
func FromWorktrees(worktrees []vcs.Worktree) *Registry {
	byName := make(map[string]int, len(worktrees))
	for i, wt := range worktrees {
		byName[wt.Name] = i
	}
	return &Registry{worktrees: worktrees, byName: byName}
}

// Worktrees returns the snapshot's entries.
func (r *Registry) Worktrees() []vcs.Worktree {
	return r.worktrees
}

// Get looks up a worktree by exact name.
func (r *Registry) Get(name string) (vcs.Worktree, bool) {
	i, ok := r.byName[name]
	if !ok {
		return vcs.Worktree{}, false
	}
	return r.worktrees[i], true
}

// Names returns all worktree names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.worktrees))
	for _, wt := range r.worktrees {
		names = append(names, wt.Name)
	}
	sort.Strings(names)
	return names
}

// ChildrenOf returns the names of worktrees whose parent pointer names the
// given worktree. Dangling and cyclic parents are harmless here: the
// relation is computed by inverting pointers, not by following them.
func (r *Registry) ChildrenOf(name string) []string {
	var children []string
	for _, wt := range r.worktrees {
		if wt.Parent == name && wt.Name != name {
			children = append(children, wt.Name)
		}
	}
	sort.Strings(children)
	return children
}

// WouldCycle reports whether setting candidate's parent to parent would
// make candidate its own ancestor. Traversal is bounded by the worktree
// count so pre-existing cycles cannot hang it.
func (r *Registry) WouldCycle(candidate, parent string) bool {
	current := parent
	for steps := 0; steps <= len(r.worktrees); steps++ {
		if current == "" {
			return false
		}
		if current == candidate {
			return true
		}
		wt, ok := r.Get(current)
		if !ok {
			return false
		}
		current = wt.Parent
	}
	// Walked more links than there are worktrees: the chain itself is
	// cyclic, refuse to attach to it.
	return true
}

// Node is one worktree in the forest view.
type Node struct {
	Name     string
	Children []*Node
}

// Forest is the derived parent/child view. Worktrees with no parent, a
// dangling parent, or no acyclic path to a root each become a root.
type Forest struct {
	Roots []*Node
}

// BuildTree derives the forest. It tolerates dangling parents and cycles:
// any worktree not reachable from a root is promoted to an isolated root,
// and traversal visits each worktree at most once.
func (r *Registry) BuildTree() Forest {
	nodes := make(map[string]*Node, len(r.worktrees))
	for _, name := range r.Names() {
		nodes[name] = &Node{Name: name}
	}

	visited := make(map[string]bool, len(r.worktrees))
	var attach func(node *Node)
	attach = func(node *Node) {
		if visited[node.Name] {
			return
		}
		visited[node.Name] = true
		for _, child := range r.ChildrenOf(node.Name) {
			if visited[child] {
				continue
			}
			node.Children = append(node.Children, nodes[child])
			attach(nodes[child])
		}
	}

	var forest Forest
	for _, name := range r.Names() {
		wt, _ := r.Get(name)
		_, parentExists := r.Get(wt.Parent)
		if wt.Parent == "" || !parentExists || wt.Parent == name {
			forest.Roots = append(forest.Roots, nodes[name])
			attach(nodes[name])
		}
	}
	// Anything still unvisited sits on a cycle with no path to a root.
	for _, name := range r.Names() {
		if !visited[name] {
			forest.Roots = append(forest.Roots, nodes[name])
			attach(nodes[name])
		}
	}
	return forest
}
