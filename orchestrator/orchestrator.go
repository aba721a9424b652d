// Package orchestrator composes the VCS backend, worktree registry, port
// allocator, and state directories behind one facade. It owns operation
// ordering and rollback; the packages underneath stay single-purpose.
package orchestrator

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mrowan/hutch/config"
	"github.com/mrowan/hutch/ports"
	"github.com/mrowan/hutch/registry"
	"github.com/mrowan/hutch/state"
	"github.com/mrowan/hutch/vcs"
)

// portsFile is the port registry document, kept under the ignored state
// root so it never reaches version control.
const portsFile = "ports.yaml"

// Orchestrator is the facade over one repository.
type Orchestrator struct {
	backend vcs.Backend
	cfg     *config.Config
	ports   *ports.Allocator
	state   *state.Manager
	logger  *log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger routes facade warnings.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithAllocator substitutes the port allocator. Used by tests.
func WithAllocator(alloc *ports.Allocator) Option {
	return func(o *Orchestrator) {
		o.ports = alloc
	}
}

// New builds the facade for the repository served by backend.
func New(backend vcs.Backend, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		backend: backend,
		cfg:     cfg,
		state:   state.NewManager(backend.RepoRoot()),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.state.EnsureRoot(); err != nil {
		return nil, err
	}
	if o.ports == nil {
		o.ports = ports.New(
			filepath.Join(o.state.Root(), portsFile),
			ports.WithBasePorts(cfg.Services),
			ports.WithRange(cfg.PortRange[0], cfg.PortRange[1]),
			ports.WithLockTimeout(time.Duration(cfg.LockTimeout)),
			ports.WithLogger(o.logger),
		)
	}
	return o, nil
}

// CreateRequest describes one worktree creation.
type CreateRequest struct {
	Name    string
	FromRef string
	// CheckoutExisting checks out an existing branch instead of creating
	// a new one named after the worktree.
	CheckoutExisting bool
	// Services to allocate ports for. Empty means every configured
	// service.
	Services []string
	// SparsePaths restricts the checkout when the backend supports it.
	SparsePaths []string
}

// CreateResult reports what a successful create produced.
type CreateResult struct {
	Worktree vcs.Worktree
	Ports    map[string]int
	StateDir string
}

// Create makes a worktree, records its parent link, sets up its state
// directory, and allocates its service ports. On a port allocation failure
// the workspace and state directory are rolled back so a failed create
// leaves nothing behind.
func (o *Orchestrator) Create(req CreateRequest) (*CreateResult, error) {
	if err := vcs.ValidateName(req.Name); err != nil {
		return nil, err
	}

	reg, err := registry.Load(o.backend)
	if err != nil {
		return nil, err
	}
	if _, exists := reg.Get(req.Name); exists {
		return nil, &vcs.ExistsError{Name: req.Name}
	}

	parent := ""
	if current, err := o.backend.CurrentWorkspace(); err == nil {
		parent = current.Name
	}
	if parent != "" && reg.WouldCycle(req.Name, parent) {
		return nil, fmt.Errorf("cannot create %q under %q: would form a cycle", req.Name, parent)
	}

	worktree, err := o.backend.CreateWorkspace(vcs.CreateOptions{
		Name:             req.Name,
		FromRef:          req.FromRef,
		CheckoutExisting: req.CheckoutExisting,
	})
	if err != nil {
		return nil, err
	}

	if parent != "" {
		if err := o.backend.SetParentLink(req.Name, parent); err != nil {
			o.rollbackCreate(req.Name)
			return nil, fmt.Errorf("recording parent link: %w", err)
		}
		worktree.Parent = parent
	}

	if len(req.SparsePaths) > 0 {
		if sparse, ok := o.backend.(vcs.SparseCheckouter); ok {
			if err := sparse.SetupSparseCheckout(worktree.Path, req.SparsePaths); err != nil {
				o.logger.Warn("sparse checkout failed, keeping full checkout", "worktree", req.Name, "err", err)
			}
		} else {
			o.logger.Warn("backend does not support sparse checkout, keeping full checkout",
				"vcs", o.backend.Type(), "worktree", req.Name)
		}
	}

	stateDir, err := o.state.Create(req.Name)
	if err != nil {
		o.rollbackCreate(req.Name)
		return nil, err
	}

	services := req.Services
	if len(services) == 0 {
		services = o.configuredServices()
	}
	allocated, err := o.ports.Allocate(req.Name, services)
	if err != nil {
		o.rollbackCreate(req.Name)
		return nil, err
	}

	return &CreateResult{Worktree: worktree, Ports: allocated, StateDir: stateDir}, nil
}

// rollbackCreate undoes a partially-created worktree. Failures here are
// logged, not returned: the original error is what the caller needs.
func (o *Orchestrator) rollbackCreate(name string) {
	o.logger.Warn("rolling back partially created worktree", "worktree", name)
	if err := o.backend.RemoveWorkspace(name, true); err != nil {
		o.logger.Error("rollback: removing workspace failed", "worktree", name, "err", err)
	}
	if err := o.state.Remove(name); err != nil {
		o.logger.Error("rollback: removing state directory failed", "worktree", name, "err", err)
	}
}

// Remove deletes the worktree matching query. Ports are released only
// after the backend confirms the workspace is gone, so a failed removal
// never strands a worktree without its reservations.
func (o *Orchestrator) Remove(query string, force bool) (string, error) {
	reg, err := registry.Load(o.backend)
	if err != nil {
		return "", err
	}
	name, err := reg.Resolve(query)
	if err != nil {
		return "", err
	}

	// Parent pointers are informational, not ownership: children keep a
	// dangling reference and the tree view promotes them to roots. Only
	// the backend itself can refuse a removal.
	if err := o.backend.RemoveWorkspace(name, force); err != nil {
		return "", err
	}
	if err := o.ports.Release(name); err != nil {
		return "", fmt.Errorf("workspace removed but releasing ports failed: %w", err)
	}
	if err := o.state.Remove(name); err != nil {
		return "", fmt.Errorf("workspace removed but cleaning state failed: %w", err)
	}
	return name, nil
}

// ResolveName maps a user-typed query to exactly one worktree name.
func (o *Orchestrator) ResolveName(query string) (string, error) {
	reg, err := registry.Load(o.backend)
	if err != nil {
		return "", err
	}
	return reg.Resolve(query)
}

// List returns every worktree the backend tracks.
func (o *Orchestrator) List() ([]vcs.Worktree, error) {
	reg, err := registry.Load(o.backend)
	if err != nil {
		return nil, err
	}
	return reg.Worktrees(), nil
}

// Tree returns the derived parent/child forest.
func (o *Orchestrator) Tree() (registry.Forest, error) {
	reg, err := registry.Load(o.backend)
	if err != nil {
		return registry.Forest{}, err
	}
	return reg.BuildTree(), nil
}

// Info is the detail view for one worktree.
type Info struct {
	Worktree vcs.Worktree
	Children []string
	Ports    []ports.Allocation
	StateDir string
}

// Info resolves query and gathers the worktree's relationships and
// reservations.
func (o *Orchestrator) Info(query string) (*Info, error) {
	reg, err := registry.Load(o.backend)
	if err != nil {
		return nil, err
	}
	name, err := reg.Resolve(query)
	if err != nil {
		return nil, err
	}
	worktree, _ := reg.Get(name)
	allocations, err := o.ports.List(name)
	if err != nil {
		return nil, err
	}
	return &Info{
		Worktree: worktree,
		Children: reg.ChildrenOf(name),
		Ports:    allocations,
		StateDir: o.state.Dir(name),
	}, nil
}

// PortAllocations lists reservations, for every worktree when query is
// empty.
func (o *Orchestrator) PortAllocations(query string) ([]ports.Allocation, error) {
	if query == "" {
		return o.ports.List("")
	}
	name, err := o.ResolveName(query)
	if err != nil {
		return nil, err
	}
	return o.ports.List(name)
}

// ReleasePorts drops every reservation held by the worktree matching
// query.
func (o *Orchestrator) ReleasePorts(query string) (string, error) {
	name, err := o.ResolveName(query)
	if err != nil {
		return "", err
	}
	return name, o.ports.Release(name)
}

// ReassignPort abandons the worktree's current port for one service and
// reserves a fresh one.
func (o *Orchestrator) ReassignPort(query, service string) (string, int, error) {
	name, err := o.ResolveName(query)
	if err != nil {
		return "", 0, err
	}
	port, err := o.ports.Reassign(name, service)
	if err != nil {
		return "", 0, err
	}
	return name, port, nil
}

// Prune removes state directories and port reservations left behind by
// worktrees that no longer exist, returning the names it cleaned up.
func (o *Orchestrator) Prune() ([]string, error) {
	reg, err := registry.Load(o.backend)
	if err != nil {
		return nil, err
	}
	live := reg.Names()

	cleaned, err := o.state.Clean(live)
	if err != nil {
		return nil, err
	}
	removed := make(map[string]bool, len(cleaned))
	for _, name := range cleaned {
		removed[name] = true
	}

	liveSet := make(map[string]bool, len(live))
	for _, name := range live {
		liveSet[name] = true
	}
	allocations, err := o.ports.List("")
	if err != nil {
		return nil, err
	}
	for _, rec := range allocations {
		if liveSet[rec.Worktree] {
			continue
		}
		removed[rec.Worktree] = true
		if err := o.ports.Release(rec.Worktree); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(removed))
	for name := range removed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (o *Orchestrator) configuredServices() []string {
	services := make([]string, 0, len(o.cfg.Services))
	for service := range o.cfg.Services {
		services = append(services, service)
	}
	sort.Strings(services)
	return services
}

// Backend exposes the underlying VCS backend for callers that need
// tool-specific details such as the repository root.
func (o *Orchestrator) Backend() vcs.Backend {
	return o.backend
}
