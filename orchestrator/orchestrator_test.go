package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mrowan/hutch/config"
	"github.com/mrowan/hutch/ports"
	"github.com/mrowan/hutch/registry"
	"github.com/mrowan/hutch/vcs"
)

// fakeBackend implements vcs.Backend in memory so facade ordering and
// rollback can be exercised without any VCS tool installed.
type fakeBackend struct {
	root      string
	worktrees map[string]vcs.Worktree
	parents   map[string]string
	current   string

	createErr error
	removeErr error
	parentErr error

	removed []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	return &fakeBackend{
		root:      t.TempDir(),
		worktrees: make(map[string]vcs.Worktree),
		parents:   make(map[string]string),
	}
}

func (f *fakeBackend) seed(name, parent string) {
	f.worktrees[name] = vcs.Worktree{
		Name: name,
		Path: filepath.Join(f.root, "trees", name),
	}
	if parent != "" {
		f.parents[name] = parent
	}
}

func (f *fakeBackend) Type() vcs.Type   { return vcs.TypeGit }
func (f *fakeBackend) RepoRoot() string { return f.root }

func (f *fakeBackend) CreateWorkspace(opts vcs.CreateOptions) (vcs.Worktree, error) {
	if f.createErr != nil {
		return vcs.Worktree{}, f.createErr
	}
	if _, ok := f.worktrees[opts.Name]; ok {
		return vcs.Worktree{}, &vcs.ExistsError{Name: opts.Name}
	}
	wt := vcs.Worktree{
		Name:           opts.Name,
		Path:           filepath.Join(f.root, "trees", opts.Name),
		BranchOrChange: opts.Name,
	}
	f.worktrees[opts.Name] = wt
	return wt, nil
}

func (f *fakeBackend) ListWorkspaces() ([]vcs.Worktree, error) {
	var out []vcs.Worktree
	for _, wt := range f.worktrees {
		wt.Parent = f.parents[wt.Name]
		out = append(out, wt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeBackend) RemoveWorkspace(name string, force bool) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.worktrees, name)
	delete(f.parents, name)
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeBackend) ParentLink(name string) (string, error) {
	return f.parents[name], nil
}

func (f *fakeBackend) SetParentLink(name, parent string) error {
	if f.parentErr != nil {
		return f.parentErr
	}
	f.parents[name] = parent
	return nil
}

func (f *fakeBackend) CurrentWorkspace() (vcs.Worktree, error) {
	if f.current == "" {
		return vcs.Worktree{}, vcs.ErrNotInRepository
	}
	return f.worktrees[f.current], nil
}

func (f *fakeBackend) CurrentBranchOrChange(path string) (string, error) {
	return "main", nil
}

func (f *fakeBackend) HasUncommittedChanges(path string) (bool, error) {
	return false, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Services = map[string]int{"app": 3000}
	cfg.LockTimeout = config.Duration(2 * time.Second)
	return cfg
}

func newOrchestrator(t *testing.T, backend *fakeBackend, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	o, err := New(backend, testConfig(), opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestCreateAllocatesPortsAndState(t *testing.T) {
	backend := newFakeBackend(t)
	o := newOrchestrator(t, backend)

	result, err := o.Create(CreateRequest{Name: "feature-auth"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Worktree.Name != "feature-auth" {
		t.Fatalf("unexpected worktree: %+v", result.Worktree)
	}
	if _, ok := result.Ports["app"]; !ok {
		t.Fatalf("no app port allocated: %v", result.Ports)
	}
	if info, err := os.Stat(result.StateDir); err != nil || !info.IsDir() {
		t.Fatalf("state directory missing: %v", err)
	}

	listed, err := o.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].Name != "feature-auth" {
		t.Fatalf("unexpected listing: %v", listed)
	}
}

func TestCreateRecordsParentFromCurrentWorkspace(t *testing.T) {
	backend := newFakeBackend(t)
	backend.seed("main", "")
	backend.current = "main"
	o := newOrchestrator(t, backend)

	result, err := o.Create(CreateRequest{Name: "feature-auth"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Worktree.Parent != "main" {
		t.Fatalf("expected parent main, got %q", result.Worktree.Parent)
	}
	if backend.parents["feature-auth"] != "main" {
		t.Fatalf("parent link not persisted: %v", backend.parents)
	}
}

func TestCreateRejectsInvalidName(t *testing.T) {
	o := newOrchestrator(t, newFakeBackend(t))
	if _, err := o.Create(CreateRequest{Name: "bad/name"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCreateExistingNameReportsAlreadyExists(t *testing.T) {
	backend := newFakeBackend(t)
	backend.seed("main", "")
	backend.seed("feature-auth", "main")
	backend.current = "feature-auth"
	o := newOrchestrator(t, backend)

	// "main" is an ancestor of the current worktree; the collision must
	// surface as AlreadyExists, not as a cycle refusal.
	_, err := o.Create(CreateRequest{Name: "main"})
	if !errors.Is(err, vcs.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateRefusesCyclicParentChain(t *testing.T) {
	backend := newFakeBackend(t)
	backend.seed("a", "b")
	backend.seed("b", "a")
	backend.current = "a"
	o := newOrchestrator(t, backend)

	if _, err := o.Create(CreateRequest{Name: "feature-auth"}); err == nil {
		t.Fatal("expected cycle refusal when attaching to a cyclic chain")
	}
	if _, ok := backend.worktrees["feature-auth"]; ok {
		t.Fatal("workspace must not be created when the cycle check fails")
	}
}

// exhaustedAllocator returns an allocator whose only candidate port is
// held open by the test, so every allocation fails.
func exhaustedAllocator(t *testing.T, dir string) *ports.Allocator {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	port := listener.Addr().(*net.TCPAddr).Port
	return ports.New(filepath.Join(dir, "ports.yaml"),
		ports.WithBasePorts(map[string]int{"app": port}),
		ports.WithRange(port, port),
		ports.WithLogger(quietLogger()),
	)
}

func TestCreateRollsBackOnPortFailure(t *testing.T) {
	backend := newFakeBackend(t)
	o := newOrchestrator(t, backend, WithAllocator(exhaustedAllocator(t, t.TempDir())))

	_, err := o.Create(CreateRequest{Name: "feature-auth"})
	if err == nil {
		t.Fatal("expected allocation failure")
	}
	if !errors.Is(err, ports.ErrRangeExhausted) {
		t.Fatalf("expected range exhaustion, got %v", err)
	}
	if _, ok := backend.worktrees["feature-auth"]; ok {
		t.Fatal("workspace not rolled back")
	}
	if _, err := os.Stat(filepath.Join(backend.root, ".hutch-state", "feature-auth")); !os.IsNotExist(err) {
		t.Fatalf("state directory not rolled back: %v", err)
	}
}

func TestCreateRollsBackOnParentLinkFailure(t *testing.T) {
	backend := newFakeBackend(t)
	backend.seed("main", "")
	backend.current = "main"
	backend.parentErr = fmt.Errorf("metadata store unavailable")
	o := newOrchestrator(t, backend)

	if _, err := o.Create(CreateRequest{Name: "feature-auth"}); err == nil {
		t.Fatal("expected parent link failure")
	}
	if _, ok := backend.worktrees["feature-auth"]; ok {
		t.Fatal("workspace not rolled back")
	}
}

func TestRemoveReleasesPortsAfterRemoval(t *testing.T) {
	backend := newFakeBackend(t)
	o := newOrchestrator(t, backend)

	if _, err := o.Create(CreateRequest{Name: "feature-auth"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	name, err := o.Remove("auth", false)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if name != "feature-auth" {
		t.Fatalf("resolved wrong worktree: %s", name)
	}

	allocations, err := o.PortAllocations("")
	if err != nil {
		t.Fatalf("list ports: %v", err)
	}
	if len(allocations) != 0 {
		t.Fatalf("ports not released: %v", allocations)
	}
}

func TestRemoveKeepsPortsWhenBackendFails(t *testing.T) {
	backend := newFakeBackend(t)
	o := newOrchestrator(t, backend)

	if _, err := o.Create(CreateRequest{Name: "feature-auth"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	backend.removeErr = fmt.Errorf("worktree is locked")
	if _, err := o.Remove("feature-auth", false); err == nil {
		t.Fatal("expected removal failure")
	}

	allocations, err := o.PortAllocations("feature-auth")
	if err != nil {
		t.Fatalf("list ports: %v", err)
	}
	if len(allocations) != 1 {
		t.Fatalf("ports must survive a failed removal, got %v", allocations)
	}
}

func TestRemoveParentLeavesDanglingReference(t *testing.T) {
	backend := newFakeBackend(t)
	backend.seed("feature-auth", "")
	backend.seed("fix-bug", "feature-auth")
	o := newOrchestrator(t, backend)

	name, err := o.Remove("feature-auth", false)
	if err != nil {
		t.Fatalf("removing a worktree with children must succeed: %v", err)
	}
	if name != "feature-auth" {
		t.Fatalf("resolved wrong worktree: %s", name)
	}

	// The child keeps its now-dangling parent pointer and the tree view
	// promotes it to a root.
	worktrees, err := o.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(worktrees) != 1 || worktrees[0].Name != "fix-bug" {
		t.Fatalf("unexpected survivors: %v", worktrees)
	}
	if worktrees[0].Parent != "feature-auth" {
		t.Fatalf("dangling parent pointer rewritten: %q", worktrees[0].Parent)
	}

	forest, err := o.Tree()
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if len(forest.Roots) != 1 || forest.Roots[0].Name != "fix-bug" {
		t.Fatalf("orphaned child not promoted to root: %+v", forest.Roots)
	}
}

func TestRemoveAmbiguousQueryFails(t *testing.T) {
	backend := newFakeBackend(t)
	backend.seed("feature-auth", "")
	backend.seed("feature-billing", "")
	o := newOrchestrator(t, backend)

	_, err := o.Remove("feat", false)
	if !errors.Is(err, registry.ErrAmbiguousMatch) {
		t.Fatalf("expected ambiguity, got %v", err)
	}
}

func TestInfoGathersRelationsAndPorts(t *testing.T) {
	backend := newFakeBackend(t)
	backend.seed("main", "")
	backend.current = "main"
	o := newOrchestrator(t, backend)

	if _, err := o.Create(CreateRequest{Name: "feature-auth"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	info, err := o.Info("main")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if len(info.Children) != 1 || info.Children[0] != "feature-auth" {
		t.Fatalf("unexpected children: %v", info.Children)
	}

	info, err = o.Info("auth")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Worktree.Parent != "main" {
		t.Fatalf("unexpected parent: %q", info.Worktree.Parent)
	}
	if len(info.Ports) != 1 || info.Ports[0].Service != "app" {
		t.Fatalf("unexpected ports: %v", info.Ports)
	}
}

func TestPruneCleansOrphans(t *testing.T) {
	backend := newFakeBackend(t)
	o := newOrchestrator(t, backend)

	if _, err := o.Create(CreateRequest{Name: "feature-auth"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := o.Create(CreateRequest{Name: "stale"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Drop the worktree behind the facade's back, stranding its state
	// directory and port reservation.
	delete(backend.worktrees, "stale")

	cleaned, err := o.Prune()
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(cleaned) != 1 || cleaned[0] != "stale" {
		t.Fatalf("unexpected prune result: %v", cleaned)
	}

	allocations, err := o.PortAllocations("")
	if err != nil {
		t.Fatalf("list ports: %v", err)
	}
	for _, rec := range allocations {
		if rec.Worktree == "stale" {
			t.Fatalf("stale allocation survived prune: %v", rec)
		}
	}
}

func TestReassignPortChangesReservation(t *testing.T) {
	backend := newFakeBackend(t)
	o := newOrchestrator(t, backend)

	result, err := o.Create(CreateRequest{Name: "feature-auth"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name, port, err := o.ReassignPort("auth", "app")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if name != "feature-auth" {
		t.Fatalf("resolved wrong worktree: %s", name)
	}
	if port == result.Ports["app"] {
		t.Fatalf("reassign kept port %d", port)
	}
}
