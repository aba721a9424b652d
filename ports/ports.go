// Package ports owns the persistent port registry: per-worktree,
// per-service TCP port reservations that survive concurrent invocations of
// the tool and never collide with each other or with live listeners.
package ports

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/mrowan/hutch/lockfile"
)

const documentVersion = 1

// ErrRangeExhausted means no bindable port remained below the configured
// upper bound for some service.
var ErrRangeExhausted = errors.New("port range exhausted")

// RangeExhaustedError names the service that ran out and the scanned range.
type RangeExhaustedError struct {
	Service string
	Lo, Hi  int
}

func (e *RangeExhaustedError) Error() string {
	return fmt.Sprintf("no available port for service %q in range %d-%d", e.Service, e.Lo, e.Hi)
}

func (e *RangeExhaustedError) Is(target error) bool {
	return target == ErrRangeExhausted
}

// Allocation is one (worktree, service, port) reservation.
type Allocation struct {
	Worktree string `yaml:"worktree"`
	Service  string `yaml:"service"`
	Port     int    `yaml:"port"`
}

// document is the whole persisted registry state.
type document struct {
	Version       int            `yaml:"version"`
	Allocations   []Allocation   `yaml:"allocations"`
	NextCandidate map[string]int `yaml:"nextCandidate,omitempty"`
}

// Allocator reserves ports against the on-disk registry document. Every
// mutating call re-reads the document under an exclusive file lock, applies
// the change, and writes the whole document back atomically; nothing is
// trusted across calls.
type Allocator struct {
	path        string
	lockTimeout time.Duration
	basePorts   map[string]int
	rangeLo     int
	rangeHi     int
	logger      *log.Logger

	// bindProbe is swappable so tests can simulate externally-bound ports.
	bindProbe func(port int) bool
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithBasePorts sets per-service starting ports.
func WithBasePorts(base map[string]int) Option {
	return func(a *Allocator) {
		for service, port := range base {
			a.basePorts[service] = port
		}
	}
}

// WithRange bounds the scan. Used to force exhaustion in tests and to let
// projects carve out a narrower window.
func WithRange(lo, hi int) Option {
	return func(a *Allocator) {
		a.rangeLo, a.rangeHi = lo, hi
	}
}

// WithLockTimeout bounds how long a call waits for the registry lock.
func WithLockTimeout(d time.Duration) Option {
	return func(a *Allocator) {
		a.lockTimeout = d
	}
}

// WithLogger routes allocator warnings.
func WithLogger(logger *log.Logger) Option {
	return func(a *Allocator) {
		a.logger = logger
	}
}

func withBindProbe(probe func(int) bool) Option {
	return func(a *Allocator) {
		a.bindProbe = probe
	}
}

// New builds an allocator persisting to the registry document at path.
func New(path string, opts ...Option) *Allocator {
	a := &Allocator{
		path:        path,
		lockTimeout: 5 * time.Second,
		basePorts: map[string]int{
			"app":      3000,
			"postgres": 5432,
			"redis":    6379,
		},
		rangeLo:   3000,
		rangeHi:   9999,
		logger:    log.Default(),
		bindProbe: bindable,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// bindable reports whether a momentary exclusive bind on the loopback
// interface succeeds. The listener is closed immediately; the registry
// entry is what holds the reservation.
func bindable(port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// Allocate reserves one port per requested service for the worktree.
// Services the worktree already holds keep their existing port. The call
// is transactional: either every missing service gets a unique bindable
// port and the document is durably saved, or the document is unchanged.
func (a *Allocator) Allocate(worktree string, services []string) (map[string]int, error) {
	result := make(map[string]int)
	err := a.mutate(func(doc *document) error {
		used := usedPorts(doc)
		existing := make(map[string]int)
		for _, rec := range doc.Allocations {
			if rec.Worktree == worktree {
				existing[rec.Service] = rec.Port
			}
		}
		for _, service := range services {
			if port, ok := existing[service]; ok {
				result[service] = port
				continue
			}
			port, err := a.nextPort(doc, used, service)
			if err != nil {
				return err
			}
			used[port] = true
			doc.Allocations = append(doc.Allocations, Allocation{
				Worktree: worktree,
				Service:  service,
				Port:     port,
			})
			result[service] = port
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Release drops every reservation held by the worktree. Releasing a
// worktree with no reservations is a no-op.
func (a *Allocator) Release(worktree string) error {
	return a.mutate(func(doc *document) error {
		kept := doc.Allocations[:0]
		for _, rec := range doc.Allocations {
			if rec.Worktree != worktree {
				kept = append(kept, rec)
			}
		}
		doc.Allocations = kept
		return nil
	})
}

// Reassign abandons the worktree's current port for one service and
// reserves a fresh one, used to escape a conflict discovered after the
// fact.
func (a *Allocator) Reassign(worktree, service string) (int, error) {
	var newPort int
	err := a.mutate(func(doc *document) error {
		kept := doc.Allocations[:0]
		for _, rec := range doc.Allocations {
			if rec.Worktree == worktree && rec.Service == service {
				continue
			}
			kept = append(kept, rec)
		}
		doc.Allocations = kept

		used := usedPorts(doc)
		port, err := a.nextPort(doc, used, service)
		if err != nil {
			return err
		}
		doc.Allocations = append(doc.Allocations, Allocation{
			Worktree: worktree,
			Service:  service,
			Port:     port,
		})
		newPort = port
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newPort, nil
}

// List returns current reservations, filtered to one worktree when the
// argument is non-empty.
func (a *Allocator) List(worktree string) ([]Allocation, error) {
	var out []Allocation
	err := a.read(func(doc *document) {
		for _, rec := range doc.Allocations {
			if worktree == "" || rec.Worktree == worktree {
				out = append(out, rec)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Worktree != out[j].Worktree {
			return out[i].Worktree < out[j].Worktree
		}
		return out[i].Service < out[j].Service
	})
	return out, nil
}

// nextPort scans upward from the larger of the service's base port and its
// remembered cursor, skipping ports the registry already holds and ports
// some other process has bound.
func (a *Allocator) nextPort(doc *document, used map[int]bool, service string) (int, error) {
	start := a.basePorts[service]
	if start == 0 {
		start = a.rangeLo
	}
	if doc.NextCandidate != nil && doc.NextCandidate[service] > start {
		start = doc.NextCandidate[service]
	}
	for port := start; port <= a.rangeHi; port++ {
		if used[port] {
			continue
		}
		if !a.bindProbe(port) {
			a.logger.Warn("port in use by another process, skipping", "service", service, "port", port)
			continue
		}
		if doc.NextCandidate == nil {
			doc.NextCandidate = make(map[string]int)
		}
		doc.NextCandidate[service] = port + 1
		return port, nil
	}
	return 0, &RangeExhaustedError{Service: service, Lo: start, Hi: a.rangeHi}
}

func usedPorts(doc *document) map[int]bool {
	used := make(map[int]bool, len(doc.Allocations))
	for _, rec := range doc.Allocations {
		used[rec.Port] = true
	}
	return used
}

// mutate runs body against the freshly-read document under the exclusive
// registry lock and persists the result atomically. A body error aborts
// the write, leaving the on-disk document untouched.
func (a *Allocator) mutate(body func(doc *document) error) error {
	return lockfile.WithLock(a.path, a.lockTimeout, func(current []byte) ([]byte, error) {
		doc := a.parse(current)
		if err := body(doc); err != nil {
			return nil, err
		}
		doc.Version = documentVersion
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding port registry: %w", err)
		}
		return out, nil
	})
}

func (a *Allocator) read(body func(doc *document)) error {
	return lockfile.WithLock(a.path, a.lockTimeout, func(current []byte) ([]byte, error) {
		body(a.parse(current))
		return nil, nil
	})
}

// parse decodes the on-disk document. Unparseable bytes reset the registry
// to empty: the allocator must always be able to make forward progress,
// even after external corruption.
func (a *Allocator) parse(data []byte) *document {
	doc := &document{Version: documentVersion}
	if len(data) == 0 {
		return doc
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		a.logger.Warn("port registry is corrupt, resetting to empty", "path", a.path, "err", err)
		return &document{Version: documentVersion}
	}
	if doc.Version == 0 {
		doc.Version = documentVersion
	}
	return doc
}
