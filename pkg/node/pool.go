package node

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool is the registry of worker nodes. Reads dominate: selection runs on
// every play, while nodes are added or removed rarely. Safe for concurrent
// use.
type Pool struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{nodes: make(map[string]*Node)}
}

// Add registers n under its identifier, replacing any previous entry.
func (p *Pool) Add(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[n.Identifier()] = n
}

// Remove unregisters the node named identifier and returns it, or nil.
// The caller owns shutting the node down.
func (p *Pool) Remove(identifier string) *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.nodes[identifier]
	delete(p.nodes, identifier)
	return n
}

// Get returns the node named identifier, or nil.
func (p *Pool) Get(identifier string) *Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nodes[identifier]
}

// Has reports whether a node named identifier is registered.
func (p *Pool) Has(identifier string) bool { return p.Get(identifier) != nil }

// All returns every registered node in unspecified order.
func (p *Pool) All() []*Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, n)
	}
	return out
}

// Connected returns every node with an open WebSocket.
func (p *Pool) Connected() []*Node {
	var out []*Node
	for _, n := range p.All() {
		if n.Connected() {
			out = append(out, n)
		}
	}
	return out
}

// Size returns the number of registered nodes.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.nodes)
}

// ConnectedCount returns the number of connected nodes.
func (p *Pool) ConnectedCount() int { return len(p.Connected()) }

// PickLeastLoaded returns the connected node with the lowest load score.
func (p *Pool) PickLeastLoaded() (*Node, error) {
	candidates := p.Connected()
	if len(candidates) == 0 {
		return nil, ErrNoNodeAvailable
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score() < candidates[j].Score()
	})
	return candidates[0], nil
}

// PickRandom returns a uniformly random connected node.
func (p *Pool) PickRandom() (*Node, error) {
	candidates := p.Connected()
	if len(candidates) == 0 {
		return nil, ErrNoNodeAvailable
	}
	return candidates[rand.Intn(len(candidates))], nil
}

// PickByRegion returns the least-loaded connected node whose region
// matches exactly, falling back to the overall least-loaded node.
func (p *Pool) PickByRegion(region string) (*Node, error) {
	var regional []*Node
	for _, n := range p.Connected() {
		if n.Region() == region {
			regional = append(regional, n)
		}
	}
	if len(regional) > 0 {
		sort.Slice(regional, func(i, j int) bool {
			return regional[i].Score() < regional[j].Score()
		})
		return regional[0], nil
	}
	return p.PickLeastLoaded()
}

// PickForNewPlayer places a new player: by region when given, then least
// loaded, then random. Fails with [ErrNoNodeAvailable] when nothing is
// connected.
func (p *Pool) PickForNewPlayer(region string) (*Node, error) {
	if region != "" {
		if n, err := p.PickByRegion(region); err == nil {
			return n, nil
		}
	}
	if n, err := p.PickLeastLoaded(); err == nil {
		return n, nil
	}
	return p.PickRandom()
}

// NodeHealth is the per-node entry of a health [Report].
type NodeHealth struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latencyMs"`
	Error   string        `json:"error,omitempty"`
}

// Report summarizes an on-demand health check of the whole pool.
type Report struct {
	Total        int                   `json:"total"`
	Connected    int                   `json:"connected"`
	Disconnected int                   `json:"disconnected"`
	Nodes        map[string]NodeHealth `json:"nodes"`
}

// HealthCheck probes every node's info endpoint concurrently and returns
// a report. Probe failures are recorded, never returned as an error.
func (p *Pool) HealthCheck(ctx context.Context) Report {
	nodes := p.All()
	report := Report{
		Total: len(nodes),
		Nodes: make(map[string]NodeHealth, len(nodes)),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		g.Go(func() error {
			start := time.Now()
			_, err := n.Rest().Info(ctx)
			latency := time.Since(start)

			health := NodeHealth{Healthy: err == nil, Latency: latency}
			if err != nil {
				health.Error = err.Error()
			}
			mu.Lock()
			report.Nodes[n.Identifier()] = health
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, n := range nodes {
		if n.Connected() {
			report.Connected++
		} else {
			report.Disconnected++
		}
	}
	return report
}

// CloseAll shuts every node's session down.
func (p *Pool) CloseAll() {
	for _, n := range p.All() {
		n.Close()
	}
}
