package config

import "fmt"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	NodesChanged    bool       // true if any node was added, removed, or modified
	NodeChanges     []NodeDiff // per-node diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// NodeDiff describes what changed for a single node between two configs.
type NodeDiff struct {
	Identifier      string
	EndpointChanged bool
	PasswordChanged bool
	RegionChanged   bool
	Added           bool
	Removed         bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Build node lookup maps keyed by identifier.
	oldNodes := make(map[string]*NodeConfig, len(old.Nodes))
	for i := range old.Nodes {
		oldNodes[nodeKey(&old.Nodes[i])] = &old.Nodes[i]
	}
	newNodes := make(map[string]*NodeConfig, len(new.Nodes))
	for i := range new.Nodes {
		newNodes[nodeKey(&new.Nodes[i])] = &new.Nodes[i]
	}

	// Detect modified and removed nodes.
	for id, oldNode := range oldNodes {
		newNode, exists := newNodes[id]
		if !exists {
			d.NodeChanges = append(d.NodeChanges, NodeDiff{
				Identifier: id,
				Removed:    true,
			})
			d.NodesChanged = true
			continue
		}
		nd := diffNode(id, oldNode, newNode)
		if nd.EndpointChanged || nd.PasswordChanged || nd.RegionChanged {
			d.NodeChanges = append(d.NodeChanges, nd)
			d.NodesChanged = true
		}
	}

	// Detect added nodes.
	for id := range newNodes {
		if _, exists := oldNodes[id]; !exists {
			d.NodeChanges = append(d.NodeChanges, NodeDiff{
				Identifier: id,
				Added:      true,
			})
			d.NodesChanged = true
		}
	}

	return d
}

// nodeKey returns the configured identifier, falling back to host:port the
// same way the pool does.
func nodeKey(n *NodeConfig) string {
	if n.Identifier != "" {
		return n.Identifier
	}
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// diffNode compares two node configs with the same identifier.
func diffNode(id string, old, new *NodeConfig) NodeDiff {
	nd := NodeDiff{Identifier: id}

	if old.Host != new.Host || old.Port != new.Port || old.Secure != new.Secure {
		nd.EndpointChanged = true
	}

	if old.Password != new.Password {
		nd.PasswordChanged = true
	}

	if old.Region != new.Region {
		nd.RegionChanged = true
	}

	return nd
}
