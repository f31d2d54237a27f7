// Package pipeline builds the per-output node graph and runs it day by day.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"defiFetch/internal/model"
	"defiFetch/internal/storage"
)

// ErrCycle is returned when a node depends on itself.
var ErrCycle = errors.New("dependency cycle")

// Node is a unit of per-day work. Implementations are *SourceNode and *TransformNode.
type Node interface {
	Name() string
	// Identity is the contract address used in the node's artifact names.
	Identity() string
	Dependencies() []Node
}

// SourceNode loads a day of logs for one contract from the run's log source.
type SourceNode struct {
	name     string
	Contract model.ContractConfig
}

func NewSourceNode(name string, contract model.ContractConfig) *SourceNode {
	return &SourceNode{name: name, Contract: contract}
}

func (n *SourceNode) Name() string         { return n.name }
func (n *SourceNode) Identity() string     { return n.Contract.Address }
func (n *SourceNode) Dependencies() []Node { return nil }

// ProcessFunc turns the day's dependency tables, in declaration order, into a new table.
type ProcessFunc func(ctx context.Context, day time.Time, inputs []*storage.Table) (*storage.Table, error)

// TransformNode derives a table from the artifacts of its dependencies.
type TransformNode struct {
	name     string
	identity string
	deps     []Node
	process  ProcessFunc
}

func NewTransformNode(name, identity string, process ProcessFunc, deps ...Node) *TransformNode {
	return &TransformNode{name: name, identity: identity, deps: deps, process: process}
}

func (n *TransformNode) Name() string         { return n.name }
func (n *TransformNode) Identity() string     { return n.identity }
func (n *TransformNode) Dependencies() []Node { return n.deps }

// Process runs the node's function for one day.
func (n *TransformNode) Process(ctx context.Context, day time.Time, inputs []*storage.Table) (*storage.Table, error) {
	if n.process == nil {
		return nil, fmt.Errorf("node %s has no processor", n.name)
	}
	return n.process(ctx, day, inputs)
}

// Order returns root and its transitive dependencies with every dependency
// ahead of its dependents. Nodes are identified by name.
func Order(root Node) ([]Node, error) {
	if root == nil {
		return nil, fmt.Errorf("root node is nil")
	}
	if err := checkAcyclic(root); err != nil {
		return nil, err
	}

	visited := make([]Node, 0)
	stack := []Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited = append(visited, node)

		deps := node.Dependencies()
		for i := len(deps) - 1; i >= 0; i-- {
			stack = append(stack, deps[i])
		}
	}

	seen := make(map[string]bool, len(visited))
	ordered := make([]Node, 0, len(visited))
	for i := len(visited) - 1; i >= 0; i-- {
		node := visited[i]
		if seen[node.Name()] {
			continue
		}
		seen[node.Name()] = true
		ordered = append(ordered, node)
	}
	return ordered, nil
}

type frame struct {
	node Node
	next int
}

func checkAcyclic(root Node) error {
	onPath := map[string]bool{root.Name(): true}
	done := make(map[string]bool)
	stack := []*frame{{node: root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		deps := top.node.Dependencies()
		if top.next == len(deps) {
			onPath[top.node.Name()] = false
			done[top.node.Name()] = true
			stack = stack[:len(stack)-1]
			continue
		}

		dep := deps[top.next]
		top.next++
		if dep == nil {
			return fmt.Errorf("node %s has a nil dependency", top.node.Name())
		}
		if onPath[dep.Name()] {
			return fmt.Errorf("%w: %s -> %s", ErrCycle, top.node.Name(), dep.Name())
		}
		if done[dep.Name()] {
			continue
		}
		onPath[dep.Name()] = true
		stack = append(stack, &frame{node: dep})
	}
	return nil
}
