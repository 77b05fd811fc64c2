// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataflow

import (
	"cmp"
	"slices"
)

// DFS performs a depth-first search starting from the source marker, following data and control out-edges.
// enter (if not nil) is called when a node is first visited and leave (if not nil) after all its children were visited.
//
// The children of a node are visited in ascending node id, so the traversal only depends on the structure of the
// graph. It returns the set of visited nodes, indexed by node id.
func DFS(g *Graph, enter, leave func(n *Node)) (visited []bool) {
	type frame struct {
		node     *Node
		children []*Node
		next     int
	}
	visited = make([]bool, g.NumNodes())
	start := func(n *Node) frame {
		visited[n.id] = true
		if enter != nil {
			enter(n)
		}
		return frame{node: n, children: sortedChildren(n)}
	}
	stack := []frame{start(g.Source())}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.children) {
			child := top.children[top.next]
			top.next++
			if !visited[child.id] {
				stack = append(stack, start(child))
			}
			continue
		}
		if leave != nil {
			leave(top.node)
		}
		stack = stack[:len(stack)-1]
	}
	return visited
}

// sortedChildren returns the distinct destinations of the out-edges of n, sorted by node id.
func sortedChildren(n *Node) []*Node {
	children := make([]*Node, 0, len(n.outEdges))
	for _, e := range n.outEdges {
		children = append(children, e.Dst)
	}
	slices.SortFunc(children, func(a, b *Node) int { return cmp.Compare(a.id, b.id) })
	return slices.Compact(children)
}

// ReversePostOrder returns the nodes reachable from the source marker in reverse post-order: every node
// comes after all its (reachable) inputs. The order is fully determined by the graph structure.
func ReversePostOrder(g *Graph) []*Node {
	var order []*Node
	DFS(g, nil, func(n *Node) { order = append(order, n) })
	slices.Reverse(order)
	return order
}

// UnreachableNodes returns the op nodes not reachable from the source marker, sorted by id.
func UnreachableNodes(g *Graph) []*Node {
	visited := DFS(g, nil, nil)
	var unreachable []*Node
	for _, n := range g.nodes[2:] {
		if !visited[n.id] {
			unreachable = append(unreachable, n)
		}
	}
	return unreachable
}

// FindCycle returns the nodes of a cycle formed by data or control edges, in edge order, or nil if the graph is
// acyclic. The search starts from the source marker and then from the remaining nodes in ascending id, so the
// reported cycle only depends on the structure of the graph.
func FindCycle(g *Graph) []*Node {
	const (
		unvisited = iota
		onPath
		done
	)
	type frame struct {
		node     *Node
		children []*Node
		next     int
	}
	state := make([]int, g.NumNodes())
	for _, root := range g.nodes {
		if state[root.id] != unvisited {
			continue
		}
		state[root.id] = onPath
		stack := []frame{{node: root, children: sortedChildren(root)}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(top.children) {
				state[top.node.id] = done
				stack = stack[:len(stack)-1]
				continue
			}
			child := top.children[top.next]
			top.next++
			switch state[child.id] {
			case unvisited:
				state[child.id] = onPath
				stack = append(stack, frame{node: child, children: sortedChildren(child)})
			case onPath:
				start := slices.IndexFunc(stack, func(f frame) bool { return f.node == child })
				cycle := make([]*Node, 0, len(stack)-start)
				for _, f := range stack[start:] {
					cycle = append(cycle, f.node)
				}
				return cycle
			}
		}
	}
	return nil
}
