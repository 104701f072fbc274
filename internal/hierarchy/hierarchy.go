// Package hierarchy holds the tree algorithms over divisions. Nothing here
// talks to the database directly; store access is passed in as lookup funcs
// so every walk works on plain integer ids.
package hierarchy

import (
	"context"
	"fmt"
	"time"

	"division-service/internal/apperror"
	"division-service/internal/models"
)

type DivisionNode struct {
	ID        uint            `json:"id"`
	Name      string          `json:"name"`
	ParentID  *uint           `json:"parent_id"`
	CreatedAt time.Time       `json:"created_at"`
	Children  []*DivisionNode `json:"children"`
}

// ParentLookup returns the parent of a division. found is false when the
// division does not exist.
type ParentLookup func(ctx context.Context, id uint) (parentID *uint, found bool, err error)

// ChildrenLookup returns the ids of every division whose parent is one of parentIDs.
type ChildrenLookup func(ctx context.Context, parentIDs []uint) ([]uint, error)

// BuildHierarchy turns a flat division list into a forest. Rows whose parent
// is missing from the list, and rows caught in a parent cycle, never reach a
// root and are left out.
func BuildHierarchy(divisions []models.Division) []*DivisionNode {
	nodes := make(map[uint]*DivisionNode, len(divisions))
	for _, division := range divisions {
		nodes[division.ID] = &DivisionNode{
			ID:        division.ID,
			Name:      division.Name,
			ParentID:  division.ParentID,
			CreatedAt: division.CreatedAt,
			Children:  []*DivisionNode{},
		}
	}

	roots := make([]*DivisionNode, 0)
	for _, division := range divisions {
		node := nodes[division.ID]
		if division.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if parent, ok := nodes[*division.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}

	return roots
}

// CountNodes returns the number of nodes reachable from the given roots.
func CountNodes(forest []*DivisionNode) int {
	count := 0
	stack := append([]*DivisionNode(nil), forest...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, node.Children...)
	}
	return count
}

// Find returns the node with the given id, or nil.
func Find(forest []*DivisionNode, id uint) *DivisionNode {
	stack := append([]*DivisionNode(nil), forest...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node.ID == id {
			return node
		}
		stack = append(stack, node.Children...)
	}
	return nil
}

// Truncate copies node keeping at most depth levels below it.
func Truncate(node *DivisionNode, depth int) *DivisionNode {
	if node == nil {
		return nil
	}
	result := &DivisionNode{
		ID:        node.ID,
		Name:      node.Name,
		ParentID:  node.ParentID,
		CreatedAt: node.CreatedAt,
		Children:  []*DivisionNode{},
	}
	if depth <= 0 {
		return result
	}
	for _, child := range node.Children {
		result.Children = append(result.Children, Truncate(child, depth-1))
	}
	return result
}

// WouldCreateCycle reports whether candidateAncestorID is on the ancestor
// chain of divisionID. A division is not its own ancestor here.
//
// limit bounds the walk (normally the total number of divisions). A chain
// that revisits a division or runs past limit means the stored parents are
// already cyclic, and an inconsistent error is returned.
func WouldCreateCycle(ctx context.Context, divisionID, candidateAncestorID uint, lookup ParentLookup, limit int64) (bool, error) {
	if divisionID == candidateAncestorID {
		return false, nil
	}

	visited := map[uint]struct{}{divisionID: {}}
	current := divisionID
	for {
		parentID, found, err := lookup(ctx, current)
		if err != nil {
			return false, err
		}
		if !found || parentID == nil {
			return false, nil
		}
		if *parentID == candidateAncestorID {
			return true, nil
		}
		if _, seen := visited[*parentID]; seen {
			return false, inconsistentChain(divisionID)
		}
		if limit > 0 && int64(len(visited)) >= limit {
			return false, inconsistentChain(divisionID)
		}
		visited[*parentID] = struct{}{}
		current = *parentID
	}
}

// CollectDescendants returns every division below rootID, one lookup per
// tree level. rootID itself is not included.
func CollectDescendants(ctx context.Context, rootID uint, lookup ChildrenLookup, limit int64) ([]uint, error) {
	seen := map[uint]struct{}{rootID: {}}
	descendants := make([]uint, 0)

	level := []uint{rootID}
	for len(level) > 0 {
		children, err := lookup(ctx, level)
		if err != nil {
			return nil, err
		}

		next := make([]uint, 0, len(children))
		for _, id := range children {
			if _, ok := seen[id]; ok {
				return nil, inconsistentSubtree(rootID)
			}
			seen[id] = struct{}{}
			descendants = append(descendants, id)
			next = append(next, id)
		}
		if limit > 0 && int64(len(seen)) > limit {
			return nil, inconsistentSubtree(rootID)
		}
		level = next
	}

	return descendants, nil
}

func inconsistentChain(id uint) error {
	return apperror.New(apperror.CodeInconsistent,
		fmt.Sprintf("hierarchy is inconsistent: ancestor chain of division %d does not terminate", id))
}

func inconsistentSubtree(id uint) error {
	return apperror.New(apperror.CodeInconsistent,
		fmt.Sprintf("hierarchy is inconsistent: subtree of division %d contains a cycle", id))
}
