package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"division-service/internal/apperror"
	"division-service/internal/models"
)

func ptr(v uint) *uint {
	return &v
}

// table is an id -> parent map used to fake store lookups.
type table map[uint]*uint

func (t table) divisions(order ...uint) []models.Division {
	result := make([]models.Division, 0, len(order))
	for _, id := range order {
		result = append(result, models.Division{ID: id, Name: "d", ParentID: t[id]})
	}
	return result
}

func (t table) parentLookup(calls *int) ParentLookup {
	return func(_ context.Context, id uint) (*uint, bool, error) {
		if calls != nil {
			*calls++
		}
		parentID, ok := t[id]
		return parentID, ok, nil
	}
}

func (t table) childrenLookup(calls *int) ChildrenLookup {
	return func(_ context.Context, parentIDs []uint) ([]uint, error) {
		if calls != nil {
			*calls++
		}
		wanted := make(map[uint]bool, len(parentIDs))
		for _, id := range parentIDs {
			wanted[id] = true
		}
		var children []uint
		for id := uint(1); id <= uint(len(t))+10; id++ {
			parentID, ok := t[id]
			if ok && parentID != nil && wanted[*parentID] {
				children = append(children, id)
			}
		}
		return children, nil
	}
}

func sampleTable() table {
	return table{1: nil, 2: ptr(1), 3: ptr(1), 4: ptr(2)}
}

func TestBuildHierarchy(t *testing.T) {
	forest := BuildHierarchy(sampleTable().divisions(1, 2, 3, 4))

	require.Len(t, forest, 1)
	root := forest[0]
	require.Equal(t, uint(1), root.ID)
	require.Len(t, root.Children, 2)
	require.Equal(t, uint(2), root.Children[0].ID)
	require.Equal(t, uint(3), root.Children[1].ID)
	require.Len(t, root.Children[0].Children, 1)
	require.Equal(t, uint(4), root.Children[0].Children[0].ID)
	require.Empty(t, root.Children[1].Children)
	require.Equal(t, 4, CountNodes(forest))
}

func TestBuildHierarchyChildOrderFollowsInput(t *testing.T) {
	forest := BuildHierarchy(sampleTable().divisions(3, 4, 1, 2))

	require.Len(t, forest, 1)
	require.Equal(t, uint(3), forest[0].Children[0].ID)
	require.Equal(t, uint(2), forest[0].Children[1].ID)
	require.Equal(t, uint(4), forest[0].Children[1].Children[0].ID)
}

func TestBuildHierarchyEmpty(t *testing.T) {
	forest := BuildHierarchy(nil)
	require.NotNil(t, forest)
	require.Empty(t, forest)
}

func TestBuildHierarchyAllRoots(t *testing.T) {
	forest := BuildHierarchy(table{1: nil, 2: nil, 3: nil}.divisions(1, 2, 3))
	require.Len(t, forest, 3)
	for _, node := range forest {
		require.Empty(t, node.Children)
	}
}

func TestBuildHierarchyDropsDanglingAndCyclicRows(t *testing.T) {
	rows := table{
		1: nil,
		2: ptr(1),
		5: ptr(99), // dangling
		6: ptr(7),  // 6 <-> 7 cycle
		7: ptr(6),
		8: ptr(5), // hangs off a dangling row
	}
	forest := BuildHierarchy(rows.divisions(1, 2, 5, 6, 7, 8))

	require.Len(t, forest, 1)
	require.Equal(t, 2, CountNodes(forest))
	require.Nil(t, Find(forest, 5))
	require.Nil(t, Find(forest, 6))
	require.Nil(t, Find(forest, 8))
}

func TestBuildHierarchyMutualCycleIsEmpty(t *testing.T) {
	forest := BuildHierarchy(table{1: ptr(2), 2: ptr(1)}.divisions(1, 2))
	require.Empty(t, forest)
}

func TestBuildHierarchyDeepChain(t *testing.T) {
	const depth = 10000
	rows := make([]models.Division, 0, depth)
	rows = append(rows, models.Division{ID: 1, Name: "root"})
	for id := uint(2); id <= depth; id++ {
		rows = append(rows, models.Division{ID: id, Name: "n", ParentID: ptr(id - 1)})
	}

	forest := BuildHierarchy(rows)
	require.Len(t, forest, 1)
	require.Equal(t, depth, CountNodes(forest))
	require.NotNil(t, Find(forest, depth))
}

func TestTruncate(t *testing.T) {
	forest := BuildHierarchy(sampleTable().divisions(1, 2, 3, 4))

	flat := Truncate(forest[0], 0)
	require.Empty(t, flat.Children)

	one := Truncate(forest[0], 1)
	require.Len(t, one.Children, 2)
	require.Empty(t, one.Children[0].Children)

	full := Truncate(forest[0], 5)
	require.Equal(t, 4, CountNodes([]*DivisionNode{full}))
	require.Nil(t, Truncate(nil, 3))
}

func TestWouldCreateCycle(t *testing.T) {
	rows := sampleTable()
	ctx := context.Background()

	tests := []struct {
		name      string
		division  uint
		candidate uint
		want      bool
	}{
		{"ancestor is detected", 4, 1, true},
		{"direct parent is detected", 4, 2, true},
		{"descendant is not an ancestor", 2, 4, false},
		{"sibling branch", 3, 2, false},
		{"self", 2, 2, false},
		{"root has no ancestors", 1, 4, false},
		{"missing division", 42, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WouldCreateCycle(ctx, tt.division, tt.candidate, rows.parentLookup(nil), int64(len(rows)))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestWouldCreateCycleOneLookupPerLevel(t *testing.T) {
	calls := 0
	_, err := WouldCreateCycle(context.Background(), 4, 99, sampleTable().parentLookup(&calls), 4)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWouldCreateCycleStopsOnCorruptedChain(t *testing.T) {
	rows := table{1: ptr(2), 2: ptr(3), 3: ptr(1)}

	_, err := WouldCreateCycle(context.Background(), 1, 99, rows.parentLookup(nil), 3)
	require.Error(t, err)
	require.Equal(t, apperror.CodeInconsistent, apperror.GetCode(err))

	_, err = WouldCreateCycle(context.Background(), 1, 99, rows.parentLookup(nil), 0)
	require.Equal(t, apperror.CodeInconsistent, apperror.GetCode(err))
}

func TestWouldCreateCycleRespectsLimit(t *testing.T) {
	rows := table{1: nil, 2: ptr(1), 3: ptr(2), 4: ptr(3)}

	_, err := WouldCreateCycle(context.Background(), 4, 99, rows.parentLookup(nil), 2)
	require.Equal(t, apperror.CodeInconsistent, apperror.GetCode(err))
}

func TestWouldCreateCyclePropagatesLookupError(t *testing.T) {
	boom := errors.New("boom")
	lookup := func(context.Context, uint) (*uint, bool, error) { return nil, false, boom }

	_, err := WouldCreateCycle(context.Background(), 1, 2, lookup, 10)
	require.ErrorIs(t, err, boom)
}

func TestCollectDescendants(t *testing.T) {
	calls := 0
	ids, err := CollectDescendants(context.Background(), 1, sampleTable().childrenLookup(&calls), 4)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{2, 3, 4}, ids)
	// levels {1}, {2,3}, {4}
	require.Equal(t, 3, calls)

	ids, err = CollectDescendants(context.Background(), 3, sampleTable().childrenLookup(nil), 4)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestCollectDescendantsStopsOnCycle(t *testing.T) {
	rows := table{1: ptr(3), 2: ptr(1), 3: ptr(2)}

	_, err := CollectDescendants(context.Background(), 1, rows.childrenLookup(nil), 3)
	require.Equal(t, apperror.CodeInconsistent, apperror.GetCode(err))
}
