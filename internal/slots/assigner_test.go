package slots

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-collage-app/internal/models"
)

func photoList(ids ...string) []models.Photo {
	photos := make([]models.Photo, 0, len(ids))
	for _, id := range ids {
		photos = append(photos, models.Photo{ID: id, CollageID: "c1"})
	}
	return photos
}

func TestAssigner_FillsLowestSlotsInOrder(t *testing.T) {
	a := NewAssigner()

	got := a.Assign(photoList("A", "B", "C"), 3)
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 2}, got)
}

func TestAssigner_FreedSlotIsReused(t *testing.T) {
	a := NewAssigner()

	a.Assign(photoList("A", "B", "C"), 3)

	got := a.Assign(photoList("A", "C"), 3)
	assert.Equal(t, map[string]int{"A": 0, "C": 2}, got, "deleting B frees slot 1")

	got = a.Assign(photoList("A", "C", "D"), 3)
	assert.Equal(t, map[string]int{"A": 0, "D": 1, "C": 2}, got, "D takes freed slot, A and C unmoved")
}

func TestAssigner_OverflowStaysUnassigned(t *testing.T) {
	a := NewAssigner()

	got := a.Assign(photoList("A", "B", "C"), 2)
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, got, "C has no slot")

	got = a.Assign(photoList("B", "C"), 2)
	assert.Equal(t, map[string]int{"C": 0, "B": 1}, got, "C claims the slot A freed")
}

func TestAssigner_StabilityAcrossChurn(t *testing.T) {
	a := NewAssigner()

	a.Assign(photoList("A", "B", "C", "D"), 8)
	slotB, ok := a.SlotFor("B")
	require.True(t, ok)

	// B must keep its slot through arbitrary insertion/deletion around it.
	a.Assign(photoList("B", "C", "D", "E", "F"), 8)
	a.Assign(photoList("B", "F", "G"), 8)
	a.Assign(photoList("H", "B"), 8)

	got, ok := a.SlotFor("B")
	require.True(t, ok)
	assert.Equal(t, slotB, got)
}

func TestAssigner_Injectivity(t *testing.T) {
	a := NewAssigner()

	ids := []string{"A", "B", "C", "D", "E", "F"}
	sets := [][]string{
		{"A", "B", "C", "D", "E", "F"},
		{"B", "D", "F"},
		{"B", "D", "F", "A", "C"},
		{"C"},
		ids,
	}
	for _, set := range sets {
		mapping := a.Assign(photoList(set...), 4)
		used := make(map[int]string)
		for id, slot := range mapping {
			assert.GreaterOrEqual(t, slot, 0)
			assert.Less(t, slot, 4)
			prev, taken := used[slot]
			require.False(t, taken, "slot %d shared by %s and %s", slot, prev, id)
			used[slot] = id
		}
	}
}

func TestAssigner_CapacityShrinkFreesHighSlots(t *testing.T) {
	a := NewAssigner()

	ids := photoList("A", "B", "C", "D", "E")
	got := a.Assign(ids, 5)
	require.Len(t, got, 5)

	got = a.Assign(ids, 2)
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, got, "slots 2-4 dropped, survivors unmoved")

	// Growing again re-slots the dropped photos into the new room.
	got = a.Assign(ids, 4)
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}, got)
}

func TestAssigner_EmptyInputClearsAll(t *testing.T) {
	a := NewAssigner()

	a.Assign(photoList("A", "B"), 4)
	got := a.Assign(nil, 4)
	assert.Empty(t, got)

	_, ok := a.PhotoAt(0)
	assert.False(t, ok)
}

func TestAssigner_DuplicateIDsCountOnce(t *testing.T) {
	a := NewAssigner()

	got := a.Assign(photoList("A", "A", "B", "A"), 4)
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, got)
}

func TestAssigner_RepeatedAssignIsIdempotent(t *testing.T) {
	a := NewAssigner()

	first := a.Assign(photoList("A", "B", "C"), 3)
	second := a.Assign(photoList("A", "B", "C"), 3)
	assert.Equal(t, first, second)
}

func TestAssigner_LargeChurnKeepsInvariants(t *testing.T) {
	a := NewAssigner()
	const capacity = 16

	live := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		live = append(live, fmt.Sprintf("p%02d", i))
		if i%3 == 0 && len(live) > 4 {
			live = append(live[:1], live[3:]...)
		}
		mapping := a.Assign(photoList(live...), capacity)
		used := make(map[int]bool)
		for _, slot := range mapping {
			require.False(t, used[slot])
			require.Less(t, slot, capacity)
			used[slot] = true
		}
	}
}
