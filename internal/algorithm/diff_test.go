package algorithm

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z0w13/dmserv/internal/model"
)

func observedRoles(entries map[string]int) map[string]model.ObservedEntity[model.RoleAttributes] {
	out := make(map[string]model.ObservedEntity[model.RoleAttributes], len(entries))
	for name, color := range entries {
		out[name] = model.ObservedEntity[model.RoleAttributes]{
			RemoteID:   "id-" + name,
			Name:       name,
			Attributes: model.RoleAttributes{Color: color},
		}
	}
	return out
}

func desiredRoles(entries map[string]int) map[string]model.DesiredEntity[model.RoleAttributes] {
	out := make(map[string]model.DesiredEntity[model.RoleAttributes], len(entries))
	for name, color := range entries {
		out[name] = model.DesiredEntity[model.RoleAttributes]{
			Name:       name,
			Attributes: model.RoleAttributes{Color: color},
		}
	}
	return out
}

func namesOf[A any](ops []model.ChangeOperation[A]) []string {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	return names
}

func TestDiff_RoleColorUpdate(t *testing.T) {
	observed := observedRoles(map[string]int{"Sam (Alter)": 0x112233})
	desired := desiredRoles(map[string]int{"Sam (Alter)": 0x445566})

	ops := Diff(observed, desired, RoleColorChanged)

	require.Len(t, ops, 1)
	assert.Equal(t, model.OpUpdate, ops[0].Kind)
	assert.Equal(t, "id-Sam (Alter)", ops[0].RemoteID)
	assert.Equal(t, 0x445566, ops[0].Attributes.Color)
}

func TestDiff_ChannelsNeverUpdate(t *testing.T) {
	observed := map[string]model.ObservedEntity[model.NoAttributes]{
		"Alice": {RemoteID: "1", Name: "Alice", Position: 0},
		"Bob":   {RemoteID: "2", Name: "Bob", Position: 1},
	}
	desired := map[string]model.DesiredEntity[model.NoAttributes]{
		"Bob":   {Name: "Bob"},
		"Carol": {Name: "Carol"},
	}

	ops := Diff(observed, desired, nil)
	deletes, creates, updates := Partition(ops)

	assert.Equal(t, []string{"Alice"}, namesOf(deletes))
	assert.Equal(t, "1", deletes[0].RemoteID)
	assert.Equal(t, []string{"Carol"}, namesOf(creates))
	assert.Empty(t, updates)
}

func TestDiff_OrderIsDeletesCreatesUpdates(t *testing.T) {
	observed := observedRoles(map[string]int{"b": 1, "a": 1, "z": 1})
	desired := desiredRoles(map[string]int{"z": 2, "y": 1, "c": 1})

	ops := Diff(observed, desired, RoleColorChanged)

	kinds := make([]model.OpKind, 0, len(ops))
	for _, op := range ops {
		kinds = append(kinds, op.Kind)
	}
	assert.Equal(t, []model.OpKind{model.OpDelete, model.OpDelete, model.OpCreate, model.OpCreate, model.OpUpdate}, kinds)
	assert.Equal(t, []string{"a", "b", "c", "y", "z"}, namesOf(ops))
}

func TestDiff_Completeness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		observedEntries := make(map[string]int)
		desiredEntries := make(map[string]int)
		for i := 0; i < 20; i++ {
			name := fmt.Sprintf("m%d", rng.Intn(30))
			switch rng.Intn(3) {
			case 0:
				observedEntries[name] = rng.Intn(3)
			case 1:
				desiredEntries[name] = rng.Intn(3)
			default:
				observedEntries[name] = rng.Intn(3)
				desiredEntries[name] = rng.Intn(3)
			}
		}

		ops := Diff(observedRoles(observedEntries), desiredRoles(desiredEntries), RoleColorChanged)
		deletes, creates, updates := Partition(ops)

		var wantCreates, wantDeletes, wantUpdates []string
		for name := range desiredEntries {
			if _, ok := observedEntries[name]; !ok {
				wantCreates = append(wantCreates, name)
			}
		}
		for name, color := range observedEntries {
			desiredColor, ok := desiredEntries[name]
			if !ok {
				wantDeletes = append(wantDeletes, name)
			} else if desiredColor != color {
				wantUpdates = append(wantUpdates, name)
			}
		}

		assert.ElementsMatch(t, wantCreates, namesOf(creates))
		assert.ElementsMatch(t, wantDeletes, namesOf(deletes))
		assert.ElementsMatch(t, wantUpdates, namesOf(updates))

		seen := make(map[string]int)
		for _, op := range ops {
			seen[op.Name]++
		}
		for name, count := range seen {
			assert.Equal(t, 1, count, "name %q classified more than once", name)
		}
	}
}

func TestDiff_OrderIndependent(t *testing.T) {
	observedColors := map[string]int{"Alice": 1, "Bob": 2, "Dan": 3, "Frank": 1}
	desiredColors := map[string]int{"Bob": 2, "Carol": 1, "Dan": 4, "Eve": 1, "Grace": 2}
	names := []string{"Alice", "Bob", "Carol", "Dan", "Eve", "Frank", "Grace"}
	rng := rand.New(rand.NewSource(7))

	build := func(order []string) []model.ChangeOperation[model.RoleAttributes] {
		observed := make(map[string]model.ObservedEntity[model.RoleAttributes])
		desired := make(map[string]model.DesiredEntity[model.RoleAttributes])
		for _, name := range order {
			if color, ok := observedColors[name]; ok {
				observed[name] = model.ObservedEntity[model.RoleAttributes]{RemoteID: "id-" + name, Name: name, Attributes: model.RoleAttributes{Color: color}}
			}
			if color, ok := desiredColors[name]; ok {
				desired[name] = model.DesiredEntity[model.RoleAttributes]{Name: name, Attributes: model.RoleAttributes{Color: color}}
			}
		}
		return Diff(observed, desired, RoleColorChanged)
	}

	first := build(names)
	for i := 0; i < 50; i++ {
		shuffled := append([]string(nil), names...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, first, build(shuffled))
	}
}

func TestDiff_Empty(t *testing.T) {
	ops := Diff[model.NoAttributes](nil, nil, nil)
	assert.Empty(t, ops)
}
