package algorithm

import (
	"sort"

	"github.com/z0w13/dmserv/internal/model"
)

// ChangedFunc reports whether an observed entity must be updated to match its
// desired counterpart. Names are the join key and never count as a change.
type ChangedFunc[A any] func(observed model.ObservedEntity[A], desired model.DesiredEntity[A]) bool

// Diff computes the operations that turn observed into desired.
//
// Names only in desired become creates, names only in observed become deletes,
// and names in both become updates when changed returns true. A nil changed
// never produces updates. The result is ordered deletes, creates, updates and
// by name within each kind, so it does not depend on map iteration order.
func Diff[A any](
	observed map[string]model.ObservedEntity[A],
	desired map[string]model.DesiredEntity[A],
	changed ChangedFunc[A],
) []model.ChangeOperation[A] {
	var deletes, creates, updates []model.ChangeOperation[A]

	for name, current := range observed {
		target, ok := desired[name]
		if !ok {
			deletes = append(deletes, model.ChangeOperation[A]{
				Kind:       model.OpDelete,
				RemoteID:   current.RemoteID,
				Name:       name,
				Attributes: current.Attributes,
			})
			continue
		}
		if changed != nil && changed(current, target) {
			updates = append(updates, model.ChangeOperation[A]{
				Kind:       model.OpUpdate,
				RemoteID:   current.RemoteID,
				Name:       name,
				Attributes: target.Attributes,
			})
		}
	}

	for name, target := range desired {
		if _, ok := observed[name]; ok {
			continue
		}
		creates = append(creates, model.ChangeOperation[A]{
			Kind:       model.OpCreate,
			Name:       name,
			Attributes: target.Attributes,
		})
	}

	sortByName(deletes)
	sortByName(creates)
	sortByName(updates)

	ops := make([]model.ChangeOperation[A], 0, len(deletes)+len(creates)+len(updates))
	ops = append(ops, deletes...)
	ops = append(ops, creates...)
	ops = append(ops, updates...)
	return ops
}

// RoleColorChanged is the update predicate for member roles
func RoleColorChanged(observed model.ObservedEntity[model.RoleAttributes], desired model.DesiredEntity[model.RoleAttributes]) bool {
	return observed.Attributes.Color != desired.Attributes.Color
}

// Partition splits operations by kind, preserving order
func Partition[A any](ops []model.ChangeOperation[A]) (deletes, creates, updates []model.ChangeOperation[A]) {
	for _, op := range ops {
		switch op.Kind {
		case model.OpDelete:
			deletes = append(deletes, op)
		case model.OpCreate:
			creates = append(creates, op)
		case model.OpUpdate:
			updates = append(updates, op)
		}
	}
	return deletes, creates, updates
}

func sortByName[A any](ops []model.ChangeOperation[A]) {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Name == ops[j].Name {
			return ops[i].RemoteID < ops[j].RemoteID
		}
		return ops[i].Name < ops[j].Name
	})
}
