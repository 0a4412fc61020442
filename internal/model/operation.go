package model

import "fmt"

// OpKind identifies the variant of a ChangeOperation
type OpKind string

const (
	OpCreate OpKind = "create"
	OpDelete OpKind = "delete"
	OpUpdate OpKind = "update"
)

// ChangeOperation is a single remote mutation produced by the diff engine.
//
// RemoteID is empty for creates. Position is set for channel creates and
// channel reposition updates.
type ChangeOperation[A any] struct {
	Kind       OpKind
	RemoteID   string
	Name       string
	Attributes A
	Position   *int
}

// String renders the operation for logs and reports
func (op ChangeOperation[A]) String() string {
	if op.RemoteID == "" {
		return fmt.Sprintf("%s %q", op.Kind, op.Name)
	}
	return fmt.Sprintf("%s %q (%s)", op.Kind, op.Name, op.RemoteID)
}

// OperationFailure records an operation that failed during apply
type OperationFailure struct {
	Kind     OpKind
	Name     string
	RemoteID string
	Err      error
}

// ApplyReport aggregates the outcome of one apply pass
type ApplyReport struct {
	Created  int
	Deleted  int
	Updated  int
	Failures []OperationFailure
}

// RecordSuccess counts a successful operation
func (r *ApplyReport) RecordSuccess(kind OpKind) {
	switch kind {
	case OpCreate:
		r.Created++
	case OpDelete:
		r.Deleted++
	case OpUpdate:
		r.Updated++
	}
}

// RecordFailure stores a failed operation
func (r *ApplyReport) RecordFailure(kind OpKind, name, remoteID string, err error) {
	r.Failures = append(r.Failures, OperationFailure{
		Kind:     kind,
		Name:     name,
		RemoteID: remoteID,
		Err:      err,
	})
}

// HasFailures reports whether any operation failed
func (r *ApplyReport) HasFailures() bool {
	return len(r.Failures) > 0
}

// Summary renders "N created, M deleted, K updated"
func (r *ApplyReport) Summary() string {
	return fmt.Sprintf("%d created, %d deleted, %d updated", r.Created, r.Deleted, r.Updated)
}
