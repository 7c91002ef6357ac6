// Package audit defines the consumed audit-trail interface.
// Every successful movement apply and every reconciliation correction is
// recorded; the calculator's manual-movement source category depends on this
// trail being complete.
package audit

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
)

// Action is the audited operation kind.
type Action string

const (
	ActionApply     Action = "apply"
	ActionReverse   Action = "reverse"
	ActionReconcile Action = "reconcile"
	ActionCreate    Action = "create"
	ActionDelete    Action = "delete"
)

// Entry describes one audited change.
type Entry struct {
	EntityType string
	EntityID   id.ID
	Action     Action
	OldValue   map[string]any
	NewValue   map[string]any
	Actor      string
}

// Recorder is the audit sink consumed by the ledger core.
type Recorder interface {
	Record(ctx context.Context, sc scope.Scope, entry Entry) error
}

// Nop is a Recorder that discards entries; used in tests.
type Nop struct{}

func (Nop) Record(ctx context.Context, sc scope.Scope, entry Entry) error { return nil }
