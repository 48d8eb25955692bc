// Package schema implements the Schema Actor: the single-threaded
// owner of every metric's Schema, responsible for widening it as new
// bits arrive and rejecting records that conflict with it.
package schema

import (
	"context"

	"github.com/aogier/nsdb/internal/actor"
	"github.com/aogier/nsdb/internal/errors"
	"github.com/aogier/nsdb/pkg/types"
)

// key identifies a schema by its full (db, ns, metric) coordinate.
type key struct {
	db, ns, metric string
}

// Actor owns every metric's Schema. All reads and mutations run on its
// Mailbox, so the map itself needs no separate lock.
type Actor struct {
	mailbox *actor.Mailbox
	schemas map[key]types.Schema
}

// NewActor creates a Schema Actor. Call Start before issuing any asks.
func NewActor() *Actor {
	return &Actor{
		mailbox: actor.NewMailbox(64),
		schemas: make(map[key]types.Schema),
	}
}

// Start begins processing asks on the actor's own goroutine.
func (a *Actor) Start(ctx context.Context) {
	a.mailbox.Start(ctx)
}

// Stop halts the actor's goroutine.
func (a *Actor) Stop() {
	a.mailbox.Stop()
}

// GetSchema returns the schema registered for (db, ns, metric), or a
// MissingSchema error if none exists yet.
func (a *Actor) GetSchema(ctx context.Context, db, ns, metric string) (types.Schema, error) {
	return actor.Ask(ctx, a.mailbox, "GetSchema", func() (types.Schema, error) {
		s, ok := a.schemas[key{db, ns, metric}]
		if !ok {
			return types.Schema{}, errors.NewMissingSchema(metric)
		}
		return s.Clone(), nil
	})
}

// UpdateSchemaFromRecord derives a candidate schema from bit and
// widens the stored schema for (db, ns, metric) to include it. A
// field present in both the candidate and the stored schema must
// agree on type; disagreement is a SchemaConflict naming every
// offending field, and the stored schema is left untouched.
func (a *Actor) UpdateSchemaFromRecord(ctx context.Context, db, ns, metric string, bit types.Bit) (types.Schema, error) {
	return actor.Ask(ctx, a.mailbox, "UpdateSchemaFromRecord", func() (types.Schema, error) {
		k := key{db, ns, metric}
		candidate := types.SchemaFromBit(metric, bit)

		existing, ok := a.schemas[k]
		if !ok {
			a.schemas[k] = candidate
			return candidate.Clone(), nil
		}

		if fields, conflict := existing.Conflict(candidate); conflict {
			return types.Schema{}, errors.NewSchemaConflict(fields)
		}

		widened := existing.Widen(candidate)
		a.schemas[k] = widened
		return widened.Clone(), nil
	})
}

// DeleteSchema removes the schema for (db, ns, metric), if any.
func (a *Actor) DeleteSchema(ctx context.Context, db, ns, metric string) error {
	_, err := actor.Ask(ctx, a.mailbox, "DeleteSchema", func() (struct{}, error) {
		delete(a.schemas, key{db, ns, metric})
		return struct{}{}, nil
	})
	return err
}

// DeleteNamespace removes every schema registered under (db, ns).
func (a *Actor) DeleteNamespace(ctx context.Context, db, ns string) error {
	_, err := actor.Ask(ctx, a.mailbox, "DeleteNamespace", func() (struct{}, error) {
		for k := range a.schemas {
			if k.db == db && k.ns == ns {
				delete(a.schemas, k)
			}
		}
		return struct{}{}, nil
	})
	return err
}
