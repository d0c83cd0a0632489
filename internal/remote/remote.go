// Package remote is the client side of the authoritative store. A Store is a
// backend holding one document collection per record kind; a Client wraps a
// Store for one kind and adds the identity check, the call timeout and the
// error mapping the sync engine relies on.
package remote

import (
	"context"
	"encoding/json"
	"time"
)

// SeedCollection holds one marker document per owner whose default
// categories have been claimed for seeding.
const SeedCollection = "seed_marker"

// Document is a record as the remote store keeps it. Timestamps use the
// store's native time type; Data is the JSON encoding of the kind's fields.
type Document struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// ChangeType is the kind of mutation a Change reports.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeRemoved ChangeType = "removed"
)

// Change is one mutation observed at the remote. For removals only the
// document's ID and OwnerID are set.
type Change struct {
	Collection string     `json:"collection"`
	Type       ChangeType `json:"type"`
	Document   Document   `json:"document"`
}

// Handler receives changes. Changes to the same document arrive in order.
type Handler func(Change)

// Store is the backend contract. Implementations must be safe for concurrent
// use.
//
// Put never regresses a document: a write whose UpdatedAt is older than the
// stored copy is acknowledged without being applied, so replays are
// harmless. Put and Delete reject (UNAUTHORIZED) a document whose stored
// owner differs from the caller's. List returns UNKNOWN_COLLECTION for a
// collection that has never been written.
type Store interface {
	Put(ctx context.Context, collection string, doc Document) error
	Delete(ctx context.Context, collection, id, ownerID string) error
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	List(ctx context.Context, collection, ownerID string) ([]Document, error)

	// CreateIfAbsent writes doc only if no document with its id exists and
	// reports whether this call created it.
	CreateIfAbsent(ctx context.Context, collection string, doc Document) (bool, error)

	// Watch registers fn for changes to ownerID's documents in collection.
	// ctx bounds only the setup: the registration is active when Watch
	// returns and lasts until stop is called. stop waits for any delivery in
	// progress and is safe to call more than once.
	Watch(ctx context.Context, collection, ownerID string, fn Handler) (stop func(), err error)

	Ping(ctx context.Context) error
}

// Feed message types sent over the gateway's change stream.
const (
	FeedReady  = "ready"
	FeedChange = "change"
)

// FeedMessage is one frame of the gateway's change stream. The first frame
// is always FeedReady, sent once the watch is registered.
type FeedMessage struct {
	Type   string  `json:"type"`
	Change *Change `json:"change,omitempty"`
}
