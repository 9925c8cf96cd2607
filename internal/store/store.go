// Package store defines the entity store consumed by the derivation engine.
// Loads of a missing key report found=false; they are not errors.
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"positionScope/internal/model"
)

// ErrNotFound marks an entity that must exist by event-ordering contract but does not.
var ErrNotFound = errors.New("entity not found")

// Reader is the read side of the store, used by the price oracle.
type Reader interface {
	Token(ctx context.Context, id common.Address) (*model.Token, bool, error)
	Pool(ctx context.Context, id common.Address) (*model.Pool, bool, error)
	Bundle(ctx context.Context) (*model.Bundle, bool, error)
}

// Source loads every entity type of the read model.
type Source interface {
	Reader
	Position(ctx context.Context, id string) (*model.Position, bool, error)
	PositionSnapshot(ctx context.Context, id string) (*model.PositionSnapshot, bool, error)
	Tick(ctx context.Context, id string) (*model.Tick, bool, error)
	FeeTierTickSpacing(ctx context.Context, feeTier uint32) (int32, bool, error)
}

// Store loads and saves every entity type of the read model.
type Store interface {
	Source
	SaveToken(ctx context.Context, token *model.Token) error
	SavePool(ctx context.Context, pool *model.Pool) error
	SaveBundle(ctx context.Context, bundle *model.Bundle) error
	SavePosition(ctx context.Context, position *model.Position) error
	SavePositionSnapshot(ctx context.Context, snapshot *model.PositionSnapshot) error
	SaveTick(ctx context.Context, tick *model.Tick) error
	SaveFeeTierTickSpacing(ctx context.Context, feeTier uint32, tickSpacing int32) error
}

// Cursor is the chain position of the last applied event.
type Cursor struct {
	BlockNumber uint64
	LogIndex    uint64
}

// Committer persists a batch of changes and its cursor in one atomic write.
type Committer interface {
	LoadCursor(ctx context.Context) (Cursor, bool, error)
	Commit(ctx context.Context, changes *Changes) error
}

// MustToken loads a token that is guaranteed to exist, returning an error wrapping
// ErrNotFound otherwise.
func MustToken(ctx context.Context, r Reader, id common.Address) (*model.Token, error) {
	token, ok, err := r.Token(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &MissingError{Kind: "token", ID: id.Hex()}
	}
	return token, nil
}

// MustPool loads a pool that is guaranteed to exist.
func MustPool(ctx context.Context, r Reader, id common.Address) (*model.Pool, error) {
	pool, ok, err := r.Pool(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &MissingError{Kind: "pool", ID: id.Hex()}
	}
	return pool, nil
}

// MustBundle loads the singleton bundle.
func MustBundle(ctx context.Context, r Reader) (*model.Bundle, error) {
	bundle, ok, err := r.Bundle(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &MissingError{Kind: "bundle", ID: model.BundleID}
	}
	return bundle, nil
}

// MissingError reports a required entity that is absent.
type MissingError struct {
	Kind string
	ID   string
}

func (e *MissingError) Error() string {
	return "missing " + e.Kind + " " + e.ID
}

func (e *MissingError) Unwrap() error {
	return ErrNotFound
}
