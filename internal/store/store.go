// Package store defines the persistent key-value contract used for settings,
// credentials and tokens, together with an in-memory implementation.
//
// Items are flat attribute maps keyed by the "id" attribute. Besides plain
// get/put, a store must support a conditional update (fail when the item does
// not exist) and a secondary-index query that resolves an attribute value to
// the primary key of the first matching item. Durable backends live in the
// sqlitestore and redisstore sub-packages.
package store

import (
	"context"
	"errors"
	"maps"
)

// Sentinel errors. Use errors.Is to check.
var (
	ErrNotFound        = errors.New("store: item not found")
	ErrConditionFailed = errors.New("store: condition failed")
	ErrUnknownIndex    = errors.New("store: unknown index")
	ErrMissingKey      = errors.New("store: item has no id")
)

// KeyAttribute is the attribute holding an item's primary key.
const KeyAttribute = "id"

// Secondary indexes known to every backend.
const (
	// UserIDIndex maps the "userId" attribute back to the owning item's key.
	UserIDIndex = "userId-index"
	// UserIDAttribute is the attribute indexed by UserIDIndex.
	UserIDAttribute = "userId"
)

// indexAttributes lists the attribute each named index covers.
var indexAttributes = map[string]string{
	UserIDIndex: UserIDAttribute,
}

// IndexAttribute returns the attribute covered by the named index, or
// ErrUnknownIndex.
func IndexAttribute(index string) (string, error) {
	attr, ok := indexAttributes[index]
	if !ok {
		return "", ErrUnknownIndex
	}

	return attr, nil
}

// Item is a stored record. The primary key lives under KeyAttribute.
type Item map[string]string

// Key returns the item's primary key.
func (it Item) Key() string {
	return it[KeyAttribute]
}

// Clone returns an independent copy of the item.
func (it Item) Clone() Item {
	if it == nil {
		return nil
	}

	return maps.Clone(it)
}

// Condition guards an Update.
type Condition int

// Update conditions.
const (
	// Always applies the update, creating the item if needed.
	Always Condition = iota
	// MustExist fails with ErrConditionFailed when no item exists at the key.
	MustExist
)

// Store is the persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the item at key, or ErrNotFound.
	Get(ctx context.Context, key string) (Item, error)
	// Put writes the item unconditionally, replacing any existing item.
	Put(ctx context.Context, item Item) error
	// Update merges fields into the item at key subject to cond.
	Update(ctx context.Context, key string, fields map[string]string, cond Condition) error
	// Query returns the primary key of the first item (in key order) whose
	// indexed attribute equals value, or ErrNotFound.
	Query(ctx context.Context, index, attribute, value string) (string, error)
	// Close releases backend resources.
	Close() error
}

// CheckQuery validates that attribute is the one covered by index. Backends
// call it before running a query.
func CheckQuery(index, attribute string) error {
	want, err := IndexAttribute(index)
	if err != nil {
		return err
	}

	if want != attribute {
		return ErrUnknownIndex
	}

	return nil
}
