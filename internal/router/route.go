package router

import (
	"context"
	"fmt"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

// Delivery invokes the success callback of one listener.
type Delivery[L any] func(listener L)

// Route turns an accepted envelope into a listener delivery. It runs off the
// receiving goroutine and may block on the object store. A returned error is
// reported through OnFailure.
type Route[L any] func(ctx context.Context, store dining.ObjectStore, env *dining.Envelope, objectID string) (Delivery[L], error)

// FetchAndDeliver builds the common route: fetch objectID as kind into a
// fresh T, then hand it to deliver.
func FetchAndDeliver[T any, L any](kind dining.ObjectKind, deliver func(listener L, obj *T)) Route[L] {
	return func(ctx context.Context, store dining.ObjectStore, _ *dining.Envelope, objectID string) (Delivery[L], error) {
		obj, err := Fetch[T](ctx, store, kind, objectID)
		if err != nil {
			return nil, err
		}
		return func(listener L) { deliver(listener, obj) }, nil
	}
}

// Fetch loads a single object and wraps store errors with the kind and id.
func Fetch[T any](ctx context.Context, store dining.ObjectStore, kind dining.ObjectKind, id string) (*T, error) {
	obj := new(T)
	if err := store.Fetch(ctx, kind, id, obj); err != nil {
		return nil, fmt.Errorf("fetch %s %q failed: %w", kind, id, err)
	}
	return obj, nil
}
