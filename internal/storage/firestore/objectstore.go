// Package firestore holds the Firestore-backed stores: dining objects keyed
// by kind and id, and the relay's per-channel device registry.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ObjectStore implements dining.ObjectRepository with one collection per kind.
type ObjectStore struct {
	client *firestore.Client
	prefix string
}

// NewObjectStore creates the store. A non-empty prefix is prepended to every
// collection name so several environments can share a project.
func NewObjectStore(client *firestore.Client, prefix string) *ObjectStore {
	return &ObjectStore{client: client, prefix: prefix}
}

func (s *ObjectStore) Fetch(ctx context.Context, kind dining.ObjectKind, id string, dest any) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s id", dining.ErrInvalidArgument, kind)
	}
	snap, err := s.doc(kind, id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s %q: %w", kind, id, dining.ErrNotFound)
		}
		return fmt.Errorf("firestore get %s %q failed: %w", kind, id, err)
	}
	if err := snap.DataTo(dest); err != nil {
		return fmt.Errorf("failed to decode %s %q: %w", kind, id, err)
	}
	return nil
}

func (s *ObjectStore) Save(ctx context.Context, kind dining.ObjectKind, id string, obj any) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s id", dining.ErrInvalidArgument, kind)
	}
	if _, err := s.doc(kind, id).Set(ctx, obj); err != nil {
		return fmt.Errorf("firestore set %s %q failed: %w", kind, id, err)
	}
	return nil
}

func (s *ObjectStore) doc(kind dining.ObjectKind, id string) *firestore.DocumentRef {
	return s.client.Collection(s.prefix + string(kind)).Doc(id)
}
