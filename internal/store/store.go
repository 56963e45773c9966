// Package store provides scene-dataset storage implementations.
package store

import (
	"context"
	"errors"

	"github.com/openmotion/drivesim/internal/scene"
)

// ErrSceneNotFound is returned when a scene ID or index does not exist.
var ErrSceneNotFound = errors.New("scene not found")

// SceneStore defines the interface for storing and retrieving driving scenes.
//
// Scenes are addressable both by ID and by a stable dataset index. The index
// order is the import order and does not change while the store is open, so a
// rollout over indexes [0, Count) visits every scene exactly once.
type SceneStore interface {
	// PutScene inserts a scene, replacing any existing scene with the same ID.
	PutScene(ctx context.Context, s *scene.Scene) error

	// GetScene returns the scene with the given ID.
	// Returns ErrSceneNotFound if it does not exist.
	GetScene(ctx context.Context, id string) (*scene.Scene, error)

	// SceneAt returns the scene at the given dataset index.
	// Returns ErrSceneNotFound for out-of-range indexes.
	SceneAt(ctx context.Context, index int) (*scene.Scene, error)

	// SceneIDs returns all scene IDs in dataset-index order.
	SceneIDs(ctx context.Context) ([]string, error)

	// Count returns the number of scenes in the store.
	Count(ctx context.Context) (int, error)

	// Close releases underlying resources.
	Close() error
}
