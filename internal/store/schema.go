package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the SQLite scene store.
const schemaV1 = `
-- One row per scene. Frames, agents and map geometry hang off scene_key.
CREATE TABLE IF NOT EXISTS scenes (
    scene_key INTEGER PRIMARY KEY AUTOINCREMENT,  -- import order = dataset index order
    id TEXT NOT NULL UNIQUE,
    name TEXT,
    tick REAL NOT NULL,
    ego_length REAL NOT NULL,
    ego_width REAL NOT NULL,
    imported_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS frames (
    scene_key INTEGER NOT NULL REFERENCES scenes(scene_key) ON DELETE CASCADE,
    frame_index INTEGER NOT NULL,
    time REAL NOT NULL,
    ego_x REAL NOT NULL,
    ego_y REAL NOT NULL,
    ego_yaw REAL NOT NULL,
    PRIMARY KEY (scene_key, frame_index)
);

CREATE TABLE IF NOT EXISTS frame_agents (
    scene_key INTEGER NOT NULL REFERENCES scenes(scene_key) ON DELETE CASCADE,
    frame_index INTEGER NOT NULL,
    track_id INTEGER NOT NULL,
    x REAL NOT NULL,
    y REAL NOT NULL,
    yaw REAL NOT NULL,
    length REAL NOT NULL,
    width REAL NOT NULL,
    vx REAL NOT NULL DEFAULT 0,
    vy REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (scene_key, frame_index, track_id)
);
CREATE INDEX IF NOT EXISTS idx_frame_agents_frame ON frame_agents(scene_key, frame_index);

-- Map geometry is stored as JSON point arrays; it is read back whole per
-- scene, never queried by coordinate.
CREATE TABLE IF NOT EXISTS lanes (
    scene_key INTEGER NOT NULL REFERENCES scenes(scene_key) ON DELETE CASCADE,
    id TEXT NOT NULL,
    centerline TEXT NOT NULL,   -- JSON array of points
    left_bound TEXT,
    right_bound TEXT,
    successors TEXT,            -- JSON array of lane IDs
    PRIMARY KEY (scene_key, id)
);

CREATE TABLE IF NOT EXISTS crosswalks (
    scene_key INTEGER NOT NULL REFERENCES scenes(scene_key) ON DELETE CASCADE,
    id TEXT NOT NULL,
    polygon TEXT NOT NULL,      -- JSON array of points
    PRIMARY KEY (scene_key, id)
);

-- Schema version
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema creates the database schema if it does not exist.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		SchemaVersion, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return nil
}
