package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/openmotion/drivesim/internal/geom"
	"github.com/openmotion/drivesim/internal/scene"
)

// SQLiteSceneStore implements SceneStore using SQLite for persistence.
type SQLiteSceneStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteSceneStore opens (creating if needed) the scene database at path.
// The parent directory is created if missing.
func NewSQLiteSceneStore(path string) (*SQLiteSceneStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteSceneStore{db: db, dbPath: path}, nil
}

// PutScene inserts a scene, replacing any existing scene with the same ID
// in a single transaction.
func (s *SQLiteSceneStore) PutScene(ctx context.Context, sc *scene.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid scene: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Replacing keeps the original dataset index: reuse the scene_key if the
	// ID already exists.
	var key int64
	err = tx.QueryRowContext(ctx, `SELECT scene_key FROM scenes WHERE id = ?`, sc.ID).Scan(&key)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx,
			`INSERT INTO scenes (id, name, tick, ego_length, ego_width, imported_at) VALUES (?, ?, ?, ?, ?, ?)`,
			sc.ID, sc.Name, sc.Tick, sc.EgoLength, sc.EgoWidth, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert scene %s: %w", sc.ID, err)
		}
		key, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read scene key: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up scene %s: %w", sc.ID, err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE scenes SET name = ?, tick = ?, ego_length = ?, ego_width = ? WHERE scene_key = ?`,
			sc.Name, sc.Tick, sc.EgoLength, sc.EgoWidth, key); err != nil {
			return fmt.Errorf("failed to update scene %s: %w", sc.ID, err)
		}
		for _, table := range []string{"frames", "frame_agents", "lanes", "crosswalks"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE scene_key = ?`, key); err != nil {
				return fmt.Errorf("failed to clear %s for scene %s: %w", table, sc.ID, err)
			}
		}
	}

	for _, f := range sc.Frames {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO frames (scene_key, frame_index, time, ego_x, ego_y, ego_yaw) VALUES (?, ?, ?, ?, ?, ?)`,
			key, f.Index, f.Time, f.Ego.X, f.Ego.Y, f.Ego.Yaw); err != nil {
			return fmt.Errorf("failed to insert frame %d: %w", f.Index, err)
		}
		for _, a := range f.Agents {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO frame_agents (scene_key, frame_index, track_id, x, y, yaw, length, width, vx, vy)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				key, f.Index, a.TrackID, a.Pose.X, a.Pose.Y, a.Pose.Yaw, a.Length, a.Width, a.Velocity.X, a.Velocity.Y); err != nil {
				return fmt.Errorf("failed to insert agent %d at frame %d: %w", a.TrackID, f.Index, err)
			}
		}
	}

	for _, l := range sc.Map.Lanes {
		center, err := json.Marshal(l.Centerline)
		if err != nil {
			return fmt.Errorf("failed to marshal lane %s: %w", l.ID, err)
		}
		left, _ := json.Marshal(l.LeftBound)
		right, _ := json.Marshal(l.RightBound)
		succ, _ := json.Marshal(l.Successors)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lanes (scene_key, id, centerline, left_bound, right_bound, successors) VALUES (?, ?, ?, ?, ?, ?)`,
			key, l.ID, string(center), string(left), string(right), string(succ)); err != nil {
			return fmt.Errorf("failed to insert lane %s: %w", l.ID, err)
		}
	}
	for _, cw := range sc.Map.Crosswalks {
		poly, err := json.Marshal(cw.Polygon)
		if err != nil {
			return fmt.Errorf("failed to marshal crosswalk %s: %w", cw.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO crosswalks (scene_key, id, polygon) VALUES (?, ?, ?)`,
			key, cw.ID, string(poly)); err != nil {
			return fmt.Errorf("failed to insert crosswalk %s: %w", cw.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scene %s: %w", sc.ID, err)
	}
	return nil
}

// GetScene returns the scene with the given ID.
func (s *SQLiteSceneStore) GetScene(ctx context.Context, id string) (*scene.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var key int64
	err := s.db.QueryRowContext(ctx, `SELECT scene_key FROM scenes WHERE id = ?`, id).Scan(&key)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scene %q: %w", id, ErrSceneNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up scene %s: %w", id, err)
	}
	return s.loadScene(ctx, key)
}

// SceneAt returns the scene at the given dataset index (import order).
func (s *SQLiteSceneStore) SceneAt(ctx context.Context, index int) (*scene.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 {
		return nil, fmt.Errorf("scene index %d: %w", index, ErrSceneNotFound)
	}

	var key int64
	err := s.db.QueryRowContext(ctx,
		`SELECT scene_key FROM scenes ORDER BY scene_key LIMIT 1 OFFSET ?`, index).Scan(&key)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scene index %d: %w", index, ErrSceneNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up scene index %d: %w", index, err)
	}
	return s.loadScene(ctx, key)
}

// SceneIDs returns all scene IDs in dataset-index order.
func (s *SQLiteSceneStore) SceneIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM scenes ORDER BY scene_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scene IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan scene ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of scenes in the store.
func (s *SQLiteSceneStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scenes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scenes: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteSceneStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// loadScene reads a full scene back from its tables. Callers hold the lock.
func (s *SQLiteSceneStore) loadScene(ctx context.Context, key int64) (*scene.Scene, error) {
	sc := &scene.Scene{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, tick, ego_length, ego_width FROM scenes WHERE scene_key = ?`, key).
		Scan(&sc.ID, &sc.Name, &sc.Tick, &sc.EgoLength, &sc.EgoWidth)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene %d: %w", key, err)
	}

	frames, err := s.db.QueryContext(ctx,
		`SELECT frame_index, time, ego_x, ego_y, ego_yaw FROM frames WHERE scene_key = ? ORDER BY frame_index`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load frames: %w", err)
	}
	defer frames.Close()
	for frames.Next() {
		var f scene.Frame
		if err := frames.Scan(&f.Index, &f.Time, &f.Ego.X, &f.Ego.Y, &f.Ego.Yaw); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		sc.Frames = append(sc.Frames, f)
	}
	if err := frames.Err(); err != nil {
		return nil, err
	}

	agents, err := s.db.QueryContext(ctx,
		`SELECT frame_index, track_id, x, y, yaw, length, width, vx, vy
		 FROM frame_agents WHERE scene_key = ? ORDER BY frame_index, track_id`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load agents: %w", err)
	}
	defer agents.Close()
	for agents.Next() {
		var idx int
		var a scene.AgentState
		if err := agents.Scan(&idx, &a.TrackID, &a.Pose.X, &a.Pose.Y, &a.Pose.Yaw,
			&a.Length, &a.Width, &a.Velocity.X, &a.Velocity.Y); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		if idx < 0 || idx >= len(sc.Frames) {
			return nil, fmt.Errorf("agent row references frame %d of %d", idx, len(sc.Frames))
		}
		sc.Frames[idx].Agents = append(sc.Frames[idx].Agents, a)
	}
	if err := agents.Err(); err != nil {
		return nil, err
	}

	lanes, err := s.db.QueryContext(ctx,
		`SELECT id, centerline, left_bound, right_bound, successors FROM lanes WHERE scene_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load lanes: %w", err)
	}
	defer lanes.Close()
	for lanes.Next() {
		var l scene.Lane
		var center, left, right, succ sql.NullString
		if err := lanes.Scan(&l.ID, &center, &left, &right, &succ); err != nil {
			return nil, fmt.Errorf("failed to scan lane: %w", err)
		}
		if err := unmarshalJSON(center, &l.Centerline); err != nil {
			return nil, fmt.Errorf("lane %s centerline: %w", l.ID, err)
		}
		if err := unmarshalJSON(left, &l.LeftBound); err != nil {
			return nil, fmt.Errorf("lane %s left bound: %w", l.ID, err)
		}
		if err := unmarshalJSON(right, &l.RightBound); err != nil {
			return nil, fmt.Errorf("lane %s right bound: %w", l.ID, err)
		}
		if err := unmarshalJSON(succ, &l.Successors); err != nil {
			return nil, fmt.Errorf("lane %s successors: %w", l.ID, err)
		}
		sc.Map.Lanes = append(sc.Map.Lanes, l)
	}
	if err := lanes.Err(); err != nil {
		return nil, err
	}

	crosswalks, err := s.db.QueryContext(ctx,
		`SELECT id, polygon FROM crosswalks WHERE scene_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load crosswalks: %w", err)
	}
	defer crosswalks.Close()
	for crosswalks.Next() {
		var cw scene.Crosswalk
		var poly string
		if err := crosswalks.Scan(&cw.ID, &poly); err != nil {
			return nil, fmt.Errorf("failed to scan crosswalk: %w", err)
		}
		var pts geom.Polyline
		if err := json.Unmarshal([]byte(poly), &pts); err != nil {
			return nil, fmt.Errorf("crosswalk %s polygon: %w", cw.ID, err)
		}
		cw.Polygon = pts
		sc.Map.Crosswalks = append(sc.Map.Crosswalks, cw)
	}
	if err := crosswalks.Err(); err != nil {
		return nil, err
	}

	return sc, nil
}

func unmarshalJSON[T any](v sql.NullString, dst *T) error {
	if !v.Valid || v.String == "" || v.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(v.String), dst)
}
