package drift

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// schema.sql creates the corrections table used by HistoryStore.
//
//go:embed schema.sql
var schemaSQL string

// CorrectionRecord is one published correction as stored in the history
type CorrectionRecord struct {
	ID              string    `json:"id"`
	PublishedAt     time.Time `json:"publishedAt"`
	MapFrame        string    `json:"mapFrame"`
	OdomFrame       string    `json:"odomFrame"`
	MarkerID        int       `json:"markerId"`
	X               float64   `json:"x"`
	Y               float64   `json:"y"`
	YawDeg          float64   `json:"yawDeg"`
	StepTranslation float64   `json:"stepTranslation"`
	StepYawDeg      float64   `json:"stepYawDeg"`
}

// HistoryStore persists published corrections in SQLite
type HistoryStore struct {
	db *sql.DB
}

// OpenHistory opens (and if needed creates) the history database at path
func OpenHistory(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	log.Printf("[HISTORY] Recording corrections to %s", path)
	return &HistoryStore{db: db}, nil
}

// Record stores a published correction together with the gate decision that led to it
func (h *HistoryStore) Record(tf TransformStamped, markerID int, decision GateDecision) error {
	id := tf.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, _, yaw := EulerFromQuaternion(tf.Transform.Rotation)

	_, err := h.db.Exec(`
		INSERT INTO corrections (
			correction_id, published_unix_ns, map_frame, odom_frame, marker_id,
			x, y, yaw_deg, step_translation, step_yaw_deg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		tf.Header.Stamp.UnixNano(),
		tf.Header.FrameID,
		tf.ChildFrameID,
		markerID,
		tf.Transform.Translation.X,
		tf.Transform.Translation.Y,
		rad2deg(yaw),
		decision.StepTranslation,
		decision.StepYawDeg,
	)
	if err != nil {
		return fmt.Errorf("insert correction: %w", err)
	}
	return nil
}

// Recent returns up to limit corrections, newest first
func (h *HistoryStore) Recent(limit int) ([]CorrectionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := h.db.Query(`
		SELECT correction_id, published_unix_ns, map_frame, odom_frame, marker_id,
		       x, y, yaw_deg, step_translation, step_yaw_deg
		FROM corrections
		ORDER BY published_unix_ns DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	var out []CorrectionRecord
	for rows.Next() {
		var r CorrectionRecord
		var ns int64
		if err := rows.Scan(&r.ID, &ns, &r.MapFrame, &r.OdomFrame, &r.MarkerID,
			&r.X, &r.Y, &r.YawDeg, &r.StepTranslation, &r.StepYawDeg); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		r.PublishedAt = time.Unix(0, ns).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database
func (h *HistoryStore) Close() error {
	return h.db.Close()
}
