// Package db keeps the ground station event log: link state transitions,
// intrusion escalations and control commands. Calibration is never stored.
package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the SQLite database at path and applies
// pending migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}

// LinkEvent is one link state transition.
type LinkEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Link       string    `json:"link"`
	State      string    `json:"state"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Intrusion is a point whose verdict escalated to caution or alarm.
type Intrusion struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Angle          float64   `json:"angle"`
	Distance       float64   `json:"distance"`
	RenderDistance float64   `json:"render_distance"`
	Verdict        string    `json:"verdict"`
	Threshold      float64   `json:"threshold"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Command is one control command sent to the rig.
type Command struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Command    string    `json:"command"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (db *DB) InsertLinkEvent(ctx context.Context, e LinkEvent) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO link_events (event_id, session_id, link, state, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Link, e.State, unixSeconds(e.RecordedAt),
	)
	return err
}

func (db *DB) InsertIntrusion(ctx context.Context, e Intrusion) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO intrusions (
			event_id, session_id, angle, distance, render_distance, verdict, threshold, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Angle, e.Distance, e.RenderDistance, e.Verdict, e.Threshold, unixSeconds(e.RecordedAt),
	)
	return err
}

func (db *DB) InsertCommand(ctx context.Context, e Command) error {
	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO commands (event_id, session_id, command, error, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Command, errText, unixSeconds(e.RecordedAt),
	)
	return err
}

// RecentLinkEvents returns up to limit events, newest first.
func (db *DB) RecentLinkEvents(ctx context.Context, limit int) ([]LinkEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT event_id, session_id, link, state, recorded_at
		FROM link_events ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []LinkEvent
	for rows.Next() {
		var e LinkEvent
		var at float64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Link, &e.State, &at); err != nil {
			return nil, err
		}
		e.RecordedAt = fromUnixSeconds(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentIntrusions returns up to limit intrusions, newest first.
func (db *DB) RecentIntrusions(ctx context.Context, limit int) ([]Intrusion, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT event_id, session_id, angle, distance, render_distance, verdict, threshold, recorded_at
		FROM intrusions ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Intrusion
	for rows.Next() {
		var e Intrusion
		var at float64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Angle, &e.Distance, &e.RenderDistance,
			&e.Verdict, &e.Threshold, &at); err != nil {
			return nil, err
		}
		e.RecordedAt = fromUnixSeconds(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentCommands returns up to limit commands, newest first.
func (db *DB) RecentCommands(ctx context.Context, limit int) ([]Command, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT event_id, session_id, command, error, recorded_at
		FROM commands ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Command
	for rows.Next() {
		var e Command
		var errText sql.NullString
		var at float64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Command, &errText, &at); err != nil {
			return nil, err
		}
		e.Error = errText.String
		e.RecordedAt = fromUnixSeconds(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// IntrusionCounts returns the number of intrusions per verdict.
func (db *DB) IntrusionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT verdict, COUNT(*) FROM intrusions GROUP BY verdict`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var v string
		var n int
		if err := rows.Scan(&v, &n); err != nil {
			return nil, err
		}
		counts[v] = n
	}
	return counts, rows.Err()
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Ground station event log",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the event log now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("groundstation-backup-%d.db", time.Now().UnixNano()))
		if _, err := db.DB.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("Failed to stream backup: %v", err)
		}
	}))
}
