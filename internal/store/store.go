// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store keeps the product database: devices, calibration sessions
// with their per-axis coefficients, and recording validity reports.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/relabs-tech/birther/internal/calibration"
	"github.com/relabs-tech/birther/internal/checkide"
	"github.com/relabs-tech/birther/internal/imu"
	"github.com/relabs-tech/birther/internal/recording"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps SQLite access.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			_ = cerr
		}
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			serial TEXT PRIMARY KEY,
			part_number TEXT NOT NULL,
			mcu_type TEXT NOT NULL,
			hw_rev TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS calibration_sessions (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			serial TEXT NOT NULL REFERENCES devices(serial),
			created_at TEXT NOT NULL,
			gravity_x REAL NOT NULL,
			gravity_y REAL NOT NULL,
			gravity_z REAL NOT NULL,
			files TEXT NOT NULL,
			result_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS calibration_axes (
			session_id TEXT NOT NULL,
			accel TEXT NOT NULL,
			axis TEXT NOT NULL,
			channel_id INTEGER NOT NULL,
			sensor TEXT NOT NULL,
			file TEXT NOT NULL,
			amplitude REAL NOT NULL,
			quiet_mean REAL NOT NULL,
			gain REAL NOT NULL,
			offset_g REAL NOT NULL,
			PRIMARY KEY (session_id, accel, axis)
		);`,
		`CREATE TABLE IF NOT EXISTS validity_reports (
			id INTEGER PRIMARY KEY,
			file TEXT NOT NULL,
			serial TEXT NOT NULL,
			checked_at TEXT NOT NULL,
			passed INTEGER NOT NULL,
			lines TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calibration_sessions_serial ON calibration_sessions(serial, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_validity_reports_serial ON validity_reports(serial, checked_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CalibrationSummary is one row of the session list.
type CalibrationSummary struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Serial     string    `json:"serial"`
	PartNumber string    `json:"part_number"`
	Created    time.Time `json:"created"`
	Gravity    imu.XYZ   `json:"gravity"`
	Files      []string  `json:"files"`
}

// AxisRow is the stored coefficient set of one axis of one accelerometer.
type AxisRow struct {
	Accel     string  `json:"accel"`
	Axis      string  `json:"axis"`
	ChannelID int     `json:"channel_id"`
	Sensor    string  `json:"sensor"`
	File      string  `json:"file"`
	Amplitude float64 `json:"amplitude"`
	QuietMean float64 `json:"quiet_mean"`
	Gain      float64 `json:"gain"`
	Offset    float64 `json:"offset"`
}

// CalibrationRecord is a stored session with its coefficients.
type CalibrationRecord struct {
	CalibrationSummary
	Axes   []AxisRow           `json:"axes"`
	Result *calibration.Result `json:"result"`
}

func (s *Store) upsertDevice(ctx context.Context, tx *sql.Tx, dev recording.DeviceInfo, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO devices (serial, part_number, mcu_type, hw_rev, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(serial) DO UPDATE SET part_number = excluded.part_number, mcu_type = excluded.mcu_type,
		 hw_rev = excluded.hw_rev, updated_at = excluded.updated_at`,
		dev.Serial, dev.PartNumber, dev.MCUType, dev.HwRev, at.UTC().Format(time.RFC3339Nano))
	return err
}

// SaveCalibration stores a finished calibration and returns its row id.
func (s *Store) SaveCalibration(ctx context.Context, res *calibration.Result) (id int64, err error) {
	g, err := res.Gravity.Values()
	if err != nil {
		return 0, fmt.Errorf("gravity: %w", err)
	}
	blob, err := json.Marshal(res)
	if err != nil {
		return 0, err
	}
	files, err := json.Marshal(res.Files)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				_ = rerr
			}
		}
	}()

	if err = s.upsertDevice(ctx, tx, res.Device, res.Created); err != nil {
		return 0, err
	}
	r, err := tx.ExecContext(ctx,
		`INSERT INTO calibration_sessions (session_id, serial, created_at, gravity_x, gravity_y, gravity_z, files, result_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID.String(), res.Device.Serial, res.Created.UTC().Format(time.RFC3339Nano),
		g[0], g[1], g[2], string(files), string(blob))
	if err != nil {
		return 0, err
	}
	if id, err = r.LastInsertId(); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO calibration_axes (session_id, accel, axis, channel_id, sensor, file, amplitude, quiet_mean, gain, offset_g)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			_ = cerr
		}
	}()
	for _, lib := range res.Libraries() {
		for i, a := range lib.Axes {
			if a == nil {
				continue
			}
			if _, err = stmt.ExecContext(ctx, res.SessionID.String(), lib.Name, imu.AxisName(i), lib.ChannelID,
				lib.Sensor, lib.Files[i], a.Amplitude, a.QuietMean, a.Gain, a.Offset); err != nil {
				return 0, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

const summaryColumns = `c.id, c.session_id, c.serial, COALESCE(d.part_number, ''), c.created_at,
	c.gravity_x, c.gravity_y, c.gravity_z, c.files`

func scanSummary(row interface{ Scan(...any) error }) (CalibrationSummary, error) {
	var (
		sum     CalibrationSummary
		created string
		g       [3]float64
		files   string
	)
	if err := row.Scan(&sum.ID, &sum.SessionID, &sum.Serial, &sum.PartNumber, &created, &g[0], &g[1], &g[2], &files); err != nil {
		return sum, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return sum, err
	}
	sum.Created = t
	sum.Gravity = imu.NewXYZ(g[0], g[1], g[2])
	err = json.Unmarshal([]byte(files), &sum.Files)
	return sum, err
}

// ListCalibrations returns sessions newest first, optionally for one serial.
func (s *Store) ListCalibrations(ctx context.Context, serial string) ([]CalibrationSummary, error) {
	clauses := []string{"1=1"}
	var args []any
	if serial != "" {
		clauses = append(clauses, "c.serial = ?")
		args = append(args, serial)
	}
	query := fmt.Sprintf(`SELECT %s FROM calibration_sessions c
		LEFT JOIN devices d ON d.serial = c.serial
		WHERE %s
		ORDER BY c.created_at DESC, c.id DESC`, summaryColumns, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			_ = cerr
		}
	}()

	var out []CalibrationSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCalibration loads one session by its session id.
func (s *Store) GetCalibration(ctx context.Context, sessionID string) (*CalibrationRecord, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s, c.result_json FROM calibration_sessions c
		LEFT JOIN devices d ON d.serial = c.serial
		WHERE c.session_id = ?`, summaryColumns), sessionID)

	var (
		rec     CalibrationRecord
		created string
		g       [3]float64
		files   string
		blob    string
	)
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.Serial, &rec.PartNumber, &created, &g[0], &g[1], &g[2], &files, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calibration %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if rec.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, err
	}
	rec.Gravity = imu.NewXYZ(g[0], g[1], g[2])
	if err := json.Unmarshal([]byte(files), &rec.Files); err != nil {
		return nil, err
	}
	rec.Result = &calibration.Result{}
	if err := json.Unmarshal([]byte(blob), rec.Result); err != nil {
		return nil, fmt.Errorf("calibration %s: decode result: %w", sessionID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT accel, axis, channel_id, sensor, file, amplitude, quiet_mean, gain, offset_g
		 FROM calibration_axes WHERE session_id = ? ORDER BY accel, axis`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			_ = cerr
		}
	}()
	for rows.Next() {
		var a AxisRow
		if err := rows.Scan(&a.Accel, &a.Axis, &a.ChannelID, &a.Sensor, &a.File, &a.Amplitude, &a.QuietMean, &a.Gain, &a.Offset); err != nil {
			return nil, err
		}
		rec.Axes = append(rec.Axes, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ValidityRecord is a stored validity check of one recording.
type ValidityRecord struct {
	ID      int64     `json:"id"`
	File    string    `json:"file"`
	Serial  string    `json:"serial"`
	Checked time.Time `json:"checked"`
	Passed  bool      `json:"passed"`
	Lines   []string  `json:"lines"`
}

// SaveValidity stores the outcome of a validity check.
func (s *Store) SaveValidity(ctx context.Context, file, serial string, at time.Time, passed bool, rep checkide.Report) (int64, error) {
	lines := rep.Lines()
	if lines == nil {
		lines = []string{}
	}
	blob, err := json.Marshal(lines)
	if err != nil {
		return 0, err
	}
	r, err := s.db.ExecContext(ctx,
		`INSERT INTO validity_reports (file, serial, checked_at, passed, lines) VALUES (?, ?, ?, ?, ?)`,
		file, serial, at.UTC().Format(time.RFC3339Nano), passed, string(blob))
	if err != nil {
		return 0, err
	}
	return r.LastInsertId()
}

// ListValidity returns validity checks newest first, optionally for one serial.
func (s *Store) ListValidity(ctx context.Context, serial string) ([]ValidityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file, serial, checked_at, passed, lines FROM validity_reports
		 WHERE (? = '' OR serial = ?)
		 ORDER BY checked_at DESC, id DESC`, serial, serial)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			_ = cerr
		}
	}()

	var out []ValidityRecord
	for rows.Next() {
		var (
			v       ValidityRecord
			checked string
			lines   string
		)
		if err := rows.Scan(&v.ID, &v.File, &v.Serial, &checked, &v.Passed, &lines); err != nil {
			return nil, err
		}
		if v.Checked, err = time.Parse(time.RFC3339Nano, checked); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(lines), &v.Lines); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
