// Package backup produces point-in-time copies of the state store on a
// schedule and on demand, then enforces retention. It is grounded on the
// teacher's tiered backup service, generalized from four fixed cadences
// (hourly/daily/weekly/monthly) and seven fan-out database names down to one
// configurable interval against the one embedded store this module owns.
package backup

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/aristath/trading-core/internal/database"
)

const (
	// LabelManual marks an operator-triggered backup.
	LabelManual = "manual"
	// LabelPeriodic marks a scheduler-triggered backup.
	LabelPeriodic = "periodic"
	// LabelBeforeRestore marks the safety snapshot Restore takes before
	// overwriting the live database.
	LabelBeforeRestore = "before_restore"
)

// Config controls backup cadence and retention.
type Config struct {
	Enabled        bool
	IntervalHours  float64
	MaxBackups     int
	BackupDir      string
	DatabaseStem   string // filename stem used to build backup names, e.g. "trading"
}

// Manager snapshots one *database.DB on an interval and on demand.
type Manager struct {
	db     *database.DB
	cfg    Config
	log    zerolog.Logger
	lastOK time.Time
}

// New constructs a Manager for db. cfg.MaxBackups defaults to 7 and
// cfg.DatabaseStem to "trading" if unset.
func New(db *database.DB, cfg Config, log zerolog.Logger) *Manager {
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 7
	}
	if cfg.DatabaseStem == "" {
		cfg.DatabaseStem = "trading"
	}
	return &Manager{db: db, cfg: cfg, log: log.With().Str("component", "backup").Logger()}
}

// Tick is called periodically (every 60 s by cmd/server's backup loop). It backs
// up only if cfg.IntervalHours has elapsed since the last successful
// backup; a failure is logged and retried on the next tick without
// propagating, per §4.2's failure semantics ("scheduler never blocks on
// it").
func (m *Manager) Tick() {
	if !m.cfg.Enabled {
		return
	}
	if !m.lastOK.IsZero() && time.Since(m.lastOK) < time.Duration(m.cfg.IntervalHours*float64(time.Hour)) {
		return
	}
	if _, err := m.CreateBackup(LabelPeriodic); err != nil {
		m.log.Error().Err(err).Msg("periodic backup failed, will retry next tick")
		return
	}
	m.lastOK = time.Now()
}

// CreateBackup produces a labeled, integrity-checked copy of the database
// and enforces retention. It is idempotent on failure: a failed attempt
// leaves no partial file behind.
func (m *Manager) CreateBackup(label string) (string, error) {
	if err := os.MkdirAll(m.cfg.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("backup: failed to create backup directory: %w", err)
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	name := fmt.Sprintf("%s_%s_%s.db", m.cfg.DatabaseStem, label, timestamp)
	path := filepath.Join(m.cfg.BackupDir, name)

	if err := m.snapshot(path); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("backup: snapshot failed: %w", err)
	}

	if err := m.verify(path); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("backup: verification failed: %w", err)
	}

	if err := m.rotate(); err != nil {
		m.log.Warn().Err(err).Msg("backup retention rotation failed; backup itself succeeded")
	}

	m.log.Info().Str("path", path).Str("label", label).Msg("backup created")
	return path, nil
}

// snapshot uses VACUUM INTO so the copy is never observed mid-write: it is
// a transactionally consistent, defragmented image of the live database,
// independent of WAL state.
func (m *Manager) snapshot(path string) error {
	escaped := strings.ReplaceAll(path, "'", "''")
	_, err := m.db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", escaped))
	if err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}
	return nil
}

func (m *Manager) verify(path string) error {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup for verification: %w", err)
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// rotate lists backups matching the configured stem, sorts by mtime
// descending, and unlinks everything beyond position MaxBackups.
func (m *Manager) rotate() error {
	backups, err := m.listBackups()
	if err != nil {
		return err
	}
	if len(backups) <= m.cfg.MaxBackups {
		return nil
	}
	for _, b := range backups[m.cfg.MaxBackups:] {
		if err := os.Remove(b.path); err != nil {
			m.log.Warn().Str("path", b.path).Err(err).Msg("failed to delete rotated backup")
			continue
		}
		m.log.Debug().Str("path", b.path).Msg("rotated backup deleted")
	}
	return nil
}

type backupFile struct {
	path    string
	modTime time.Time
}

func (m *Manager) listBackups() ([]backupFile, error) {
	entries, err := os.ReadDir(m.cfg.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	prefix := m.cfg.DatabaseStem + "_"
	var out []backupFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, backupFile{path: filepath.Join(m.cfg.BackupDir, entry.Name()), modTime: info.ModTime()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].modTime.After(out[j].modTime) })
	return out, nil
}

// Restore replaces the live database with the one at path, first taking a
// before_restore safety backup of the current state. Returns false only
// when path does not exist; any other failure is returned as an error and
// the before_restore backup is left in place for manual recovery.
func (m *Manager) Restore(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("backup: failed to stat restore source: %w", err)
	}

	if _, err := m.CreateBackup(LabelBeforeRestore); err != nil {
		return false, fmt.Errorf("backup: pre-restore safety snapshot failed, aborting restore: %w", err)
	}

	dest := m.db.Path()
	tmp := dest + ".restoring"
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("backup: failed to read restore source: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return false, fmt.Errorf("backup: failed to stage restore: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return false, fmt.Errorf("backup: atomic rename failed during restore: %w", err)
	}

	// The live pool's already-open connections keep their file descriptors
	// pointed at the pre-rename file (they can live up to ConnMaxLifetime);
	// without reopening, the rest of the process keeps reading/writing the
	// old data until a connection happens to recycle.
	if err := m.db.Reopen(); err != nil {
		return false, fmt.Errorf("backup: restore succeeded but reconnecting to the database failed: %w", err)
	}

	m.log.Info().Str("source", path).Msg("database restored")
	return true, nil
}

// Stats reports current backup directory statistics.
type Stats struct {
	Count     int
	TotalSize int64
	Latest    string
	DBSize    int64
}

// GetStats computes current backup directory statistics plus the live
// database's on-disk size.
func (m *Manager) GetStats() (Stats, error) {
	backups, err := m.listBackups()
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	stats.Count = len(backups)
	for _, b := range backups {
		if info, err := os.Stat(b.path); err == nil {
			stats.TotalSize += info.Size()
		}
	}
	if len(backups) > 0 {
		stats.Latest = backups[0].path
	}
	if dbStats, err := m.db.GetStats(); err == nil {
		stats.DBSize = dbStats.SizeBytes
	}
	return stats, nil
}
