package locker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Drrein86/lockerweb-core/internal/infrastructure/database"
)

// Store persists locker state to the SQLite mirror tables. It is the slow
// half of the mirror; AsyncMirror sits in front of it so device message
// handling never waits on disk.
type Store struct {
	db *database.DB
}

// NewStore creates a store over an opened database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// UpsertLocker writes a locker row and all of its cell rows in one
// transaction. The mirror holds last-write-wins copies, so a plain upsert
// per entity is enough.
func (s *Store) UpsertLocker(ctx context.Context, l Locker) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mirror tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	lastSeen := l.LastSeen.UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lockers (device_id, address, online, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			address    = excluded.address,
			online     = excluded.online,
			last_seen  = excluded.last_seen,
			updated_at = excluded.updated_at`,
		l.DeviceID, l.Address, boolToInt(l.Online), lastSeen, now, now)
	if err != nil {
		return fmt.Errorf("upsert locker %s: %w", l.DeviceID, err)
	}

	for cellID, c := range l.Cells {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cells (locker_id, cell_id, size, locked, has_package, package_id, opened, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (locker_id, cell_id) DO UPDATE SET
				size        = excluded.size,
				locked      = excluded.locked,
				has_package = excluded.has_package,
				package_id  = excluded.package_id,
				opened      = excluded.opened,
				updated_at  = excluded.updated_at`,
			l.DeviceID, cellID, c.Size, boolToInt(c.Locked), boolToInt(c.HasPackage),
			c.PackageID, boolToInt(c.Opened), now)
		if err != nil {
			return fmt.Errorf("upsert cell %s/%s: %w", l.DeviceID, cellID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mirror tx: %w", err)
	}
	return nil
}

// ListLockers reads the mirrored fleet back out, cells included. Used by
// operational queries and tests; the live registry never consults it.
func (s *Store) ListLockers(ctx context.Context) ([]Locker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, address, online, last_seen
		FROM lockers ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list lockers: %w", err)
	}
	defer rows.Close()

	var lockers []Locker
	for rows.Next() {
		var l Locker
		var address, lastSeen sql.NullString
		var online int
		if err := rows.Scan(&l.DeviceID, &address, &online, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan locker: %w", err)
		}
		l.Address = address.String
		l.Online = online != 0
		if lastSeen.Valid {
			if ts, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
				l.LastSeen = ts
			}
		}
		l.Cells = make(map[string]Cell)
		lockers = append(lockers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list lockers: %w", err)
	}

	for i := range lockers {
		if err := s.loadCells(ctx, &lockers[i]); err != nil {
			return nil, err
		}
	}
	return lockers, nil
}

func (s *Store) loadCells(ctx context.Context, l *Locker) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cell_id, size, locked, has_package, package_id, opened
		FROM cells WHERE locker_id = ? ORDER BY cell_id`, l.DeviceID)
	if err != nil {
		return fmt.Errorf("load cells for %s: %w", l.DeviceID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cellID string
		var size, packageID sql.NullString
		var locked, hasPackage, opened int
		if err := rows.Scan(&cellID, &size, &locked, &hasPackage, &packageID, &opened); err != nil {
			return fmt.Errorf("scan cell: %w", err)
		}
		l.Cells[cellID] = Cell{
			Size:       size.String,
			Locked:     locked != 0,
			HasPackage: hasPackage != 0,
			PackageID:  packageID.String,
			Opened:     opened != 0,
		}
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
