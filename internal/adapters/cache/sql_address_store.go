package cache

import (
	"context"
	"database/sql"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"dispatch-route-service/internal/ports"
	"errors"
	"fmt"
)

// SQLAddressStore is a Postgres-backed table mapping normalized addresses to
// coordinates. It outlives the session and is consulted below the session
// geocode cache.
type SQLAddressStore struct {
	DB *sql.DB
}

func NewSQLAddressStore(db *sql.DB) *SQLAddressStore {
	return &SQLAddressStore{DB: db}
}

// Fetch stored coordinates for the given addresses.
func (s *SQLAddressStore) GetMany(
	ctx context.Context,
	addresses []string,
) (_ map[string]ports.StoredAddress, err error) {
	defer obs.Time(ctx, "address.store.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("address store: db is nil")
	}

	uniq := uniqueAddresses(addresses)
	if len(uniq) == 0 {
		return map[string]ports.StoredAddress{}, nil
	}

	q := `
	SELECT address, lat, lng, display_name
	FROM geocode_cache
	WHERE address = ANY($1::text[]);
	`

	rows, err := s.DB.QueryContext(ctx, q, uniq)
	if err != nil {
		return nil, fmt.Errorf("get address store: query geocode_cache table: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ports.StoredAddress, len(uniq))
	for rows.Next() {
		var addr, name string
		var lat, lng float64
		if err := rows.Scan(&addr, &lat, &lng, &name); err != nil {
			return nil, fmt.Errorf("get address store: scan rows: %w", err)
		}
		out[addr] = ports.StoredAddress{
			Coordinates: domain.Coordinates{Lat: lat, Lng: lng},
			DisplayName: name,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get address store: row iteration: %w", err)
	}

	return out, nil
}

// Store address -> coordinate mappings, replacing existing rows.
func (s *SQLAddressStore) PutMany(ctx context.Context, results map[string]ports.StoredAddress) (err error) {
	defer obs.Time(ctx, "address.store.PutMany")(&err)

	if s.DB == nil {
		return errors.New("address store: db is nil")
	}

	if len(results) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert address store: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO geocode_cache (address, lat, lng, display_name, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (address) DO UPDATE
	SET lat = EXCLUDED.lat,
		lng = EXCLUDED.lng,
		display_name = EXCLUDED.display_name,
		updated_at = EXCLUDED.updated_at;
	`)
	if err != nil {
		return fmt.Errorf("insert address store: db prepare: %w", err)
	}
	defer stmt.Close()

	for addr, r := range results {
		if addr == "" {
			return fmt.Errorf("insert address store: empty address key")
		}
		if !r.Coordinates.Valid() {
			return fmt.Errorf("insert address store address=%q: invalid coordinates %+v", addr, r.Coordinates)
		}

		if _, err := stmt.ExecContext(ctx, addr, r.Coordinates.Lat, r.Coordinates.Lng, r.DisplayName); err != nil {
			return fmt.Errorf("insert address store address=%q: %w", addr, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert address store commit: %w", err)
	}

	return nil
}

// uniqueAddresses normalizes, drops empties and deduplicates, keeping order.
func uniqueAddresses(addresses []string) []string {
	seen := map[string]struct{}{}
	uniq := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = domain.NormalizeAddress(a)
		if a == "" {
			continue
		}

		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		uniq = append(uniq, a)
	}
	return uniq
}
