package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

const instanceColumns = `id, zone_id, start_time, duration,
  compass_zone_id, compass_x, compass_y, compass_z, compass_heading,
  safe_return_zone_id, safe_return_x, safe_return_y, safe_return_z, safe_return_heading,
  zone_in_zone_id, zone_in_x, zone_in_y, zone_in_z, zone_in_heading`

func bindingArgs(b domain.InstanceBinding) []any {
	args := []any{b.ZoneID, unixSeconds(b.StartTime), seconds(b.Duration)}
	for _, l := range []domain.Location{b.Compass, b.SafeReturn, b.ZoneIn} {
		args = append(args, l.ZoneID, l.X, l.Y, l.Z, l.Heading)
	}
	return args
}

// AllocateInstance inserts an instance row. A binding that already carries
// an id is upserted under that id.
func (s *Store) AllocateInstance(ctx context.Context, b domain.InstanceBinding) (uint32, error) {
	if b.IsBound() {
		if err := s.upsertInstance(ctx, s.db, b, true); err != nil {
			return 0, fmt.Errorf("sqlstore: allocate instance: %w", err)
		}
		return b.InstanceID, nil
	}

	var id uint32
	err := s.queryRow(ctx, s.db, `
INSERT INTO instances (zone_id, start_time, duration,
  compass_zone_id, compass_x, compass_y, compass_z, compass_heading,
  safe_return_zone_id, safe_return_x, safe_return_y, safe_return_z, safe_return_heading,
  zone_in_zone_id, zone_in_x, zone_in_y, zone_in_z, zone_in_heading)
VALUES (?,?,?, ?,?,?,?,?, ?,?,?,?,?, ?,?,?,?,?)
RETURNING id`, bindingArgs(b)...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: allocate instance: %w", err)
	}
	return id, nil
}

// ReleaseInstance deletes an instance row no expedition references.
func (s *Store) ReleaseInstance(ctx context.Context, instanceID uint32) error {
	if err := s.exec(ctx, s.db, `
DELETE FROM instances
WHERE id = ? AND NOT EXISTS (SELECT 1 FROM expeditions WHERE instance_id = instances.id)`, instanceID); err != nil {
		return fmt.Errorf("sqlstore: release instance %d: %w", instanceID, err)
	}
	return nil
}

// upsertInstance writes a binding under its own id. With overwrite unset an
// existing row is left untouched.
func (s *Store) upsertInstance(ctx context.Context, q execer, b domain.InstanceBinding, overwrite bool) error {
	conflict := `ON CONFLICT (id) DO NOTHING`
	if overwrite {
		conflict = `ON CONFLICT (id) DO UPDATE SET
  zone_id = excluded.zone_id, start_time = excluded.start_time, duration = excluded.duration,
  compass_zone_id = excluded.compass_zone_id, compass_x = excluded.compass_x,
  compass_y = excluded.compass_y, compass_z = excluded.compass_z, compass_heading = excluded.compass_heading,
  safe_return_zone_id = excluded.safe_return_zone_id, safe_return_x = excluded.safe_return_x,
  safe_return_y = excluded.safe_return_y, safe_return_z = excluded.safe_return_z,
  safe_return_heading = excluded.safe_return_heading,
  zone_in_zone_id = excluded.zone_in_zone_id, zone_in_x = excluded.zone_in_x,
  zone_in_y = excluded.zone_in_y, zone_in_z = excluded.zone_in_z, zone_in_heading = excluded.zone_in_heading`
	}
	args := append([]any{b.InstanceID}, bindingArgs(b)...)
	return s.exec(ctx, q, `
INSERT INTO instances (`+instanceColumns+`)
VALUES (?, ?,?,?, ?,?,?,?,?, ?,?,?,?,?, ?,?,?,?,?)
`+conflict, args...)
}

// LoadInstanceBindings returns the bindings found among instanceIDs.
func (s *Store) LoadInstanceBindings(ctx context.Context, instanceIDs []uint32) (map[uint32]domain.InstanceBinding, error) {
	out := make(map[uint32]domain.InstanceBinding, len(instanceIDs))
	if len(instanceIDs) == 0 {
		return out, nil
	}
	in, args := inList(instanceIDs)
	rows, err := s.query(ctx, s.db, `SELECT `+instanceColumns+` FROM instances WHERE id IN `+in, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load instances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b         domain.InstanceBinding
			start     int64
			durationS int64
		)
		if err := rows.Scan(&b.InstanceID, &b.ZoneID, &start, &durationS,
			&b.Compass.ZoneID, &b.Compass.X, &b.Compass.Y, &b.Compass.Z, &b.Compass.Heading,
			&b.SafeReturn.ZoneID, &b.SafeReturn.X, &b.SafeReturn.Y, &b.SafeReturn.Z, &b.SafeReturn.Heading,
			&b.ZoneIn.ZoneID, &b.ZoneIn.X, &b.ZoneIn.Y, &b.ZoneIn.Z, &b.ZoneIn.Heading,
		); err != nil {
			return nil, fmt.Errorf("sqlstore: scan instance: %w", err)
		}
		b.StartTime = fromUnix(start)
		b.Duration = fromSeconds(durationS)
		out[b.InstanceID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: load instances: %w", err)
	}
	return out, nil
}

// UpdateLocation replaces one waypoint of an instance.
func (s *Store) UpdateLocation(ctx context.Context, instanceID uint32, kind domain.LocationKind, loc domain.Location) error {
	switch kind {
	case domain.LocationCompass, domain.LocationSafeReturn, domain.LocationZoneIn:
	default:
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("location kind %d", kind))
	}
	query := fmt.Sprintf(
		`UPDATE instances SET %[1]s_zone_id = ?, %[1]s_x = ?, %[1]s_y = ?, %[1]s_z = ?, %[1]s_heading = ? WHERE id = ?`,
		kind.String())
	if err := s.exec(ctx, s.db, query, loc.ZoneID, loc.X, loc.Y, loc.Z, loc.Heading, instanceID); err != nil {
		return fmt.Errorf("sqlstore: update %s location: %w", kind, err)
	}
	return nil
}

// UpdateInstanceDuration stores a new lifetime.
func (s *Store) UpdateInstanceDuration(ctx context.Context, instanceID uint32, d time.Duration) error {
	if err := s.exec(ctx, s.db, `UPDATE instances SET duration = ? WHERE id = ?`, seconds(d), instanceID); err != nil {
		return fmt.Errorf("sqlstore: update duration: %w", err)
	}
	return nil
}
