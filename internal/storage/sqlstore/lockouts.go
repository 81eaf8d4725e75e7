package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

// ============================================================================
// Expedition lockouts
// ============================================================================

const upsertLockout = `
INSERT INTO expedition_lockouts (expedition_id, event_name, expire_time, duration)
VALUES (?,?,?,?)
ON CONFLICT (expedition_id, event_name) DO UPDATE SET
  expire_time = excluded.expire_time,
  duration    = excluded.duration`

// InsertLockout inserts or overwrites the timer of its event.
func (s *Store) InsertLockout(ctx context.Context, expeditionID uint32, t domain.LockoutTimer) error {
	if err := s.exec(ctx, s.db, upsertLockout,
		expeditionID, t.EventName, unixSeconds(t.ExpireTime), seconds(t.Duration)); err != nil {
		return fmt.Errorf("sqlstore: insert lockout: %w", err)
	}
	return nil
}

// InsertLockouts inserts or overwrites several timers in one transaction.
func (s *Store) InsertLockouts(ctx context.Context, expeditionID uint32, ts []domain.LockoutTimer) error {
	if len(ts) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range ts {
			if err := s.exec(ctx, tx, upsertLockout,
				expeditionID, t.EventName, unixSeconds(t.ExpireTime), seconds(t.Duration)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlstore: insert lockouts: %w", err)
	}
	return nil
}

// DeleteLockout removes the timer of an event.
func (s *Store) DeleteLockout(ctx context.Context, expeditionID uint32, eventName string) error {
	if err := s.exec(ctx, s.db,
		`DELETE FROM expedition_lockouts WHERE expedition_id = ? AND event_name = ?`,
		expeditionID, eventName); err != nil {
		return fmt.Errorf("sqlstore: delete lockout: %w", err)
	}
	return nil
}

// LoadLockouts returns the timers of each expedition with uuid and name filled in.
func (s *Store) LoadLockouts(ctx context.Context, expeditionIDs []uint32) (map[uint32][]domain.LockoutTimer, error) {
	out := make(map[uint32][]domain.LockoutTimer)
	if len(expeditionIDs) == 0 {
		return out, nil
	}
	in, args := inList(expeditionIDs)
	rows, err := s.query(ctx, s.db, `
SELECT l.expedition_id, e.uuid, e.name, l.event_name, l.expire_time, l.duration
FROM expedition_lockouts l
JOIN expeditions e ON e.id = l.expedition_id
WHERE l.expedition_id IN `+in+`
ORDER BY l.expedition_id, l.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load lockouts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       uint32
			t        domain.LockoutTimer
			expire   int64
			duration int64
		)
		if err := rows.Scan(&id, &t.UUID, &t.ExpeditionName, &t.EventName, &expire, &duration); err != nil {
			return nil, fmt.Errorf("sqlstore: scan lockout: %w", err)
		}
		t.ExpireTime = fromUnix(expire)
		t.Duration = fromSeconds(duration)
		out[id] = append(out[id], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: load lockouts: %w", err)
	}
	return out, nil
}

// ============================================================================
// Character lockouts
// ============================================================================

const upsertCharacterLockout = `
INSERT INTO character_lockouts
  (character_id, character_name, expedition_uuid, expedition_name, expedition_key,
   event_name, event_key, expire_time, duration, is_pending)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (character_id, expedition_key, event_key) DO UPDATE SET
  character_name  = excluded.character_name,
  expedition_uuid = excluded.expedition_uuid,
  expedition_name = excluded.expedition_name,
  event_name      = excluded.event_name,
  expire_time     = excluded.expire_time,
  duration        = excluded.duration,
  is_pending      = excluded.is_pending`

// InsertCharacterLockouts upserts every timer for every character. Timers
// are keyed case-insensitively by expedition name and event.
func (s *Store) InsertCharacterLockouts(ctx context.Context, characters []domain.Member, ts []domain.LockoutTimer, pending bool) error {
	if len(characters) == 0 || len(ts) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range characters {
			for _, t := range ts {
				key := t.Key()
				if err := s.exec(ctx, tx, upsertCharacterLockout,
					c.CharacterID, c.CharacterName, t.UUID, t.ExpeditionName, key.ExpeditionName,
					t.EventName, key.EventName, unixSeconds(t.ExpireTime), seconds(t.Duration), pending,
				); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlstore: insert character lockouts: %w", err)
	}
	return nil
}

// DeleteCharacterLockouts removes timers of an expedition name. An empty
// event name removes every event of it.
func (s *Store) DeleteCharacterLockouts(ctx context.Context, characterIDs []uint32, expeditionName, eventName string) error {
	if len(characterIDs) == 0 {
		return nil
	}
	in, args := inList(characterIDs)
	query := `DELETE FROM character_lockouts WHERE character_id IN ` + in + ` AND expedition_key = ?`
	args = append(args, strings.ToLower(expeditionName))
	if eventName != "" {
		query += ` AND event_key = ?`
		args = append(args, strings.ToLower(eventName))
	}
	if err := s.exec(ctx, s.db, query, args...); err != nil {
		return fmt.Errorf("sqlstore: delete character lockouts: %w", err)
	}
	return nil
}

// DeleteCharacterLockoutsByName is DeleteCharacterLockouts for a character
// known only by name.
func (s *Store) DeleteCharacterLockoutsByName(ctx context.Context, characterName, expeditionName, eventName string) error {
	query := `DELETE FROM character_lockouts WHERE LOWER(character_name) = ? AND expedition_key = ?`
	args := []any{strings.ToLower(characterName), strings.ToLower(expeditionName)}
	if eventName != "" {
		query += ` AND event_key = ?`
		args = append(args, strings.ToLower(eventName))
	}
	if err := s.exec(ctx, s.db, query, args...); err != nil {
		return fmt.Errorf("sqlstore: delete character lockouts by name: %w", err)
	}
	return nil
}

// DeletePendingLockouts drops grants that were never activated.
func (s *Store) DeletePendingLockouts(ctx context.Context, characterIDs []uint32) error {
	if len(characterIDs) == 0 {
		return nil
	}
	in, args := inList(characterIDs)
	args = append(args, true)
	if err := s.exec(ctx, s.db,
		`DELETE FROM character_lockouts WHERE character_id IN `+in+` AND is_pending = ?`, args...); err != nil {
		return fmt.Errorf("sqlstore: delete pending lockouts: %w", err)
	}
	return nil
}

// LoadCharacterLockouts returns active or pending timers of a character.
func (s *Store) LoadCharacterLockouts(ctx context.Context, characterID uint32, pending bool) ([]domain.LockoutTimer, error) {
	rows, err := s.query(ctx, s.db, `
SELECT expedition_uuid, expedition_name, event_name, expire_time, duration
FROM character_lockouts
WHERE character_id = ? AND is_pending = ?
ORDER BY id`, characterID, pending)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load character lockouts: %w", err)
	}
	defer rows.Close()

	var out []domain.LockoutTimer
	for rows.Next() {
		var (
			t        domain.LockoutTimer
			expire   int64
			duration int64
		)
		if err := rows.Scan(&t.UUID, &t.ExpeditionName, &t.EventName, &expire, &duration); err != nil {
			return nil, fmt.Errorf("sqlstore: scan character lockout: %w", err)
		}
		t.ExpireTime = fromUnix(expire)
		t.Duration = fromSeconds(duration)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: load character lockouts: %w", err)
	}
	return out, nil
}

// ActivatePendingLockouts turns the pending grants of an expedition into
// active lockouts.
func (s *Store) ActivatePendingLockouts(ctx context.Context, characterID uint32, uuid string) error {
	if err := s.exec(ctx, s.db, `
UPDATE character_lockouts SET is_pending = ?
WHERE character_id = ? AND expedition_uuid = ? AND is_pending = ?`,
		false, characterID, uuid, true); err != nil {
		return fmt.Errorf("sqlstore: activate pending lockouts: %w", err)
	}
	return nil
}
