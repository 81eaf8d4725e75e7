package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/core/service"
)

// ============================================================================
// Expeditions
// ============================================================================

// InsertExpedition persists the expedition row and returns its id. A bound
// instance without a row of its own is recorded in the same transaction.
func (s *Store) InsertExpedition(ctx context.Context, e *domain.Expedition) (uint32, error) {
	var id uint32
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if e.Instance.IsBound() {
			if err := s.upsertInstance(ctx, tx, e.Instance, false); err != nil {
				return err
			}
		}
		leader := e.Leader()
		return s.queryRow(ctx, tx, `
INSERT INTO expeditions
  (uuid, instance_id, name, leader_id, leader_name, min_players, max_players, add_replay_on_join, is_locked)
VALUES (?,?,?,?,?,?,?,?,?)
RETURNING id`,
			e.UUID, nullID(e.Instance.InstanceID), e.Name, leader.CharacterID, leader.CharacterName,
			e.MinPlayers, e.MaxPlayers, e.AddReplayOnJoin, e.IsLocked,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: insert expedition: %w", err)
	}
	return id, nil
}

// LoadExpeditionRows joins expeditions with every member row.
func (s *Store) LoadExpeditionRows(ctx context.Context, ids []uint32) ([]service.ExpeditionRow, error) {
	if ids != nil && len(ids) == 0 {
		return nil, nil
	}
	query := `
SELECT e.id, e.uuid, e.instance_id, e.name, e.leader_id, e.leader_name,
       e.min_players, e.max_players, e.add_replay_on_join, e.is_locked,
       m.character_id, m.character_name, m.is_current_member
FROM expeditions e
LEFT JOIN expedition_members m ON m.expedition_id = e.id`
	var args []any
	if ids != nil {
		var in string
		in, args = inList(ids)
		query += "\nWHERE e.id IN " + in
	}
	query += "\nORDER BY e.id, m.id"

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load expeditions: %w", err)
	}
	defer rows.Close()

	var out []service.ExpeditionRow
	for rows.Next() {
		var (
			r          service.ExpeditionRow
			instanceID sql.NullInt64
			memberID   sql.NullInt64
			memberName sql.NullString
			current    sql.NullBool
		)
		if err := rows.Scan(&r.ID, &r.UUID, &instanceID, &r.Name, &r.LeaderID, &r.LeaderName,
			&r.MinPlayers, &r.MaxPlayers, &r.AddReplayOnJoin, &r.IsLocked,
			&memberID, &memberName, &current); err != nil {
			return nil, fmt.Errorf("sqlstore: scan expedition: %w", err)
		}
		r.InstanceID = uint32(instanceID.Int64)
		r.MemberID = uint32(memberID.Int64)
		r.MemberName = memberName.String
		r.IsCurrentMember = current.Bool
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: load expeditions: %w", err)
	}
	return out, nil
}

// FindExpeditionIDByInstance returns 0 when the instance has no expedition.
func (s *Store) FindExpeditionIDByInstance(ctx context.Context, instanceID uint32) (uint32, error) {
	var id uint32
	err := s.queryRow(ctx, s.db, `SELECT id FROM expeditions WHERE instance_id = ?`, instanceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: find by instance: %w", err)
	}
	return id, nil
}

// DeleteExpedition removes the expedition with its roster and lockouts.
// Character lockouts are kept.
func (s *Store) DeleteExpedition(ctx context.Context, id uint32) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM expedition_members WHERE expedition_id = ?`,
			`DELETE FROM expedition_lockouts WHERE expedition_id = ?`,
			`DELETE FROM expeditions WHERE id = ?`,
		} {
			if err := s.exec(ctx, tx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlstore: delete expedition %d: %w", id, err)
	}
	return nil
}

// UpdateLeader stores the leader reference.
func (s *Store) UpdateLeader(ctx context.Context, id uint32, leader domain.Member) error {
	if err := s.exec(ctx, s.db, `UPDATE expeditions SET leader_id = ?, leader_name = ? WHERE id = ?`,
		leader.CharacterID, leader.CharacterName, id); err != nil {
		return fmt.Errorf("sqlstore: update leader: %w", err)
	}
	return nil
}

// UpdateLocked stores the invite lock flag.
func (s *Store) UpdateLocked(ctx context.Context, id uint32, locked bool) error {
	if err := s.exec(ctx, s.db, `UPDATE expeditions SET is_locked = ? WHERE id = ?`, locked, id); err != nil {
		return fmt.Errorf("sqlstore: update locked: %w", err)
	}
	return nil
}

// UpdateReplayOnJoin stores the replay-on-join policy.
func (s *Store) UpdateReplayOnJoin(ctx context.Context, id uint32, enabled bool) error {
	if err := s.exec(ctx, s.db, `UPDATE expeditions SET add_replay_on_join = ? WHERE id = ?`, enabled, id); err != nil {
		return fmt.Errorf("sqlstore: update replay on join: %w", err)
	}
	return nil
}

// ============================================================================
// Members
// ============================================================================

const upsertMember = `
INSERT INTO expedition_members (expedition_id, character_id, character_name, is_current_member)
VALUES (?,?,?,?)
ON CONFLICT (expedition_id, character_id) DO UPDATE SET
  character_name    = excluded.character_name,
  is_current_member = excluded.is_current_member`

// InsertMember adds a member row, or reinstates a former member in place.
func (s *Store) InsertMember(ctx context.Context, expeditionID uint32, m domain.Member) error {
	if err := s.exec(ctx, s.db, upsertMember, expeditionID, m.CharacterID, m.CharacterName, true); err != nil {
		return fmt.Errorf("sqlstore: insert member: %w", err)
	}
	return nil
}

// InsertMembers adds member rows in roster order.
func (s *Store) InsertMembers(ctx context.Context, expeditionID uint32, members []domain.Member) error {
	if len(members) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range members {
			if err := s.exec(ctx, tx, upsertMember, expeditionID, m.CharacterID, m.CharacterName, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlstore: insert members: %w", err)
	}
	return nil
}

// UpdateMemberRemoved keeps the row for history and clears current membership.
func (s *Store) UpdateMemberRemoved(ctx context.Context, expeditionID, characterID uint32) error {
	if err := s.exec(ctx, s.db,
		`UPDATE expedition_members SET is_current_member = ? WHERE expedition_id = ? AND character_id = ?`,
		false, expeditionID, characterID); err != nil {
		return fmt.Errorf("sqlstore: remove member: %w", err)
	}
	return nil
}

// UpdateAllMembersRemoved clears current membership of the whole roster.
func (s *Store) UpdateAllMembersRemoved(ctx context.Context, expeditionID uint32) error {
	if err := s.exec(ctx, s.db,
		`UPDATE expedition_members SET is_current_member = ? WHERE expedition_id = ?`,
		false, expeditionID); err != nil {
		return fmt.Errorf("sqlstore: remove all members: %w", err)
	}
	return nil
}

// SwapMember removes one member and adds another atomically.
func (s *Store) SwapMember(ctx context.Context, expeditionID uint32, add domain.Member, removeID uint32) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.exec(ctx, tx,
			`UPDATE expedition_members SET is_current_member = ? WHERE expedition_id = ? AND character_id = ?`,
			false, expeditionID, removeID); err != nil {
			return err
		}
		return s.exec(ctx, tx, upsertMember, expeditionID, add.CharacterID, add.CharacterName, true)
	})
	if err != nil {
		return fmt.Errorf("sqlstore: swap member: %w", err)
	}
	return nil
}
