package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/darshan-rambhia/netvault/internal/model"
)

const alarmColumns = `id, tenant_id, device_id, type, severity, message, acknowledged, created_at, resolved_at, meta_json`

func scanAlarm(row interface{ Scan(...any) error }) (*model.Alarm, error) {
	var (
		a          model.Alarm
		typ        string
		resolvedAt sql.NullInt64
		meta       sql.NullString
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.DeviceID, &typ, &a.Severity, &a.Message,
		&a.Acknowledged, &a.CreatedAt, &resolvedAt, &meta); err != nil {
		return nil, err
	}
	a.Type = model.AlarmType(typ)
	a.ResolvedAt = int64Ptr(resolvedAt)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &a.Meta); err != nil {
			return nil, fmt.Errorf("decoding alarm %d meta: %w", a.ID, err)
		}
	}
	return &a, nil
}

func scanAlarms(rows *sql.Rows) ([]model.Alarm, error) {
	defer rows.Close()
	var out []model.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alarm: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// FindActiveAlarm returns the active alarm exactly matching
// (tenant, device, type, message), or ErrNotFound.
func (s *Store) FindActiveAlarm(ctx context.Context, tenantID, deviceID string, typ model.AlarmType, message string) (*model.Alarm, error) {
	a, err := scanAlarm(s.queryRow(ctx, s.db, `
		SELECT `+alarmColumns+` FROM alarms
		WHERE tenant_id = ? AND device_id = ? AND type = ? AND message = ?
		  AND acknowledged = ? AND resolved_at IS NULL`,
		tenantID, deviceID, string(typ), message, false))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding active alarm: %w", err)
	}
	return a, nil
}

// InsertActiveAlarm inserts a new active alarm. It reports false when an
// active row with the same key already exists; the partial unique index is
// the final arbiter between concurrent scanners.
func (s *Store) InsertActiveAlarm(ctx context.Context, a model.Alarm) (int64, bool, error) {
	var meta sql.NullString
	if len(a.Meta) > 0 {
		b, err := json.Marshal(a.Meta)
		if err != nil {
			return 0, false, fmt.Errorf("encoding alarm meta: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}

	var id int64
	err := s.queryRow(ctx, s.db, `
		INSERT INTO alarms (tenant_id, device_id, type, severity, message, acknowledged, created_at, meta_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		a.TenantID, a.DeviceID, string(a.Type), a.Severity, a.Message, false, a.CreatedAt, meta,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || s.dialect.isUniqueViolation(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("inserting alarm: %w", err)
	}
	return id, true, nil
}

// ListUnresolvedAlarmsByType returns every unresolved alarm of a type for a
// device, acknowledged or not.
func (s *Store) ListUnresolvedAlarmsByType(ctx context.Context, tenantID, deviceID string, typ model.AlarmType) ([]model.Alarm, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT `+alarmColumns+` FROM alarms
		WHERE tenant_id = ? AND device_id = ? AND type = ? AND resolved_at IS NULL
		ORDER BY id`,
		tenantID, deviceID, string(typ))
	if err != nil {
		return nil, fmt.Errorf("listing %s alarms for %s: %w", typ, deviceID, err)
	}
	return scanAlarms(rows)
}

// ResolveAlarmsByType resolves every unresolved alarm of a type for a device
// and returns the resolved rows.
func (s *Store) ResolveAlarmsByType(ctx context.Context, tenantID, deviceID string, typ model.AlarmType, now time.Time) ([]model.Alarm, error) {
	rows, err := s.query(ctx, s.db, `
		UPDATE alarms SET resolved_at = ?
		WHERE tenant_id = ? AND device_id = ? AND type = ? AND resolved_at IS NULL
		RETURNING `+alarmColumns,
		now.Unix(), tenantID, deviceID, string(typ))
	if err != nil {
		return nil, fmt.Errorf("resolving %s alarms for %s: %w", typ, deviceID, err)
	}
	return scanAlarms(rows)
}

// ResolveAlarmByID resolves one alarm of a tenant. It returns ErrNotFound when
// no unresolved alarm with that id exists in the tenant.
func (s *Store) ResolveAlarmByID(ctx context.Context, tenantID string, id int64, now time.Time) (*model.Alarm, error) {
	a, err := scanAlarm(s.queryRow(ctx, s.db, `
		UPDATE alarms SET resolved_at = ?
		WHERE id = ? AND tenant_id = ? AND resolved_at IS NULL
		RETURNING `+alarmColumns,
		now.Unix(), id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving alarm %d: %w", id, err)
	}
	return a, nil
}

// AcknowledgeAlarm marks an alarm of a tenant as acknowledged. Acknowledging
// twice is not an error. It returns ErrNotFound when the alarm does not exist
// in the tenant.
func (s *Store) AcknowledgeAlarm(ctx context.Context, tenantID string, id int64) error {
	res, err := s.exec(ctx, s.db, `
		UPDATE alarms SET acknowledged = ? WHERE id = ? AND tenant_id = ?`,
		true, id, tenantID)
	if err != nil {
		return fmt.Errorf("acknowledging alarm %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledging alarm %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAlarm returns an alarm of a tenant, or ErrNotFound.
func (s *Store) GetAlarm(ctx context.Context, tenantID string, id int64) (*model.Alarm, error) {
	a, err := scanAlarm(s.queryRow(ctx, s.db, `
		SELECT `+alarmColumns+` FROM alarms WHERE id = ? AND tenant_id = ?`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting alarm %d: %w", id, err)
	}
	return a, nil
}

// AlarmQuery filters ListAlarms.
type AlarmQuery struct {
	TenantID string
	Status   model.AlarmStatusFilter
	Severity string
	Type     model.AlarmType
	Page     model.Page
}

// ListAlarms returns one page of a tenant's alarms, newest first, together
// with the total number of matches.
func (s *Store) ListAlarms(ctx context.Context, q AlarmQuery) (model.AlarmPage, error) {
	where := []string{"tenant_id = ?"}
	args := []any{q.TenantID}
	switch q.Status {
	case model.AlarmFilterActive:
		where = append(where, "acknowledged = ?", "resolved_at IS NULL")
		args = append(args, false)
	case model.AlarmFilterAcknowledged:
		where = append(where, "acknowledged = ?")
		args = append(args, true)
	}
	if q.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, q.Severity)
	}
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	cond := strings.Join(where, " AND ")

	page := model.AlarmPage{Page: q.Page, Items: []model.Alarm{}}
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM alarms WHERE `+cond, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("counting alarms: %w", err)
	}

	rows, err := s.query(ctx, s.db, `
		SELECT `+alarmColumns+` FROM alarms WHERE `+cond+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		append(args, q.Page.Size, q.Page.Offset())...)
	if err != nil {
		return page, fmt.Errorf("listing alarms: %w", err)
	}
	items, err := scanAlarms(rows)
	if err != nil {
		return page, err
	}
	if items != nil {
		page.Items = items
	}
	return page, nil
}

// GetAlarmPreference returns a user's saved filter, or ErrNotFound.
func (s *Store) GetAlarmPreference(ctx context.Context, userID, tenantID string) (*model.AlarmPreference, error) {
	p := model.AlarmPreference{UserID: userID, TenantID: tenantID}
	err := s.queryRow(ctx, s.db, `
		SELECT severity, type FROM alarm_preferences WHERE user_id = ? AND tenant_id = ?`,
		userID, tenantID).Scan(&p.Severity, &p.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting alarm preference for %s: %w", userID, err)
	}
	return &p, nil
}

// PutAlarmPreference saves a user's filter, replacing any previous one.
func (s *Store) PutAlarmPreference(ctx context.Context, p model.AlarmPreference) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO alarm_preferences (user_id, tenant_id, severity, type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, tenant_id) DO UPDATE SET
			severity = excluded.severity,
			type = excluded.type`,
		p.UserID, p.TenantID, p.Severity, p.Type)
	if err != nil {
		return fmt.Errorf("saving alarm preference for %s: %w", p.UserID, err)
	}
	return nil
}
