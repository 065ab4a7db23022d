package alarms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/darshan-rambhia/netvault/internal/metrics"
	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/darshan-rambhia/netvault/internal/notify"
	"github.com/darshan-rambhia/netvault/internal/store"
)

// Page bounds for List. MaxPageNumber keeps the row offset far from int
// overflow.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	MaxPageNumber   = 100_000
)

// ErrInvalid is returned for malformed list filters and preferences.
var ErrInvalid = errors.New("invalid alarm request")

// Service implements the operator-facing alarm operations. Every call is
// scoped to the caller's tenant.
type Service struct {
	store    *store.Store
	notifier notify.Provider
	now      func() time.Time
}

// NewService creates the alarm service. notifier may be nil.
func NewService(s *store.Store, notifier notify.Provider) *Service {
	if notifier == nil {
		notifier = notify.Fanout{}
	}
	return &Service{store: s, notifier: notifier, now: time.Now}
}

// ListFilter selects alarms for List. Zero values mean "active", any
// severity, any type, first page of DefaultPageSize.
type ListFilter struct {
	Status   model.AlarmStatusFilter
	Severity string
	Type     model.AlarmType
	Page     model.Page
}

// List returns one page of the tenant's alarms, newest first.
func (s *Service) List(ctx context.Context, tenantID string, f ListFilter) (model.AlarmPage, error) {
	if f.Status == "" {
		f.Status = model.AlarmFilterActive
	}
	switch f.Status {
	case model.AlarmFilterActive, model.AlarmFilterAcknowledged, model.AlarmFilterAll:
	default:
		return model.AlarmPage{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Status)
	}
	if err := validSeverity(f.Severity); err != nil {
		return model.AlarmPage{}, err
	}
	if err := validType(string(f.Type)); err != nil {
		return model.AlarmPage{}, err
	}

	return s.store.ListAlarms(ctx, store.AlarmQuery{
		TenantID: tenantID,
		Status:   f.Status,
		Severity: f.Severity,
		Type:     f.Type,
		Page:     NormalizePage(f.Page),
	})
}

// NormalizePage clamps a page request to 1 <= page <= MaxPageNumber and
// 1 <= size <= MaxPageSize, defaulting the size to DefaultPageSize.
func NormalizePage(p model.Page) model.Page {
	p.Number = max(1, min(p.Number, MaxPageNumber))
	switch {
	case p.Size <= 0:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

// Acknowledge marks an alarm as seen. It does not resolve it. Returns
// store.ErrNotFound when the alarm is not in the tenant.
func (s *Service) Acknowledge(ctx context.Context, tenantID string, id int64) error {
	if err := s.store.AcknowledgeAlarm(ctx, tenantID, id); err != nil {
		return err
	}
	metrics.RecordAlarmAcknowledged()
	slog.Info("alarm acknowledged", "tenant", tenantID, "alarm", id)
	return nil
}

// Resolve closes an alarm by hand. Returns store.ErrNotFound when no
// unresolved alarm with that id exists in the tenant.
func (s *Service) Resolve(ctx context.Context, tenantID string, id int64) (*model.Alarm, error) {
	now := s.now()
	a, err := s.store.ResolveAlarmByID(ctx, tenantID, id, now)
	if err != nil {
		return nil, err
	}
	metrics.RecordAlarmResolved(string(a.Type))
	slog.Info("alarm resolved manually", "tenant", tenantID, "alarm", id, "type", a.Type)

	d := model.Device{ID: a.DeviceID, TenantID: a.TenantID}
	if dev, err := s.store.GetDevice(ctx, tenantID, a.DeviceID); err == nil {
		d = *dev
	}
	if err := s.notifier.Send(ctx, notification(d, *a, now, true)); err != nil {
		slog.Error("sending notification", "alert", a.Type, "subject", a.DeviceID, "error", err)
	}
	return a, nil
}

// GetPreference returns the user's saved filter, or an empty one.
func (s *Service) GetPreference(ctx context.Context, userID, tenantID string) (model.AlarmPreference, error) {
	p, err := s.store.GetAlarmPreference(ctx, userID, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return model.AlarmPreference{UserID: userID, TenantID: tenantID}, nil
	}
	if err != nil {
		return model.AlarmPreference{}, err
	}
	return *p, nil
}

// PutPreference validates and saves the user's filter.
func (s *Service) PutPreference(ctx context.Context, p model.AlarmPreference) error {
	if err := validSeverity(p.Severity); err != nil {
		return err
	}
	if err := validType(p.Type); err != nil {
		return err
	}
	return s.store.PutAlarmPreference(ctx, p)
}

func validSeverity(s string) error {
	switch s {
	case "", model.SeverityInfo, model.SeverityWarning, model.SeverityCritical:
		return nil
	}
	return fmt.Errorf("%w: unknown severity %q", ErrInvalid, s)
}

func validType(t string) error {
	switch model.AlarmType(t) {
	case "", model.AlarmInterfaceDown, model.AlarmResourceCPUHigh, model.AlarmResourceMemoryHigh, model.AlarmDeviceUnreachable:
		return nil
	}
	return fmt.Errorf("%w: unknown alarm type %q", ErrInvalid, t)
}
