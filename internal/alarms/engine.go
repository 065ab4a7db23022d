// Package alarms detects device conditions and maintains deduplicated,
// self-healing alarm records.
package alarms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/darshan-rambhia/netvault/internal/collector"
	"github.com/darshan-rambhia/netvault/internal/metrics"
	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/darshan-rambhia/netvault/internal/notify"
	"github.com/darshan-rambhia/netvault/internal/snmp"
	"github.com/darshan-rambhia/netvault/internal/store"
)

// Config holds the engine's scan interval and resource thresholds.
type Config struct {
	Interval time.Duration `yaml:"interval"`
	CPU      Thresholds    `yaml:"cpu"`
	Memory   Thresholds    `yaml:"memory"`
}

// DefaultConfig returns a 30s scan with 80/85/70 thresholds for both signals.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		CPU:      DefaultThresholds(),
		Memory:   DefaultThresholds(),
	}
}

// resourceSamples is the window the resource detector evaluates.
const resourceSamples = 3

// Engine scans every active device on an interval and raises or resolves
// alarms. It implements collector.Collector.
type Engine struct {
	store    *store.Store
	samples  store.MetricWriter
	targets  collector.TargetResolver
	dialer   snmp.Dialer
	notifier notify.Provider
	pool     *collector.WorkerPool
	config   Config
	now      func() time.Time
}

// NewEngine creates an alarm engine. samples is the metric layout resolved
// at startup; notifier may be nil.
func NewEngine(s *store.Store, samples store.MetricWriter, targets collector.TargetResolver, dialer snmp.Dialer, notifier notify.Provider, pool *collector.WorkerPool, cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if notifier == nil {
		notifier = notify.Fanout{}
	}
	return &Engine{
		store:    s,
		samples:  samples,
		targets:  targets,
		dialer:   dialer,
		notifier: notifier,
		pool:     pool,
		config:   cfg,
		now:      time.Now,
	}
}

func (e *Engine) Name() string            { return "alarms" }
func (e *Engine) Interval() time.Duration { return e.config.Interval }

// Collect runs one scan over all tenants. Device failures become alarms;
// only inventory failures are returned.
func (e *Engine) Collect(ctx context.Context) error {
	start := time.Now()
	defer metrics.ObserveCycle(e.Name(), start)

	tenants, err := e.store.ListTenants(ctx)
	if err != nil {
		return collector.NewRetryableError(fmt.Errorf("listing tenants: %w", err))
	}

	scanned := 0
	for _, tenant := range tenants {
		devices, err := e.store.ListActiveDevices(ctx, tenant)
		if err != nil {
			slog.Error("listing devices failed", "tenant", tenant, "error", err)
			continue
		}
		if err := collector.ForEach(ctx, e.pool, devices, func(d model.Device) { e.scanDevice(ctx, d) }); err != nil {
			return err
		}
		scanned += len(devices)
	}

	slog.Debug("alarm scan complete", "tenants", len(tenants), "devices", scanned, "duration", time.Since(start))
	return nil
}

// scanDevice runs the detectors for one device. An unreachable device skips
// the interface and resource detectors for this cycle.
func (e *Engine) scanDevice(ctx context.Context, d model.Device) {
	down, err := e.pollInterfaces(ctx, d)
	if errors.Is(err, errNoTarget) {
		slog.Error("scanning device failed", "device", d.ID, "error", err)
		return
	}
	if err != nil {
		slog.Debug("device unreachable", "device", d.ID, "error", err)
		e.raise(ctx, d, model.Alarm{
			Type:     model.AlarmDeviceUnreachable,
			Severity: model.SeverityCritical,
			Message:  fmt.Sprintf("Device %s is unreachable", deviceLabel(d)),
		})
		return
	}

	if _, err := e.ResolveByType(ctx, d, model.AlarmDeviceUnreachable); err != nil {
		slog.Error("resolving unreachable alarm failed", "device", d.ID, "error", err)
	}
	e.reconcileInterfaces(ctx, d, down)
	e.checkResources(ctx, d)
}

var errNoTarget = errors.New("no monitoring target")

// Interface is a down interface observed on a device.
type Interface struct {
	Index int
	Name  string
}

func (e *Engine) pollInterfaces(ctx context.Context, d model.Device) ([]Interface, error) {
	target, err := e.targets.MonitoringTarget(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNoTarget, err)
	}
	p, err := e.dialer.Dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	defer func() { _ = p.Close() }()

	admin, err := p.WalkTable(ctx, snmp.OIDIfAdminStatus)
	if err != nil {
		return nil, fmt.Errorf("walking admin status: %w", err)
	}
	oper, err := p.WalkTable(ctx, snmp.OIDIfOperStatus)
	if err != nil {
		return nil, fmt.Errorf("walking oper status: %w", err)
	}
	// Names are cosmetic; the index stands in when the walk fails.
	descr, err := p.WalkTable(ctx, snmp.OIDIfDescr)
	if err != nil {
		metrics.RecordPollFailure("interface_names")
		slog.Debug("walking interface names failed", "device", d.ID, "error", err)
	}
	return DownInterfaces(admin, oper, descr), nil
}

// DownInterfaces returns the interfaces that are administratively up but
// operationally down, ordered by index.
func DownInterfaces(admin, oper, descr []snmp.Variable) []Interface {
	adminUp := make(map[int]bool, len(admin))
	for _, v := range admin {
		if idx, ok := snmp.ParseIndex(v.OID, snmp.OIDIfAdminStatus); ok {
			n, _ := snmp.ToInt64(v.Value)
			adminUp[idx] = n == snmp.StatusUp
		}
	}
	names := make(map[int]string, len(descr))
	for _, v := range descr {
		if idx, ok := snmp.ParseIndex(v.OID, snmp.OIDIfDescr); ok {
			names[idx] = snmp.ToString(v.Value)
		}
	}

	var down []Interface
	for _, v := range oper {
		idx, ok := snmp.ParseIndex(v.OID, snmp.OIDIfOperStatus)
		if !ok || !adminUp[idx] {
			continue
		}
		if n, _ := snmp.ToInt64(v.Value); n != snmp.StatusDown {
			continue
		}
		name := names[idx]
		if name == "" {
			name = strconv.Itoa(idx)
		}
		down = append(down, Interface{Index: idx, Name: name})
	}
	sort.Slice(down, func(i, j int) bool { return down[i].Index < down[j].Index })
	return down
}

// reconcileInterfaces raises one alarm per down interface, then resolves the
// unresolved interface alarms whose index is no longer down.
func (e *Engine) reconcileInterfaces(ctx context.Context, d model.Device, down []Interface) {
	current := make(map[string]bool, len(down))
	for _, ifc := range down {
		idx := strconv.Itoa(ifc.Index)
		current[idx] = true
		e.raise(ctx, d, model.Alarm{
			Type:     model.AlarmInterfaceDown,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("Interface %s is down", ifc.Name),
			Meta:     map[string]string{"index": idx, "name": ifc.Name},
		})
	}

	existing, err := e.store.ListUnresolvedAlarmsByType(ctx, d.TenantID, d.ID, model.AlarmInterfaceDown)
	if err != nil {
		slog.Error("listing interface alarms failed", "device", d.ID, "error", err)
		return
	}
	for _, a := range existing {
		if current[a.Meta["index"]] {
			continue
		}
		resolved, err := e.store.ResolveAlarmByID(ctx, d.TenantID, a.ID, e.now())
		if errors.Is(err, store.ErrNotFound) {
			continue // resolved concurrently
		}
		if err != nil {
			slog.Error("resolving interface alarm failed", "device", d.ID, "alarm", a.ID, "error", err)
			continue
		}
		e.resolved(ctx, d, *resolved)
	}
}

func (e *Engine) checkResources(ctx context.Context, d model.Device) {
	samples, err := e.samples.RecentSamples(ctx, d.TenantID, d.ID, resourceSamples)
	if err != nil {
		slog.Error("reading recent samples failed", "device", d.ID, "error", err)
		return
	}

	// Windows stay positional: a sample missing a signal keeps its slot as
	// a gap so that the readings around it are not treated as consecutive.
	cpu := make([]float64, len(samples))
	mem := make([]float64, len(samples))
	for i, s := range samples {
		cpu[i] = reading(s.CPUPct)
		mem[i] = reading(s.MemUsedPct)
	}
	e.applyVerdict(ctx, d, model.AlarmResourceCPUHigh, "CPU", cpu, e.config.CPU)
	e.applyVerdict(ctx, d, model.AlarmResourceMemoryHigh, "Memory", mem, e.config.Memory)
}

// reading converts a sampled percentage, or a gap for a missing one.
func reading(v *int) float64 {
	if v == nil {
		return math.NaN()
	}
	return float64(*v)
}

func (e *Engine) applyVerdict(ctx context.Context, d model.Device, typ model.AlarmType, label string, values []float64, t Thresholds) {
	switch t.EvaluateHysteresis(values) {
	case High:
		// The message carries the value, so a changed reading would not
		// match the active row; any active row of the type suffices.
		open, err := e.store.ListUnresolvedAlarmsByType(ctx, d.TenantID, d.ID, typ)
		if err != nil {
			slog.Error("listing resource alarms failed", "device", d.ID, "type", typ, "error", err)
			return
		}
		for _, a := range open {
			if a.Active() {
				return
			}
		}
		v := latestReading(values)
		e.raise(ctx, d, model.Alarm{
			Type:     typ,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("%s usage at %.0f%%", label, v),
			Meta:     map[string]string{"value": strconv.FormatFloat(v, 'f', 0, 64)},
		})
	case Low:
		if _, err := e.ResolveByType(ctx, d, typ); err != nil {
			slog.Error("resolving resource alarm failed", "device", d.ID, "type", typ, "error", err)
		}
	}
}

// latestReading returns the newest value that is not a gap. A High verdict
// guarantees at least two exist.
func latestReading(values []float64) float64 {
	for _, v := range values {
		if !math.IsNaN(v) {
			return v
		}
	}
	return 0
}

func (e *Engine) raise(ctx context.Context, d model.Device, a model.Alarm) {
	a.TenantID = d.TenantID
	a.DeviceID = d.ID
	if _, err := e.UpsertActive(ctx, d, a); err != nil {
		slog.Error("raising alarm failed", "device", d.ID, "type", a.Type, "error", err)
	}
}

// UpsertActive inserts a as a new active alarm unless an active alarm with
// the same tenant, device, type and message exists. It reports whether a row
// was inserted; an existing row is left untouched.
func (e *Engine) UpsertActive(ctx context.Context, d model.Device, a model.Alarm) (bool, error) {
	_, err := e.store.FindActiveAlarm(ctx, a.TenantID, a.DeviceID, a.Type, a.Message)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	now := e.now()
	a.CreatedAt = now.Unix()
	id, inserted, err := e.store.InsertActiveAlarm(ctx, a)
	if err != nil || !inserted {
		return false, err
	}
	a.ID = id

	metrics.RecordAlarmRaised(a.Severity, string(a.Type))
	slog.Warn("alarm raised",
		"tenant", a.TenantID,
		"device", a.DeviceID,
		"type", a.Type,
		"severity", a.Severity,
		"message", a.Message,
	)
	e.send(ctx, notification(d, a, now, false))
	return true, nil
}

// ResolveByType resolves every unresolved alarm of typ on d regardless of
// message and returns how many were resolved.
func (e *Engine) ResolveByType(ctx context.Context, d model.Device, typ model.AlarmType) (int, error) {
	resolved, err := e.store.ResolveAlarmsByType(ctx, d.TenantID, d.ID, typ, e.now())
	if err != nil {
		return 0, err
	}
	for _, a := range resolved {
		e.resolved(ctx, d, a)
	}
	return len(resolved), nil
}

func (e *Engine) resolved(ctx context.Context, d model.Device, a model.Alarm) {
	metrics.RecordAlarmResolved(string(a.Type))
	slog.Info("alarm resolved", "tenant", a.TenantID, "device", a.DeviceID, "type", a.Type, "alarm", a.ID)
	e.send(ctx, notification(d, a, e.now(), true))
}

func (e *Engine) send(ctx context.Context, n model.Notification) {
	if err := e.notifier.Send(ctx, n); err != nil {
		slog.Error("sending notification", "alert", n.AlertType, "subject", n.Subject, "error", err)
	}
}

var typeTitles = map[model.AlarmType]string{
	model.AlarmInterfaceDown:      "Interface Down",
	model.AlarmResourceCPUHigh:    "CPU High",
	model.AlarmResourceMemoryHigh: "Memory High",
	model.AlarmDeviceUnreachable:  "Device Unreachable",
}

func notification(d model.Device, a model.Alarm, now time.Time, resolved bool) model.Notification {
	title := typeTitles[a.Type]
	if title == "" {
		title = string(a.Type)
	}
	title = fmt.Sprintf("%s: %s", title, deviceLabel(d))
	severity := a.Severity
	if resolved {
		title = "Resolved - " + title
		severity = model.SeverityInfo
	}
	return model.Notification{
		AlertType: string(a.Type),
		Severity:  severity,
		Title:     title,
		Message:   a.Message,
		Instance:  a.TenantID,
		Subject:   a.DeviceID,
		Timestamp: now,
		Resolved:  resolved,
		Metadata:  a.Meta,
	}
}

func deviceLabel(d model.Device) string {
	if d.Hostname != "" {
		return d.Hostname
	}
	return d.MgmtIP
}
