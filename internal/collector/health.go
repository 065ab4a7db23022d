package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/darshan-rambhia/netvault/internal/metrics"
	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/darshan-rambhia/netvault/internal/snmp"
	"github.com/darshan-rambhia/netvault/internal/store"
)

// Inventory is the slice of the store the health collector reads and writes
// besides metric samples.
type Inventory interface {
	ListTenants(ctx context.Context) ([]string, error)
	ListActiveDevices(ctx context.Context, tenantID string) ([]model.Device, error)
	UpsertInterfaceBitmap(ctx context.Context, b model.InterfaceBitmap) error
}

// TargetResolver builds the polling target of a device.
type TargetResolver interface {
	MonitoringTarget(ctx context.Context, d model.Device) (snmp.Target, error)
}

// HealthCollector samples uptime, CPU and memory of every active device and
// refreshes its interface bitmap.
type HealthCollector struct {
	inventory Inventory
	targets   TargetResolver
	dialer    snmp.Dialer
	samples   store.MetricWriter
	pool      *WorkerPool
	interval  time.Duration
	now       func() time.Time
}

// NewHealthCollector creates a health collector. samples is the layout
// strategy resolved once at startup.
func NewHealthCollector(inv Inventory, targets TargetResolver, dialer snmp.Dialer, samples store.MetricWriter, pool *WorkerPool, interval time.Duration) *HealthCollector {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &HealthCollector{
		inventory: inv,
		targets:   targets,
		dialer:    dialer,
		samples:   samples,
		pool:      pool,
		interval:  interval,
		now:       time.Now,
	}
}

func (h *HealthCollector) Name() string            { return "health" }
func (h *HealthCollector) Interval() time.Duration { return h.interval }

// Collect polls every active device of every tenant. Device failures are
// logged and never abort the cycle; only inventory failures are returned.
func (h *HealthCollector) Collect(ctx context.Context) error {
	start := time.Now()
	defer metrics.ObserveCycle(h.Name(), start)

	tenants, err := h.inventory.ListTenants(ctx)
	if err != nil {
		return NewRetryableError(fmt.Errorf("listing tenants: %w", err))
	}

	polled := 0
	for _, tenant := range tenants {
		devices, err := h.inventory.ListActiveDevices(ctx, tenant)
		if err != nil {
			slog.Error("listing devices failed", "tenant", tenant, "error", err)
			continue
		}
		if err := ForEach(ctx, h.pool, devices, func(d model.Device) { h.collectDevice(ctx, d) }); err != nil {
			return err
		}
		polled += len(devices)
	}

	slog.Debug("health collection complete", "tenants", len(tenants), "devices", polled, "duration", time.Since(start))
	return nil
}

func (h *HealthCollector) collectDevice(ctx context.Context, d model.Device) {
	target, err := h.targets.MonitoringTarget(ctx, d)
	if err != nil {
		slog.Error("resolving monitoring target failed", "device", d.ID, "error", err)
		return
	}
	p, err := h.dialer.Dial(ctx, target)
	if err != nil {
		metrics.RecordPollFailure("session")
		slog.Debug("opening polling session failed", "device", d.ID, "host", target.Host, "error", err)
		return
	}
	defer func() { _ = p.Close() }()

	sample := model.MetricSample{
		TenantID:  d.TenantID,
		DeviceID:  d.ID,
		Timestamp: h.now().Unix(),
	}
	sample.UptimeTicks = h.readUptime(ctx, p, d.ID)
	sample.CPUPct = h.readCPU(ctx, p, d.ID)
	sample.MemUsedPct = h.readMemory(ctx, p, d.ID)

	if sample.UptimeTicks != nil || sample.CPUPct != nil || sample.MemUsedPct != nil {
		if err := h.samples.InsertSample(ctx, sample); err != nil {
			slog.Error("writing metric sample failed", "device", d.ID, "error", err)
		}
	}

	h.refreshBitmap(ctx, p, d)
}

func (h *HealthCollector) readUptime(ctx context.Context, p snmp.Poller, deviceID string) *int64 {
	v, err := p.GetScalar(ctx, snmp.OIDSysUpTime)
	if err != nil {
		h.signalFailed("uptime", deviceID, err)
		return nil
	}
	ticks, ok := snmp.ToInt64(v)
	if !ok {
		h.signalFailed("uptime", deviceID, fmt.Errorf("unexpected value %T", v))
		return nil
	}
	return &ticks
}

func (h *HealthCollector) readCPU(ctx context.Context, p snmp.Poller, deviceID string) *int {
	rows, err := p.WalkTable(ctx, snmp.OIDHrProcessorLoad)
	if err != nil {
		h.signalFailed("cpu", deviceID, err)
		return nil
	}
	pct, ok := averageLoad(rows)
	if !ok {
		h.signalFailed("cpu", deviceID, errors.New("no processor load rows"))
		return nil
	}
	return &pct
}

func (h *HealthCollector) readMemory(ctx context.Context, p snmp.Poller, deviceID string) *int {
	totalV, err := p.GetScalar(ctx, snmp.OIDMemTotalReal)
	if err != nil {
		h.signalFailed("memory", deviceID, err)
		return nil
	}
	availV, err := p.GetScalar(ctx, snmp.OIDMemAvailReal)
	if err != nil {
		h.signalFailed("memory", deviceID, err)
		return nil
	}
	total, ok1 := snmp.ToInt64(totalV)
	avail, ok2 := snmp.ToInt64(availV)
	if !ok1 || !ok2 {
		h.signalFailed("memory", deviceID, fmt.Errorf("unexpected values %T/%T", totalV, availV))
		return nil
	}
	pct, ok := memoryUsedPct(total, avail)
	if !ok {
		h.signalFailed("memory", deviceID, fmt.Errorf("total memory is %d", total))
		return nil
	}
	return &pct
}

func (h *HealthCollector) refreshBitmap(ctx context.Context, p snmp.Poller, d model.Device) {
	rows, err := p.WalkTable(ctx, snmp.OIDIfOperStatus)
	if err != nil {
		h.signalFailed("interfaces", d.ID, err)
		return
	}
	bitmap := interfaceBitmap(rows, snmp.OIDIfOperStatus)
	if bitmap == "" {
		return
	}
	err = h.inventory.UpsertInterfaceBitmap(ctx, model.InterfaceBitmap{
		DeviceID:  d.ID,
		TenantID:  d.TenantID,
		Bitmap:    bitmap,
		UpdatedAt: h.now().Unix(),
	})
	if err != nil {
		slog.Error("writing interface bitmap failed", "device", d.ID, "error", err)
	}
}

func (h *HealthCollector) signalFailed(signal, deviceID string, err error) {
	metrics.RecordPollFailure(signal)
	slog.Debug("signal read failed", "signal", signal, "device", deviceID, "error", err)
}

// averageLoad averages the numeric rows of a processor load table, rounded
// to a whole percent.
func averageLoad(rows []snmp.Variable) (int, bool) {
	var sum, n int64
	for _, r := range rows {
		v, ok := snmp.ToInt64(r.Value)
		if !ok {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return int(math.Round(float64(sum) / float64(n))), true
}

// memoryUsedPct is round((total-avail)/total*100) clamped to [0,100].
func memoryUsedPct(total, avail int64) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	pct := math.Round(float64(total-avail) / float64(total) * 100)
	return int(max(0, min(100, pct))), true
}

// interfaceBitmap encodes oper-status rows ordered by interface index,
// '1' for up and '0' for anything else.
func interfaceBitmap(rows []snmp.Variable, base string) string {
	type entry struct {
		index int
		up    bool
	}
	entries := make([]entry, 0, len(rows))
	for _, r := range rows {
		idx, ok := snmp.ParseIndex(r.OID, base)
		if !ok {
			continue
		}
		v, _ := snmp.ToInt64(r.Value)
		entries = append(entries, entry{index: idx, up: v == snmp.StatusUp})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	var b strings.Builder
	for _, e := range entries {
		if e.up {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
