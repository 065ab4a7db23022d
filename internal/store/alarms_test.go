package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlarm(deviceID string, typ model.AlarmType, message string) model.Alarm {
	return model.Alarm{
		TenantID:  testTenant,
		DeviceID:  deviceID,
		Type:      typ,
		Severity:  model.SeverityWarning,
		Message:   message,
		CreatedAt: time.Now().Unix(),
	}
}

func countActive(t *testing.T, s *Store) int {
	t.Helper()
	page, err := s.ListAlarms(context.Background(), AlarmQuery{
		TenantID: testTenant,
		Status:   model.AlarmFilterActive,
		Page:     model.Page{Number: 1, Size: 200},
	})
	require.NoError(t, err)
	return page.Total
}

func TestInsertActiveAlarm_Dedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dev := uuid.NewString()

	a := testAlarm(dev, model.AlarmResourceCPUHigh, "CPU usage high: 91%")
	a.Meta = map[string]string{"value": "91"}
	id, created, err := s.InsertActiveAlarm(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Positive(t, id)

	_, created, err = s.InsertActiveAlarm(ctx, a)
	require.NoError(t, err)
	assert.False(t, created, "second insert must hit the partial unique index")
	assert.Equal(t, 1, countActive(t, s))

	found, err := s.FindActiveAlarm(ctx, testTenant, dev, model.AlarmResourceCPUHigh, "CPU usage high: 91%")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)
	assert.Equal(t, "91", found.Meta["value"])

	// A different message is a different key.
	_, created, err = s.InsertActiveAlarm(ctx, testAlarm(dev, model.AlarmResourceCPUHigh, "CPU usage high: 95%"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, countActive(t, s))
}

func TestInsertActiveAlarm_AfterAcknowledgeCreatesNewRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dev := uuid.NewString()
	a := testAlarm(dev, model.AlarmDeviceUnreachable, "Device unreachable")

	id, _, err := s.InsertActiveAlarm(ctx, a)
	require.NoError(t, err)
	require.NoError(t, s.AcknowledgeAlarm(ctx, testTenant, id))

	_, err = s.FindActiveAlarm(ctx, testTenant, dev, a.Type, a.Message)
	assert.ErrorIs(t, err, ErrNotFound)

	id2, created, err := s.InsertActiveAlarm(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, id, id2)
}

func TestInsertActiveAlarm_ConcurrentInsertsKeepOneActiveRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := testAlarm(uuid.NewString(), model.AlarmInterfaceDown, "Interface Gi0/1 is down")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.InsertActiveAlarm(ctx, a)
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, countActive(t, s))
}

func TestResolveAlarmsByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dev := uuid.NewString()

	_, _, err := s.InsertActiveAlarm(ctx, testAlarm(dev, model.AlarmInterfaceDown, "Interface 3 is down"))
	require.NoError(t, err)
	ackID, _, err := s.InsertActiveAlarm(ctx, testAlarm(dev, model.AlarmInterfaceDown, "Interface 7 is down"))
	require.NoError(t, err)
	require.NoError(t, s.AcknowledgeAlarm(ctx, testTenant, ackID))
	_, _, err = s.InsertActiveAlarm(ctx, testAlarm(dev, model.AlarmResourceCPUHigh, "CPU usage high: 90%"))
	require.NoError(t, err)

	open, err := s.ListUnresolvedAlarmsByType(ctx, testTenant, dev, model.AlarmInterfaceDown)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	resolved, err := s.ResolveAlarmsByType(ctx, testTenant, dev, model.AlarmInterfaceDown, time.Now())
	require.NoError(t, err)
	assert.Len(t, resolved, 2, "acknowledged alarms are resolved too")
	for _, a := range resolved {
		assert.NotNil(t, a.ResolvedAt)
	}

	open, err = s.ListUnresolvedAlarmsByType(ctx, testTenant, dev, model.AlarmInterfaceDown)
	require.NoError(t, err)
	assert.Empty(t, open)

	cpu, err := s.ListUnresolvedAlarmsByType(ctx, testTenant, dev, model.AlarmResourceCPUHigh)
	require.NoError(t, err)
	assert.Len(t, cpu, 1, "other types are untouched")

	again, err := s.ResolveAlarmsByType(ctx, testTenant, dev, model.AlarmInterfaceDown, time.Now())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestResolveAlarmByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _, err := s.InsertActiveAlarm(ctx, testAlarm(uuid.NewString(), model.AlarmResourceMemoryHigh, "Memory usage high: 92%"))
	require.NoError(t, err)

	_, err = s.ResolveAlarmByID(ctx, uuid.NewString(), id, time.Now())
	assert.ErrorIs(t, err, ErrNotFound, "other tenants cannot resolve")

	a, err := s.ResolveAlarmByID(ctx, testTenant, id, time.Now())
	require.NoError(t, err)
	assert.NotNil(t, a.ResolvedAt)

	_, err = s.ResolveAlarmByID(ctx, testTenant, id, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAcknowledgeAlarm(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _, err := s.InsertActiveAlarm(ctx, testAlarm(uuid.NewString(), model.AlarmResourceCPUHigh, "CPU usage high: 88%"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.AcknowledgeAlarm(ctx, uuid.NewString(), id), ErrNotFound)
	require.NoError(t, s.AcknowledgeAlarm(ctx, testTenant, id))
	require.NoError(t, s.AcknowledgeAlarm(ctx, testTenant, id))

	a, err := s.GetAlarm(ctx, testTenant, id)
	require.NoError(t, err)
	assert.True(t, a.Acknowledged)
	assert.Nil(t, a.ResolvedAt, "acknowledge does not resolve")

	_, err = s.GetAlarm(ctx, uuid.NewString(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAlarms_FiltersAndPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dev := uuid.NewString()
	base := time.Now().Add(-time.Hour).Unix()

	var ids []int64
	for i := range 5 {
		a := testAlarm(dev, model.AlarmInterfaceDown, "Interface "+string(rune('A'+i))+" is down")
		a.CreatedAt = base + int64(i)
		id, _, err := s.InsertActiveAlarm(ctx, a)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.AcknowledgeAlarm(ctx, testTenant, ids[0]))
	_, err := s.ResolveAlarmByID(ctx, testTenant, ids[1], time.Now())
	require.NoError(t, err)

	// Another tenant's alarm never shows up.
	other := testAlarm(dev, model.AlarmInterfaceDown, "foreign")
	other.TenantID = uuid.NewString()
	_, _, err = s.InsertActiveAlarm(ctx, other)
	require.NoError(t, err)

	list := func(status model.AlarmStatusFilter, page, size int) model.AlarmPage {
		p, err := s.ListAlarms(ctx, AlarmQuery{TenantID: testTenant, Status: status, Page: model.Page{Number: page, Size: size}})
		require.NoError(t, err)
		return p
	}

	active := list(model.AlarmFilterActive, 1, 50)
	assert.Equal(t, 3, active.Total)
	require.Len(t, active.Items, 3)
	assert.Equal(t, ids[4], active.Items[0].ID, "newest first")

	assert.Equal(t, 1, list(model.AlarmFilterAcknowledged, 1, 50).Total)
	assert.Equal(t, 5, list(model.AlarmFilterAll, 1, 50).Total)

	p2 := list(model.AlarmFilterAll, 2, 2)
	assert.Equal(t, 5, p2.Total)
	require.Len(t, p2.Items, 2)
	assert.Equal(t, ids[2], p2.Items[0].ID)

	empty := list(model.AlarmFilterAll, 10, 2)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)

	bySeverity, err := s.ListAlarms(ctx, AlarmQuery{TenantID: testTenant, Status: model.AlarmFilterAll, Severity: model.SeverityCritical, Page: model.Page{Number: 1, Size: 50}})
	require.NoError(t, err)
	assert.Zero(t, bySeverity.Total)
}

func TestAlarmPreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := uuid.NewString()

	_, err := s.GetAlarmPreference(ctx, user, testTenant)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutAlarmPreference(ctx, model.AlarmPreference{UserID: user, TenantID: testTenant, Severity: model.SeverityCritical}))
	require.NoError(t, s.PutAlarmPreference(ctx, model.AlarmPreference{UserID: user, TenantID: testTenant, Type: string(model.AlarmInterfaceDown)}))

	p, err := s.GetAlarmPreference(ctx, user, testTenant)
	require.NoError(t, err)
	assert.Empty(t, p.Severity, "put replaces the whole preference")
	assert.Equal(t, string(model.AlarmInterfaceDown), p.Type)
}
