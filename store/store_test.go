package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/factoryops/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WorkOrderLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wo := &WorkOrder{
		MachineID: "machine-001",
		FaultType: "bearing_wear",
		Priority:  "High",
		RequiredParts: []RequiredPart{
			{PartNumber: "BRG-6205", PartName: "Bearing", Quantity: 2, IsAvailable: false},
		},
		EstimatedDuration: 120,
	}
	require.NoError(t, s.CreateWorkOrder(ctx, wo))
	assert.NotEmpty(t, wo.ID)
	assert.Equal(t, StatusCreated, wo.Status)

	got, err := s.GetWorkOrder(ctx, wo.ID)
	require.NoError(t, err)
	assert.Equal(t, "machine-001", got.MachineID)
	require.Len(t, got.RequiredParts, 1)
	assert.Equal(t, "BRG-6205", got.RequiredParts[0].PartNumber)

	require.NoError(t, s.UpdateWorkOrderStatus(ctx, wo.ID, StatusInProgress))
	list, err := s.ListWorkOrders(ctx, "machine-001")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusInProgress, list[0].Status)
}

func TestStore_GetWorkOrder_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetWorkOrder(context.Background(), "WO-missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateWorkOrderStatus(context.Background(), "WO-missing", StatusReady), ErrNotFound)
}

func TestStore_InventoryAndSuppliers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveInventoryItem(ctx, &InventoryItem{PartNumber: "BRG-6205", PartName: "Bearing", CurrentStock: 1, ReorderPoint: 2}))
	require.NoError(t, s.SaveInventoryItem(ctx, &InventoryItem{PartNumber: "BLT-100", PartName: "Belt", CurrentStock: 10, ReorderPoint: 2}))
	// upsert by part number
	require.NoError(t, s.SaveInventoryItem(ctx, &InventoryItem{PartNumber: "BLT-100", PartName: "Belt", CurrentStock: 9, ReorderPoint: 2}))

	items, err := s.GetInventory(ctx, []string{"BRG-6205", "BLT-100", "UNKNOWN"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "BLT-100", items[0].PartNumber)
	assert.Equal(t, 9, items[0].CurrentStock)
	assert.True(t, items[1].NeedsReorder())

	require.NoError(t, s.SaveSupplier(ctx, &Supplier{ID: "s1", Name: "Slow Reliable", Parts: []string{"BRG-6205"}, LeadTimeDays: 9, Reliability: "High"}))
	require.NoError(t, s.SaveSupplier(ctx, &Supplier{ID: "s2", Name: "Fast Risky", Parts: []string{"BRG-6205"}, LeadTimeDays: 2, Reliability: "Low"}))
	require.NoError(t, s.SaveSupplier(ctx, &Supplier{ID: "s3", Name: "Fast Reliable", Parts: []string{"BRG-6205", "BLT-100"}, LeadTimeDays: 4, Reliability: "High"}))
	require.NoError(t, s.SaveSupplier(ctx, &Supplier{ID: "s4", Name: "Other", Parts: []string{"XYZ"}, LeadTimeDays: 1, Reliability: "High"}))

	sups, err := s.FindSuppliers(ctx, []string{"BRG-6205"})
	require.NoError(t, err)
	require.Len(t, sups, 3)
	assert.Equal(t, "s2", sups[0].ID)

	best, ok := SelectSupplier(sups)
	require.True(t, ok)
	assert.Equal(t, "s3", best.ID)
}

func TestSelectSupplier_Fallbacks(t *testing.T) {
	_, ok := SelectSupplier(nil)
	assert.False(t, ok)

	best, ok := SelectSupplier([]Supplier{{ID: "a", Reliability: "Low"}, {ID: "b", Reliability: "Medium"}})
	require.True(t, ok)
	assert.Equal(t, "a", best.ID)
}

func TestStore_ScheduleMaintenance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wo := &WorkOrder{MachineID: "machine-001", FaultType: "overheating", Priority: "Medium"}
	require.NoError(t, s.CreateWorkOrder(ctx, wo))

	start := time.Date(2030, 1, 2, 22, 0, 0, 0, time.UTC)
	win := &MaintenanceWindow{ID: "mw-1", StartTime: start, EndTime: start.Add(8 * time.Hour), ProductionImpact: "Low", IsAvailable: true}
	require.NoError(t, s.SaveMaintenanceWindow(ctx, win))

	avail, err := s.ListAvailableWindows(ctx, start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, avail, 1)

	sched := &MaintenanceSchedule{WorkOrderID: wo.ID, MaintenanceWindow: MaintenanceWindow{ID: "mw-1"}, RiskScore: 0.7, Reasoning: "night shift"}
	require.NoError(t, s.ScheduleMaintenance(ctx, sched))
	assert.Equal(t, "machine-001", sched.MachineID)
	assert.True(t, sched.ScheduledDate.Equal(start))

	got, err := s.GetWorkOrder(ctx, wo.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)

	avail, err = s.ListAvailableWindows(ctx, start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, avail)

	err = s.ScheduleMaintenance(ctx, &MaintenanceSchedule{WorkOrderID: wo.ID, MaintenanceWindow: MaintenanceWindow{ID: "mw-1"}})
	assert.ErrorIs(t, err, ErrWindowUnavailable)

	err = s.ScheduleMaintenance(ctx, &MaintenanceSchedule{WorkOrderID: "WO-missing", MaintenanceWindow: MaintenanceWindow{ID: "mw-1"}})
	assert.ErrorIs(t, err, ErrNotFound)

	schedules, err := s.ListSchedules(ctx, wo.ID)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "night shift", schedules[0].Reasoning)
}

func TestStore_PartsOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wo := &WorkOrder{MachineID: "machine-002", FaultType: "belt_slip", Priority: "Low"}
	require.NoError(t, s.CreateWorkOrder(ctx, wo))

	order := &PartsOrder{
		WorkOrderID:  wo.ID,
		OrderItems:   []OrderItem{{PartNumber: "BLT-100", PartName: "Belt", Quantity: 1, UnitCost: 100, TotalCost: 100}},
		SupplierID:   "s3",
		SupplierName: "Fast Reliable",
		TotalCost:    100,
	}
	require.NoError(t, s.CreatePartsOrder(ctx, order))
	assert.Equal(t, "Pending", order.OrderStatus)

	orders, err := s.ListPartsOrders(ctx, wo.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "BLT-100", orders[0].OrderItems[0].PartNumber)

	got, err := s.GetWorkOrder(ctx, wo.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPartsOrdered, got.Status)

	err = s.CreatePartsOrder(ctx, &PartsOrder{WorkOrderID: "WO-missing", SupplierID: "x", SupplierName: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_MaintenanceHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddMaintenanceHistory(ctx, &MaintenanceHistory{MachineID: "m1", FaultType: "a", OccurrenceDate: older, ResolutionDate: older.Add(time.Hour), DowntimeMinutes: 60, Cost: 250}))
	require.NoError(t, s.AddMaintenanceHistory(ctx, &MaintenanceHistory{MachineID: "m1", FaultType: "b", OccurrenceDate: newer}))

	hist, err := s.ListMaintenanceHistory(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "b", hist[0].FaultType)
	assert.True(t, hist[0].ResolutionDate.IsZero())
	assert.Equal(t, 250.0, hist[1].Cost)
}

func TestGenerateWindows(t *testing.T) {
	from := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	wins, err := GenerateWindows("0 22 * * *", from, 3*24*time.Hour, 8*time.Hour, "Low")
	require.NoError(t, err)
	require.Len(t, wins, 3)
	assert.Equal(t, time.Date(2030, 5, 1, 22, 0, 0, 0, time.UTC), wins[0].StartTime.UTC())
	assert.Equal(t, wins[0].StartTime.Add(8*time.Hour), wins[0].EndTime)
	assert.Equal(t, "mw-2030-05-01T2200", wins[0].ID)
	assert.True(t, wins[2].IsAvailable)

	_, err = GenerateWindows("not a cron", from, time.Hour, time.Hour, "Low")
	assert.Error(t, err)
}
