package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/factoryops/store"
)

// MaintenanceRepository is the data access used by the maintenance tools.
// *store.Store satisfies it.
type MaintenanceRepository interface {
	GetWorkOrder(ctx context.Context, id string) (*store.WorkOrder, error)
	CreateWorkOrder(ctx context.Context, w *store.WorkOrder) error
	GetInventory(ctx context.Context, partNumbers []string) ([]store.InventoryItem, error)
	FindSuppliers(ctx context.Context, partNumbers []string) ([]store.Supplier, error)
	ListMaintenanceHistory(ctx context.Context, machineID string) ([]store.MaintenanceHistory, error)
	ListAvailableWindows(ctx context.Context, from, to time.Time) ([]store.MaintenanceWindow, error)
	SaveMaintenanceWindow(ctx context.Context, w *store.MaintenanceWindow) error
	ScheduleMaintenance(ctx context.Context, s *store.MaintenanceSchedule) error
	CreatePartsOrder(ctx context.Context, o *store.PartsOrder) error
}

// WindowPolicy controls generation of maintenance windows when none are stored.
type WindowPolicy struct {
	Cron        string
	Duration    time.Duration
	HorizonDays int
}

// MaintenanceOptions configure NewMaintenanceTools.
type MaintenanceOptions struct {
	Windows WindowPolicy
	// UnitCost is the placeholder price per ordered part.
	UnitCost float64
	Now      func() time.Time
}

type maintenanceTools struct {
	repo MaintenanceRepository
	opts MaintenanceOptions
}

// NewMaintenanceTools returns the data access tools exposed to managed agents.
func NewMaintenanceTools(repo MaintenanceRepository, optFns ...func(o *MaintenanceOptions)) *Set {
	opts := MaintenanceOptions{
		Windows:  WindowPolicy{Cron: "0 22 * * *", Duration: 8 * time.Hour, HorizonDays: 14},
		UnitCost: 100,
		Now:      func() time.Time { return time.Now().UTC() },
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	m := &maintenanceTools{repo: repo, opts: opts}

	return NewSet(
		NewFunctionToolFromStruct("get_machine_history",
			"Return past faults, downtime and repair cost for a machine.",
			machineArgs{}, m.machineHistory),
		NewFunctionTool("check_inventory",
			"Return stock levels for the given part numbers and whether each is available.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"part_numbers": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"part_numbers"},
			}, m.checkInventory),
		NewFunctionTool("create_work_order",
			"Create a repair work order. Part availability is derived from inventory.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"machine_id": map[string]any{"type": "string"},
					"fault_type": map[string]any{"type": "string"},
					"priority":   map[string]any{"type": "string", "enum": []string{"Low", "Medium", "High", "Critical"}},
					"required_parts": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"part_number": map[string]any{"type": "string"},
								"part_name":   map[string]any{"type": "string"},
								"quantity":    map[string]any{"type": "integer"},
							},
							"required": []string{"part_number", "quantity"},
						},
					},
					"estimated_duration": map[string]any{"type": "integer", "description": "Minutes"},
					"assigned_technician": map[string]any{"type": "string"},
				},
				"required": []string{"machine_id", "fault_type", "priority"},
			}, m.createWorkOrder),
		NewFunctionToolFromStruct("get_work_order",
			"Load a work order by id.",
			workOrderArgs{}, m.getWorkOrder),
		NewFunctionTool("list_maintenance_windows",
			"List available maintenance windows in the coming days.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"days": map[string]any{"type": "integer", "description": "Days ahead, defaults to the planning horizon"},
				},
			}, m.listWindows),
		NewFunctionTool("schedule_maintenance",
			"Book a maintenance window for a work order.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"work_order_id":                 map[string]any{"type": "string"},
					"window_id":                     map[string]any{"type": "string"},
					"risk_score":                    map[string]any{"type": "number"},
					"predicted_failure_probability": map[string]any{"type": "number"},
					"recommended_action":            map[string]any{"type": "string"},
					"reasoning":                     map[string]any{"type": "string"},
				},
				"required": []string{"work_order_id", "window_id"},
			}, m.scheduleMaintenance),
		NewFunctionTool("find_suppliers",
			"Find suppliers for the given part numbers, fastest first.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"part_numbers": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"part_numbers"},
			}, m.findSuppliers),
		NewFunctionToolFromStruct("create_parts_order",
			"Order every unavailable part of a work order from the most reliable fast supplier.",
			workOrderArgs{}, m.createPartsOrder),
	)
}

type machineArgs struct {
	MachineID string `json:"machine_id" description:"Machine identifier"`
}

type workOrderArgs struct {
	WorkOrderID string `json:"work_order_id" description:"Work order identifier"`
}

// notFound maps store.ErrNotFound to a NOT_FOUND tool error.
func notFound(tool string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewToolError(tool, err.Error(), CodeNotFound)
	}
	return err
}

func (m *maintenanceTools) machineHistory(ctx context.Context, args map[string]any) (any, error) {
	machineID, _ := args["machine_id"].(string)
	hist, err := m.repo.ListMaintenanceHistory(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if hist == nil {
		hist = []store.MaintenanceHistory{}
	}
	return map[string]any{"machineId": machineID, "history": hist}, nil
}

func (m *maintenanceTools) checkInventory(ctx context.Context, args map[string]any) (any, error) {
	parts := stringSlice(args["part_numbers"])
	items, err := m.repo.GetInventory(ctx, parts)
	if err != nil {
		return nil, err
	}
	byPart := make(map[string]store.InventoryItem, len(items))
	for _, it := range items {
		byPart[it.PartNumber] = it
	}
	out := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		it, ok := byPart[p]
		out = append(out, map[string]any{
			"partNumber":   p,
			"known":        ok,
			"currentStock": it.CurrentStock,
			"isAvailable":  ok && it.CurrentStock > 0,
			"needsReorder": ok && it.NeedsReorder(),
			"location":     it.Location,
		})
	}
	return out, nil
}

func (m *maintenanceTools) createWorkOrder(ctx context.Context, args map[string]any) (any, error) {
	wo := &store.WorkOrder{
		MachineID:          stringArg(args, "machine_id"),
		FaultType:          stringArg(args, "fault_type"),
		Priority:           stringArg(args, "priority"),
		AssignedTechnician: stringArg(args, "assigned_technician"),
		EstimatedDuration:  intArg(args, "estimated_duration"),
	}

	raw, _ := args["required_parts"].([]any)
	numbers := make([]string, 0, len(raw))
	for _, r := range raw {
		pm, ok := r.(map[string]any)
		if !ok {
			return nil, NewToolError("create_work_order", "required_parts entries must be objects", CodeValidation)
		}
		rp := store.RequiredPart{
			PartNumber: stringArg(pm, "part_number"),
			PartName:   stringArg(pm, "part_name"),
			Quantity:   intArg(pm, "quantity"),
		}
		wo.RequiredParts = append(wo.RequiredParts, rp)
		numbers = append(numbers, rp.PartNumber)
	}

	items, err := m.repo.GetInventory(ctx, numbers)
	if err != nil {
		return nil, err
	}
	stock := map[string]store.InventoryItem{}
	for _, it := range items {
		stock[it.PartNumber] = it
	}
	for i, rp := range wo.RequiredParts {
		it, ok := stock[rp.PartNumber]
		wo.RequiredParts[i].IsAvailable = ok && it.CurrentStock >= rp.Quantity
		if wo.RequiredParts[i].PartName == "" {
			wo.RequiredParts[i].PartName = it.PartName
		}
	}

	if err := m.repo.CreateWorkOrder(ctx, wo); err != nil {
		return nil, err
	}
	return wo, nil
}

func (m *maintenanceTools) getWorkOrder(ctx context.Context, args map[string]any) (any, error) {
	wo, err := m.repo.GetWorkOrder(ctx, stringArg(args, "work_order_id"))
	if err != nil {
		return nil, notFound("get_work_order", err)
	}
	return wo, nil
}

func (m *maintenanceTools) listWindows(ctx context.Context, args map[string]any) (any, error) {
	days := intArg(args, "days")
	if days <= 0 {
		days = m.opts.Windows.HorizonDays
	}
	from := m.opts.Now()
	to := from.Add(time.Duration(days) * 24 * time.Hour)

	wins, err := m.repo.ListAvailableWindows(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(wins) > 0 {
		return wins, nil
	}

	wins, err = store.GenerateWindows(m.opts.Windows.Cron, from, to.Sub(from), m.opts.Windows.Duration, "Low")
	if err != nil {
		return nil, err
	}
	for i := range wins {
		if err := m.repo.SaveMaintenanceWindow(ctx, &wins[i]); err != nil {
			return nil, err
		}
	}
	return wins, nil
}

func (m *maintenanceTools) scheduleMaintenance(ctx context.Context, args map[string]any) (any, error) {
	sched := &store.MaintenanceSchedule{
		WorkOrderID:                 stringArg(args, "work_order_id"),
		MaintenanceWindow:           store.MaintenanceWindow{ID: stringArg(args, "window_id")},
		RiskScore:                   floatArg(args, "risk_score"),
		PredictedFailureProbability: floatArg(args, "predicted_failure_probability"),
		RecommendedAction:           stringArg(args, "recommended_action"),
		Reasoning:                   stringArg(args, "reasoning"),
	}
	if err := m.repo.ScheduleMaintenance(ctx, sched); err != nil {
		if errors.Is(err, store.ErrWindowUnavailable) {
			return nil, NewToolError("schedule_maintenance", err.Error(), CodeExecution)
		}
		return nil, notFound("schedule_maintenance", err)
	}
	return sched, nil
}

func (m *maintenanceTools) findSuppliers(ctx context.Context, args map[string]any) (any, error) {
	sups, err := m.repo.FindSuppliers(ctx, stringSlice(args["part_numbers"]))
	if err != nil {
		return nil, err
	}
	if sups == nil {
		sups = []store.Supplier{}
	}
	return sups, nil
}

func (m *maintenanceTools) createPartsOrder(ctx context.Context, args map[string]any) (any, error) {
	wo, err := m.repo.GetWorkOrder(ctx, stringArg(args, "work_order_id"))
	if err != nil {
		return nil, notFound("create_parts_order", err)
	}

	var items []store.OrderItem
	var numbers []string
	var total float64
	for _, p := range wo.RequiredParts {
		if p.IsAvailable {
			continue
		}
		cost := m.opts.UnitCost * float64(p.Quantity)
		items = append(items, store.OrderItem{
			PartNumber: p.PartNumber,
			PartName:   p.PartName,
			Quantity:   p.Quantity,
			UnitCost:   m.opts.UnitCost,
			TotalCost:  cost,
		})
		numbers = append(numbers, p.PartNumber)
		total += cost
	}
	if len(items) == 0 {
		return map[string]any{"workOrderId": wo.ID, "ordered": false, "reason": "all required parts are in stock"}, nil
	}

	sups, err := m.repo.FindSuppliers(ctx, numbers)
	if err != nil {
		return nil, err
	}
	sup, ok := store.SelectSupplier(sups)
	if !ok {
		return nil, NewToolError("create_parts_order", fmt.Sprintf("no supplier carries %v", numbers), CodeNotFound)
	}

	order := &store.PartsOrder{
		WorkOrderID:          wo.ID,
		OrderItems:           items,
		SupplierID:           sup.ID,
		SupplierName:         sup.Name,
		TotalCost:            total,
		ExpectedDeliveryDate: m.opts.Now().AddDate(0, 0, sup.LeadTimeDays),
	}
	if err := m.repo.CreatePartsOrder(ctx, order); err != nil {
		return nil, notFound("create_parts_order", err)
	}
	return order, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
