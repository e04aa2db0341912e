package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const workOrderColumns = `id, machine_id, fault_type, priority, assigned_technician, required_parts, estimated_duration, status, created_at`

func scanWorkOrder(scanner interface {
	Scan(dest ...any) error
}) (*WorkOrder, error) {
	w := &WorkOrder{}
	var technician sql.NullString
	var parts string
	err := scanner.Scan(&w.ID, &w.MachineID, &w.FaultType, &w.Priority, &technician, &parts, &w.EstimatedDuration, &w.Status, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	w.AssignedTechnician = technician.String
	if err := json.Unmarshal([]byte(parts), &w.RequiredParts); err != nil {
		return nil, fmt.Errorf("decode required parts: %w", err)
	}
	return w, nil
}

// CreateWorkOrder inserts w, assigning an ID, creation time and the Created
// status when they are unset.
func (s *Store) CreateWorkOrder(ctx context.Context, w *WorkOrder) error {
	if w.ID == "" {
		w.ID = "WO-" + uuid.NewString()[:8]
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	if w.Status == "" {
		w.Status = StatusCreated
	}
	if w.RequiredParts == nil {
		w.RequiredParts = []RequiredPart{}
	}
	parts, err := json.Marshal(w.RequiredParts)
	if err != nil {
		return fmt.Errorf("encode required parts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO work_orders (`+workOrderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.MachineID, w.FaultType, w.Priority, w.AssignedTechnician, string(parts), w.EstimatedDuration, w.Status, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("create work order: %w", err)
	}
	return nil
}

// GetWorkOrder returns the work order with id or ErrNotFound.
func (s *Store) GetWorkOrder(ctx context.Context, id string) (*WorkOrder, error) {
	w, err := scanWorkOrder(s.db.QueryRowContext(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("work order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get work order: %w", err)
	}
	return w, nil
}

// ListWorkOrders returns the work orders of a machine, newest first.
func (s *Store) ListWorkOrders(ctx context.Context, machineID string) ([]WorkOrder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE machine_id = ? ORDER BY created_at DESC`, machineID)
	if err != nil {
		return nil, fmt.Errorf("list work orders: %w", err)
	}
	defer rows.Close()

	var out []WorkOrder
	for rows.Next() {
		w, err := scanWorkOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work order: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// UpdateWorkOrderStatus sets the status of a work order.
func (s *Store) UpdateWorkOrderStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE work_orders SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update work order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update work order status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("work order %s: %w", id, ErrNotFound)
	}
	return nil
}
