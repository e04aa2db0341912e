package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePartsOrder stores the order and marks the work order PartsOrdered.
func (s *Store) CreatePartsOrder(ctx context.Context, o *PartsOrder) error {
	if o.ID == "" {
		o.ID = "PO-" + uuid.NewString()[:8]
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.OrderStatus == "" {
		o.OrderStatus = "Pending"
	}
	if o.OrderItems == nil {
		o.OrderItems = []OrderItem{}
	}
	items, err := json.Marshal(o.OrderItems)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin parts order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE work_orders SET status = ? WHERE id = ?`, StatusPartsOrdered, o.WorkOrderID)
	if err != nil {
		return fmt.Errorf("update work order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("work order %s: %w", o.WorkOrderID, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO parts_orders (id, work_order_id, order_items, supplier_id, supplier_name, total_cost,
			expected_delivery_date, order_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.WorkOrderID, string(items), o.SupplierID, o.SupplierName, o.TotalCost,
		o.ExpectedDeliveryDate, o.OrderStatus, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert parts order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit parts order: %w", err)
	}
	return nil
}

// ListPartsOrders returns the orders placed for a work order.
func (s *Store) ListPartsOrders(ctx context.Context, workOrderID string) ([]PartsOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_order_id, order_items, supplier_id, supplier_name, total_cost, expected_delivery_date, order_status, created_at
		FROM parts_orders WHERE work_order_id = ? ORDER BY created_at`, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("list parts orders: %w", err)
	}
	defer rows.Close()

	var out []PartsOrder
	for rows.Next() {
		var o PartsOrder
		var items string
		if err := rows.Scan(&o.ID, &o.WorkOrderID, &items, &o.SupplierID, &o.SupplierName, &o.TotalCost,
			&o.ExpectedDeliveryDate, &o.OrderStatus, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan parts order: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &o.OrderItems); err != nil {
			return nil, fmt.Errorf("decode order items: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
