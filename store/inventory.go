package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SaveInventoryItem inserts or updates an item keyed by part number.
func (s *Store) SaveInventoryItem(ctx context.Context, item *InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (id, part_number, part_name, current_stock, min_stock, reorder_point, location)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(part_number) DO UPDATE SET
			part_name = excluded.part_name,
			current_stock = excluded.current_stock,
			min_stock = excluded.min_stock,
			reorder_point = excluded.reorder_point,
			location = excluded.location`,
		item.ID, item.PartNumber, item.PartName, item.CurrentStock, item.MinStock, item.ReorderPoint, item.Location)
	if err != nil {
		return fmt.Errorf("save inventory item: %w", err)
	}
	return nil
}

// GetInventory returns the inventory rows for the given part numbers. Unknown
// part numbers are omitted.
func (s *Store) GetInventory(ctx context.Context, partNumbers []string) ([]InventoryItem, error) {
	if len(partNumbers) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(partNumbers)), ",")
	args := make([]any, len(partNumbers))
	for i, p := range partNumbers {
		args[i] = p
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, part_number, part_name, current_stock, min_stock, reorder_point, location
		FROM inventory WHERE part_number IN (`+placeholders+`) ORDER BY part_number`, args...)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	defer rows.Close()

	var out []InventoryItem
	for rows.Next() {
		var it InventoryItem
		var location sql.NullString
		if err := rows.Scan(&it.ID, &it.PartNumber, &it.PartName, &it.CurrentStock, &it.MinStock, &it.ReorderPoint, &location); err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		it.Location = location.String
		out = append(out, it)
	}
	return out, rows.Err()
}
