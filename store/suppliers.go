package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

func (s *Store) SaveSupplier(ctx context.Context, sup *Supplier) error {
	if sup.ID == "" {
		sup.ID = uuid.NewString()
	}
	if sup.Parts == nil {
		sup.Parts = []string{}
	}
	parts, err := json.Marshal(sup.Parts)
	if err != nil {
		return fmt.Errorf("encode supplier parts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, parts, lead_time_days, reliability, contact_email)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			parts = excluded.parts,
			lead_time_days = excluded.lead_time_days,
			reliability = excluded.reliability,
			contact_email = excluded.contact_email`,
		sup.ID, sup.Name, string(parts), sup.LeadTimeDays, sup.Reliability, sup.ContactEmail)
	if err != nil {
		return fmt.Errorf("save supplier: %w", err)
	}
	return nil
}

// FindSuppliers returns suppliers carrying any of the part numbers, ordered by
// lead time.
func (s *Store) FindSuppliers(ctx context.Context, partNumbers []string) ([]Supplier, error) {
	wanted, err := json.Marshal(partNumbers)
	if err != nil {
		return nil, fmt.Errorf("encode part numbers: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, parts, lead_time_days, reliability, contact_email
		FROM suppliers
		WHERE EXISTS (
			SELECT 1 FROM json_each(suppliers.parts) p
			JOIN json_each(?) w ON p.value = w.value
		)
		ORDER BY lead_time_days, name`, string(wanted))
	if err != nil {
		return nil, fmt.Errorf("find suppliers: %w", err)
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var sup Supplier
		var parts string
		var email sql.NullString
		if err := rows.Scan(&sup.ID, &sup.Name, &parts, &sup.LeadTimeDays, &sup.Reliability, &email); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		if err := json.Unmarshal([]byte(parts), &sup.Parts); err != nil {
			return nil, fmt.Errorf("decode supplier parts: %w", err)
		}
		sup.ContactEmail = email.String
		out = append(out, sup)
	}
	return out, rows.Err()
}

// SelectSupplier picks the high-reliability supplier with the shortest lead
// time, falling back to the first candidate. It returns false for an empty list.
func SelectSupplier(candidates []Supplier) (Supplier, bool) {
	if len(candidates) == 0 {
		return Supplier{}, false
	}
	best := -1
	for i, c := range candidates {
		if c.Reliability != "High" {
			continue
		}
		if best < 0 || c.LeadTimeDays < candidates[best].LeadTimeDays {
			best = i
		}
	}
	if best < 0 {
		return candidates[0], true
	}
	return candidates[best], true
}
