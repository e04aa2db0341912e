package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *Store) AddMaintenanceHistory(ctx context.Context, h *MaintenanceHistory) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	var resolved any
	if !h.ResolutionDate.IsZero() {
		resolved = h.ResolutionDate
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_history (id, machine_id, fault_type, occurrence_date, resolution_date, downtime_minutes, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.MachineID, h.FaultType, h.OccurrenceDate, resolved, h.DowntimeMinutes, h.Cost)
	if err != nil {
		return fmt.Errorf("add maintenance history: %w", err)
	}
	return nil
}

// ListMaintenanceHistory returns the history of a machine, most recent first.
func (s *Store) ListMaintenanceHistory(ctx context.Context, machineID string) ([]MaintenanceHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, machine_id, fault_type, occurrence_date, resolution_date, downtime_minutes, cost
		FROM maintenance_history WHERE machine_id = ? ORDER BY occurrence_date DESC`, machineID)
	if err != nil {
		return nil, fmt.Errorf("list maintenance history: %w", err)
	}
	defer rows.Close()

	var out []MaintenanceHistory
	for rows.Next() {
		var h MaintenanceHistory
		var resolved sql.NullTime
		if err := rows.Scan(&h.ID, &h.MachineID, &h.FaultType, &h.OccurrenceDate, &resolved, &h.DowntimeMinutes, &h.Cost); err != nil {
			return nil, fmt.Errorf("scan maintenance history: %w", err)
		}
		if resolved.Valid {
			h.ResolutionDate = resolved.Time
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) SaveMaintenanceWindow(ctx context.Context, w *MaintenanceWindow) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_windows (id, start_time, end_time, production_impact, is_available)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			production_impact = excluded.production_impact,
			is_available = excluded.is_available`,
		w.ID, w.StartTime, w.EndTime, w.ProductionImpact, w.IsAvailable)
	if err != nil {
		return fmt.Errorf("save maintenance window: %w", err)
	}
	return nil
}

// ListAvailableWindows returns available windows starting within [from, to].
func (s *Store) ListAvailableWindows(ctx context.Context, from, to time.Time) ([]MaintenanceWindow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, production_impact, is_available
		FROM maintenance_windows
		WHERE is_available = TRUE AND start_time >= ? AND start_time <= ?
		ORDER BY start_time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	defer rows.Close()

	var out []MaintenanceWindow
	for rows.Next() {
		var w MaintenanceWindow
		if err := rows.Scan(&w.ID, &w.StartTime, &w.EndTime, &w.ProductionImpact, &w.IsAvailable); err != nil {
			return nil, fmt.Errorf("scan maintenance window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) getWindow(ctx context.Context, tx *sql.Tx, id string) (*MaintenanceWindow, error) {
	w := &MaintenanceWindow{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, start_time, end_time, production_impact, is_available
		FROM maintenance_windows WHERE id = ?`, id).
		Scan(&w.ID, &w.StartTime, &w.EndTime, &w.ProductionImpact, &w.IsAvailable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("maintenance window %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get maintenance window: %w", err)
	}
	return w, nil
}

// ErrWindowUnavailable is returned when scheduling into a reserved window.
var ErrWindowUnavailable = errors.New("maintenance window is not available")

// ScheduleMaintenance reserves the window, stores the schedule and marks the
// work order Scheduled in one transaction.
func (s *Store) ScheduleMaintenance(ctx context.Context, sched *MaintenanceSchedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var machineID string
	err = tx.QueryRowContext(ctx, `SELECT machine_id FROM work_orders WHERE id = ?`, sched.WorkOrderID).Scan(&machineID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("work order %s: %w", sched.WorkOrderID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load work order: %w", err)
	}

	w, err := s.getWindow(ctx, tx, sched.MaintenanceWindow.ID)
	if err != nil {
		return err
	}
	if !w.IsAvailable {
		return fmt.Errorf("window %s: %w", w.ID, ErrWindowUnavailable)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE maintenance_windows SET is_available = FALSE WHERE id = ?`, w.ID); err != nil {
		return fmt.Errorf("reserve window: %w", err)
	}
	w.IsAvailable = false

	if sched.ID == "" {
		sched.ID = "MS-" + uuid.NewString()[:8]
	}
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now().UTC()
	}
	sched.MachineID = machineID
	sched.MaintenanceWindow = *w
	sched.ScheduledDate = w.StartTime

	_, err = tx.ExecContext(ctx, `
		INSERT INTO maintenance_schedules (id, work_order_id, machine_id, scheduled_date, window_id, window_start, window_end,
			window_impact, risk_score, predicted_failure_probability, recommended_action, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.WorkOrderID, sched.MachineID, sched.ScheduledDate, w.ID, w.StartTime, w.EndTime,
		w.ProductionImpact, sched.RiskScore, sched.PredictedFailureProbability, sched.RecommendedAction, sched.Reasoning, sched.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE work_orders SET status = ? WHERE id = ?`, StatusScheduled, sched.WorkOrderID); err != nil {
		return fmt.Errorf("update work order status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule: %w", err)
	}
	return nil
}

// ListSchedules returns the schedules recorded for a work order.
func (s *Store) ListSchedules(ctx context.Context, workOrderID string) ([]MaintenanceSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_order_id, machine_id, scheduled_date, window_id, window_start, window_end, window_impact,
			risk_score, predicted_failure_probability, recommended_action, reasoning, created_at
		FROM maintenance_schedules WHERE work_order_id = ? ORDER BY created_at`, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []MaintenanceSchedule
	for rows.Next() {
		var m MaintenanceSchedule
		var impact, action, reasoning sql.NullString
		if err := rows.Scan(&m.ID, &m.WorkOrderID, &m.MachineID, &m.ScheduledDate, &m.MaintenanceWindow.ID,
			&m.MaintenanceWindow.StartTime, &m.MaintenanceWindow.EndTime, &impact, &m.RiskScore,
			&m.PredictedFailureProbability, &action, &reasoning, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		m.MaintenanceWindow.ProductionImpact = impact.String
		m.RecommendedAction = action.String
		m.Reasoning = reasoning.String
		out = append(out, m)
	}
	return out, rows.Err()
}
