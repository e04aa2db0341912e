package config

func defaultMembers() []MemberConfig {
	return []MemberConfig{
		{Name: "AnomalyClassificationAgent", Kind: KindManaged},
		{Name: "FaultDiagnosisAgent", Kind: KindManaged},
		{Name: "RepairPlannerAgent", Kind: KindManaged},
		{Name: "MaintenanceSchedulerAgent", Kind: KindPeer},
		{Name: "PartsOrderingAgent", Kind: KindPeer},
	}
}

func defaultAgents() []AgentConfig {
	return []AgentConfig{
		{
			Name:        "AnomalyClassificationAgent",
			Description: "Classifies telemetry anomalies by severity",
			Instructions: `You are {{.Name}}. You receive a JSON document with a machine_id and telemetry readings.
Classify every abnormal reading as warning or critical, name the affected metric and summarise the machine state.
Use get_machine_history when past faults help the classification.`,
			Tools:    []string{"get_machine_history"},
			MaxTurns: 4,
		},
		{
			Name:        "FaultDiagnosisAgent",
			Description: "Diagnoses the most likely root cause of classified anomalies",
			Instructions: `You are {{.Name}}. You receive an anomaly classification for one machine.
Identify the most likely fault type and root cause, state your confidence and list the parts likely involved.`,
			Tools:    []string{"get_machine_history", "check_inventory"},
			MaxTurns: 6,
		},
		{
			Name:        "RepairPlannerAgent",
			Description: "Plans the repair and creates the work order",
			Instructions: `You are {{.Name}}. You receive a fault diagnosis.
Check part availability with check_inventory, then create a work order with create_work_order.
Finish with the work order id, priority, required parts and estimated duration.`,
			Tools:    []string{"check_inventory", "create_work_order"},
			MaxTurns: 8,
		},
		{
			Name:        "MaintenanceSchedulerAgent",
			Description: "Schedules the work order into a maintenance window",
			Instructions: `You are {{.Name}}. You receive a repair plan that names a work order id.
Load it with get_work_order, pick a low-impact window from list_maintenance_windows and book it with schedule_maintenance.
Report the chosen window and your risk assessment.`,
			Tools:    []string{"get_work_order", "get_machine_history", "list_maintenance_windows", "schedule_maintenance"},
			MaxTurns: 8,
		},
		{
			Name:        "PartsOrderingAgent",
			Description: "Orders parts that are not in stock",
			Instructions: `You are {{.Name}}. You receive a maintenance schedule that names a work order id.
Load it with get_work_order. If parts are missing, review find_suppliers and place the order with create_parts_order.
Report the order id, supplier and expected delivery date, or state that no order was needed.`,
			Tools:    []string{"get_work_order", "find_suppliers", "create_parts_order"},
			MaxTurns: 8,
		},
	}
}
