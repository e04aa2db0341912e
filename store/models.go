package store

import "time"

// Work order statuses.
const (
	StatusCreated      = "Created"
	StatusScheduled    = "Scheduled"
	StatusPartsOrdered = "PartsOrdered"
	StatusReady        = "Ready"
	StatusInProgress   = "InProgress"
	StatusCompleted    = "Completed"
)

type WorkOrder struct {
	ID                 string         `json:"id"`
	MachineID          string         `json:"machineId"`
	FaultType          string         `json:"faultType"`
	Priority           string         `json:"priority"`
	AssignedTechnician string         `json:"assignedTechnician"`
	RequiredParts      []RequiredPart `json:"requiredParts"`
	EstimatedDuration  int            `json:"estimatedDuration"` // minutes
	CreatedAt          time.Time      `json:"createdAt"`
	Status             string         `json:"status"`
}

type RequiredPart struct {
	PartNumber  string `json:"partNumber"`
	PartName    string `json:"partName"`
	Quantity    int    `json:"quantity"`
	IsAvailable bool   `json:"isAvailable"`
}

type MaintenanceSchedule struct {
	ID                          string            `json:"id"`
	WorkOrderID                 string            `json:"workOrderId"`
	MachineID                   string            `json:"machineId"`
	ScheduledDate               time.Time         `json:"scheduledDate"`
	MaintenanceWindow           MaintenanceWindow `json:"maintenanceWindow"`
	RiskScore                   float64           `json:"riskScore"`
	PredictedFailureProbability float64           `json:"predictedFailureProbability"`
	RecommendedAction           string            `json:"recommendedAction"`
	Reasoning                   string            `json:"reasoning"`
	CreatedAt                   time.Time         `json:"createdAt"`
}

type MaintenanceWindow struct {
	ID               string    `json:"id"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	ProductionImpact string    `json:"productionImpact"` // Low, Medium, High
	IsAvailable      bool      `json:"isAvailable"`
}

type MaintenanceHistory struct {
	ID              string    `json:"id"`
	MachineID       string    `json:"machineId"`
	FaultType       string    `json:"faultType"`
	OccurrenceDate  time.Time `json:"occurrenceDate"`
	ResolutionDate  time.Time `json:"resolutionDate"`
	DowntimeMinutes int       `json:"downtimeMinutes"`
	Cost            float64   `json:"cost"`
}

type PartsOrder struct {
	ID                   string      `json:"id"`
	WorkOrderID          string      `json:"workOrderId"`
	OrderItems           []OrderItem `json:"orderItems"`
	SupplierID           string      `json:"supplierId"`
	SupplierName         string      `json:"supplierName"`
	TotalCost            float64     `json:"totalCost"`
	ExpectedDeliveryDate time.Time   `json:"expectedDeliveryDate"`
	OrderStatus          string      `json:"orderStatus"` // Pending, Ordered, Shipped, Delivered
	CreatedAt            time.Time   `json:"createdAt"`
}

type OrderItem struct {
	PartNumber string  `json:"partNumber"`
	PartName   string  `json:"partName"`
	Quantity   int     `json:"quantity"`
	UnitCost   float64 `json:"unitCost"`
	TotalCost  float64 `json:"totalCost"`
}

type InventoryItem struct {
	ID           string `json:"id"`
	PartNumber   string `json:"partNumber"`
	PartName     string `json:"partName"`
	CurrentStock int    `json:"currentStock"`
	MinStock     int    `json:"minStock"`
	ReorderPoint int    `json:"reorderPoint"`
	Location     string `json:"location"`
}

// NeedsReorder reports whether stock fell to or below the reorder point.
func (i InventoryItem) NeedsReorder() bool { return i.CurrentStock <= i.ReorderPoint }

type Supplier struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Parts        []string `json:"parts"`
	LeadTimeDays int      `json:"leadTimeDays"`
	Reliability  string   `json:"reliability"` // High, Medium, Low
	ContactEmail string   `json:"contactEmail"`
}
