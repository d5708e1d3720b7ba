// Package parts defines the core catalog and matching types for the HVAC
// part finder, and validates catalog records at ingest entry points.
package parts

// Part is one catalog entry: a purchasable HVAC part.
type Part struct {
	PartNumber  string            `json:"part_number"`
	Description string            `json:"description"`
	Category    string            `json:"category,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// MatchQuery is a technician's free-text search. TopK and Filters are
// optional; a nil TopK means the caller did not supply one.
type MatchQuery struct {
	Description *string           `json:"description"`
	TopK        *int              `json:"top_k,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
}

// MatchResult is one ranked candidate part from a similarity query.
type MatchResult struct {
	PartNumber  string  `json:"part_number"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// MatchResponse is the wire response for a match query. Matches are in
// relevance order, most relevant first, exactly as the index returned them.
type MatchResponse struct {
	QueryDescription string        `json:"query_description"`
	Status           string        `json:"status"`
	Matches          []MatchResult `json:"matches"`
}

// Replacement links a superseded part to its replacement.
type Replacement struct {
	OldPartNumber string `json:"old_part_number"`
	NewPartNumber string `json:"new_part_number"`
}

// Catalog part categories.
const (
	CategoryBlowerMotor      = "blower_motor"
	CategoryCondenserFan     = "condenser_fan_motor"
	CategoryDraftInducer     = "draft_inducer"
	CategoryCapacitor        = "capacitor"
	CategoryContactor        = "contactor"
	CategoryCompressor       = "compressor"
	CategoryIgniter          = "igniter"
	CategoryThermostat       = "thermostat"
	CategoryControlBoard     = "control_board"
	CategoryExpansionValve   = "expansion_valve"
	CategoryGasValve         = "gas_valve"
	CategoryPressureSwitch   = "pressure_switch"
	CategoryLimitSwitch      = "limit_switch"
	CategoryFlameSensor      = "flame_sensor"
	CategoryHeatExchanger    = "heat_exchanger"
	CategoryFilter           = "filter"
	CategoryFanBlade         = "fan_blade"
	CategoryTransformer      = "transformer"
	CategoryOther            = "other"
)

// ValidCategories is the set of recognised catalog categories.
var ValidCategories = map[string]bool{
	CategoryBlowerMotor: true, CategoryCondenserFan: true,
	CategoryDraftInducer: true, CategoryCapacitor: true,
	CategoryContactor: true, CategoryCompressor: true,
	CategoryIgniter: true, CategoryThermostat: true,
	CategoryControlBoard: true, CategoryExpansionValve: true,
	CategoryGasValve: true, CategoryPressureSwitch: true,
	CategoryLimitSwitch: true, CategoryFlameSensor: true,
	CategoryHeatExchanger: true, CategoryFilter: true,
	CategoryFanBlade: true, CategoryTransformer: true,
	CategoryOther: true,
}
