// Package observerproto holds the JSON messages of the read-only observer
// endpoints.
package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Field names a subscribable per-voxel quantity. Vector fields are sent as
// their magnitude.
const (
	FieldAirTemp      = "air_temp"
	FieldMaterialTemp = "material_temp"
	FieldAirPressure  = "air_pressure"
	FieldSpeed        = "speed"
	FieldPassability  = "passability"
	FieldSource       = "source"
	FieldFan          = "fan"
)

// Fields lists every Field constant in a stable order.
var Fields = []string{
	FieldAirTemp,
	FieldMaterialTemp,
	FieldAirPressure,
	FieldSpeed,
	FieldPassability,
	FieldSource,
	FieldFan,
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	Name            string   `json:"name"`
	Tick            uint64   `json:"tick"`
	Ready           bool     `json:"ready"`
	Kernel          string   `json:"kernel"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Dims            [3]int   `json:"dims"`
	Fields          []string `json:"fields"`
	SourceKinds     []string `json:"source_kinds"`
	FanKinds        []string `json:"fan_kinds"`
}

// Client -> Server. First message on the observer WS connection; re-send it
// to move the slice.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Field           string `json:"field"`
	// Axis is "x", "y" or "z": the slice is the plane Axis == Index.
	Axis  string `json:"axis"`
	Index int    `json:"index"`
}

// Server -> Client. Sent after every committed step and on (re)subscribe.
//
// Data is row-major with W columns. For axis z a cell is (x, y), for axis y
// (x, z) and for axis x (y, z).
type SliceMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Tick            uint64    `json:"tick"`
	Field           string    `json:"field"`
	Axis            string    `json:"axis"`
	Index           int       `json:"index"`
	W               int       `json:"w"`
	H               int       `json:"h"`
	Min             float32   `json:"min"`
	Max             float32   `json:"max"`
	Data            []float32 `json:"data"`
}
