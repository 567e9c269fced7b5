package model

// PipelineDefinition is a filter chain followed by an ordered handler
// list, evaluated once per matching event by the event pipeline (C6).
type PipelineDefinition struct {
	ID          string
	Platforms   map[string]struct{} // empty = "*", matches every platform
	EventTypes  map[string]struct{} // empty = "*", matches every event type
	Filters     []FilterSpec
	RequireAll  bool // true = AND chain; false (the zero value) = OR chain, so an unset field ORs the filters
	HandlerIDs  []string
	StopOnMatch bool
}

// FilterKind enumerates the built-in filter predicates.
type FilterKind string

const (
	FilterPlatform       FilterKind = "Platform"
	FilterChannel        FilterKind = "Channel"
	FilterUserRole       FilterKind = "UserRole"
	FilterMessagePattern FilterKind = "MessagePattern"
	FilterTimeWindow     FilterKind = "TimeWindow"
	FilterComposite      FilterKind = "Composite"
)

// FilterSpec is the declarative, serializable form of one filter. The
// pipeline package compiles a FilterSpec tree into an evaluable Filter.
type FilterSpec struct {
	Kind FilterKind

	// Platform
	Platforms []string

	// Channel
	Channels []string

	// UserRole
	Roles   []string
	AnyRole bool // true = any-of, false = all-of

	// MessagePattern
	Patterns   []string
	AnyPattern bool // true = any-of, false = all-of

	// TimeWindow
	StartHour int
	EndHour   int
	Timezone  string // IANA location name; "" = UTC

	// Composite
	Children []FilterSpec
	AllOf    bool // true = AND, false = OR
}
