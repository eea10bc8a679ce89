package rudder

// FieldType declares how a raw value is parsed before validation.
type FieldType int

const (
	// TypeString is an uninterpreted string value.
	TypeString FieldType = iota
	// TypeInt is a base-10 integer.
	TypeInt
	// TypeFloat is a decimal number.
	TypeFloat
	// TypeBool is a boolean accepted in strconv.ParseBool forms.
	TypeBool
	// TypeList is a comma-separated list of strings.
	TypeList
)

// ReloadClass declares whether a field may change at runtime.
type ReloadClass int

const (
	// ReloadHot fields may change without a process restart.
	ReloadHot ReloadClass = iota
	// ReloadRestart fields are rejected at runtime; a change requires a
	// process restart to take effect.
	ReloadRestart
)

// String returns the string representation of the reload class.
func (c ReloadClass) String() string {
	switch c {
	case ReloadHot:
		return "hot"
	case ReloadRestart:
		return "restart_required"
	default:
		return "unknown"
	}
}

// FieldPolicy describes one known configuration field: whether it must be
// present, how its raw value is parsed, which constraints apply, and whether
// it can be hot-reloaded. The policy table is the single source of schema
// truth; the validator, the snapshot builder, and the reloader's change
// classification all derive from it.
type FieldPolicy struct {
	// Required fields must be present and non-empty.
	Required bool

	// Type selects the parse applied to the raw value.
	Type FieldType

	// Min and Max bound numeric fields. Ignored when both are zero.
	Min float64
	Max float64

	// Enum restricts string fields to a fixed value set.
	Enum []string

	// Schemes restricts URL-shaped fields to an allow-listed scheme set.
	Schemes []string

	// Secret fields are validated only for non-emptiness. Their values are
	// never inspected, logged, or echoed through change records.
	Secret bool

	// Reload classifies the field for change classification.
	Reload ReloadClass
}

// DefaultPolicies returns the policy table for the trading configuration.
// Credentials and connection endpoints require a restart; trading parameters
// are hot-reloadable.
func DefaultPolicies() map[string]FieldPolicy {
	return map[string]FieldPolicy{
		"BINANCE_API_KEY": {
			Required: true,
			Type:     TypeString,
			Secret:   true,
			Reload:   ReloadRestart,
		},
		"BINANCE_API_SECRET": {
			Required: true,
			Type:     TypeString,
			Secret:   true,
			Reload:   ReloadRestart,
		},
		"DEEPSEEK_API_KEY": {
			Required: true,
			Type:     TypeString,
			Secret:   true,
			Reload:   ReloadRestart,
		},
		"DATABASE_URL": {
			Required: true,
			Type:     TypeString,
			Schemes:  []string{"postgresql", "mysql", "sqlite", "mongodb"},
			Reload:   ReloadRestart,
		},
		"API_URL": {
			Type:    TypeString,
			Schemes: []string{"http", "https"},
			Reload:  ReloadRestart,
		},
		"LEVERAGE": {
			Type:   TypeFloat,
			Min:    1.0,
			Max:    25.0,
			Reload: ReloadHot,
		},
		"POSITION_SIZE": {
			Type:   TypeFloat,
			Min:    20.0,
			Max:    100000.0,
			Reload: ReloadHot,
		},
		"INTERVAL": {
			Type:   TypeString,
			Enum:   []string{"1m", "3m", "5m", "15m", "1h", "4h", "1d"},
			Reload: ReloadHot,
		},
		"ASSETS": {
			Type:   TypeList,
			Reload: ReloadHot,
		},
		"MAX_POSITIONS": {
			Type:   TypeInt,
			Min:    1,
			Max:    50,
			Reload: ReloadHot,
		},
		"DRY_RUN": {
			Type:   TypeBool,
			Reload: ReloadHot,
		},
	}
}
