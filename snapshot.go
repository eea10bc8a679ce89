package rudder

import (
	"strconv"
	"strings"
	"time"
)

// Config is the statically-typed view of a snapshot, populated from the
// field policy table. Consumers read trading parameters from here instead
// of re-parsing raw values.
type Config struct {
	ExchangeKey    string
	ExchangeSecret string
	LLMKey         string
	DatabaseURL    string
	APIURL         string
	Leverage       float64
	PositionSize   float64
	Interval       string
	Assets         []string
	MaxPositions   int
	DryRun         bool
}

// Snapshot is an immutable, versioned configuration state. Exactly one
// snapshot is current at any instant; readers obtain it through a lock-free
// atomic pointer load and never observe a partial update. Superseded
// snapshots are simply dropped once no reader holds them.
type Snapshot struct {
	// Config is the typed view of the snapshot. Its fields are promoted,
	// so snap.Leverage and snap.Config.Leverage are equivalent.
	Config

	// Version increases monotonically with each successful apply.
	Version uint64

	// LoadedAt is the time the snapshot became current.
	LoadedAt time.Time

	values map[string]string
}

// newSnapshot builds a snapshot from validated raw values. The values map is
// copied; the snapshot never aliases caller-owned state.
func newSnapshot(values map[string]string, version uint64, loadedAt time.Time) *Snapshot {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Snapshot{
		Config:   buildConfig(copied),
		Version:  version,
		LoadedAt: loadedAt,
		values:   copied,
	}
}

// Value returns the raw string value for a field.
func (s *Snapshot) Value(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Fields returns a copy of all raw field values.
func (s *Snapshot) Fields() map[string]string {
	copied := make(map[string]string, len(s.values))
	for k, v := range s.values {
		copied[k] = v
	}
	return copied
}

// derived returns the typed value of a field according to its policy.
// Used as the default cache recompute function.
func (s *Snapshot) derived(key string, policy FieldPolicy, ok bool) any {
	raw := s.values[key]
	if !ok {
		return raw
	}
	switch policy.Type {
	case TypeInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return raw
		}
		return n
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		return f
	case TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return raw
		}
		return b
	case TypeList:
		return parseList(raw)
	default:
		return raw
	}
}

// FieldChange records one field's transition between two snapshots.
type FieldChange struct {
	Old string
	New string
}

// diffValues computes the changed fields between two raw value maps,
// including fields added or removed by the candidate.
func diffValues(old, candidate map[string]string) map[string]FieldChange {
	changed := make(map[string]FieldChange)
	for key, newVal := range candidate {
		if oldVal, ok := old[key]; !ok || oldVal != newVal {
			changed[key] = FieldChange{Old: old[key], New: newVal}
		}
	}
	for key, oldVal := range old {
		if _, ok := candidate[key]; !ok {
			changed[key] = FieldChange{Old: oldVal, New: ""}
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return changed
}

// buildConfig populates the typed config from raw values. Parse failures
// leave the zero value; validation has already reported them.
func buildConfig(values map[string]string) Config {
	cfg := Config{
		ExchangeKey:    values["BINANCE_API_KEY"],
		ExchangeSecret: values["BINANCE_API_SECRET"],
		LLMKey:         values["DEEPSEEK_API_KEY"],
		DatabaseURL:    values["DATABASE_URL"],
		APIURL:         values["API_URL"],
		Interval:       values["INTERVAL"],
	}
	if raw, ok := values["LEVERAGE"]; ok {
		cfg.Leverage, _ = strconv.ParseFloat(raw, 64)
	}
	if raw, ok := values["POSITION_SIZE"]; ok {
		cfg.PositionSize, _ = strconv.ParseFloat(raw, 64)
	}
	if raw, ok := values["ASSETS"]; ok {
		cfg.Assets = parseList(raw)
	}
	if raw, ok := values["MAX_POSITIONS"]; ok {
		cfg.MaxPositions, _ = strconv.Atoi(raw)
	}
	if raw, ok := values["DRY_RUN"]; ok {
		cfg.DryRun, _ = strconv.ParseBool(raw)
	}
	return cfg
}

// parseList splits a comma-separated value, trimming whitespace and
// dropping empty elements.
func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
