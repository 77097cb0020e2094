// internal/config/build.go
package config

import (
	"fmt"
	"sort"

	"github.com/fcolinet/wxmodbus/internal/decode"
	"github.com/fcolinet/wxmodbus/internal/poll"
)

// Modbus FC 3 limits.
const (
	minUnitID   = 1
	maxUnitID   = 247
	maxRegistry = 0xFFFF
	maxLength   = 125
)

// Build validates every sensor group and compiles the configuration into
// immutable GroupSpecs, ordered by sensor name. Any single violation
// fails the whole build; there is no skip-and-continue mode, so a
// misconfigured field can never silently drop out of the poll.
func Build(cfg *Config) ([]poll.GroupSpec, error) {
	if len(cfg.Sensors) == 0 {
		return nil, fmt.Errorf("config: no sensors defined")
	}

	names := make([]string, 0, len(cfg.Sensors))
	for name := range cfg.Sensors {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]poll.GroupSpec, 0, len(names))
	for _, name := range names {
		g, err := buildGroup(name, cfg.Sensors[name])
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func buildGroup(name string, sc SensorConfig) (poll.GroupSpec, error) {
	var g poll.GroupSpec

	if sc.SlaveID == nil {
		return g, fmt.Errorf("sensor %q: slave_id is mandatory and missing", name)
	}
	if *sc.SlaveID < minUnitID || *sc.SlaveID > maxUnitID {
		return g, fmt.Errorf("sensor %q: slave_id %d out of range [%d,%d]",
			name, *sc.SlaveID, minUnitID, maxUnitID)
	}
	if sc.Registry == nil {
		return g, fmt.Errorf("sensor %q: registry is mandatory and missing", name)
	}
	if *sc.Registry < 0 || *sc.Registry > maxRegistry {
		return g, fmt.Errorf("sensor %q: registry %d out of range [0,%d]",
			name, *sc.Registry, maxRegistry)
	}
	if sc.Length == nil {
		return g, fmt.Errorf("sensor %q: length is mandatory and missing", name)
	}
	length := *sc.Length
	if length < 1 || length > maxLength {
		return g, fmt.Errorf("sensor %q: length %d out of range [1,%d]",
			name, length, maxLength)
	}

	order, err := decode.ParseWordOrder(sc.WordOrder)
	if err != nil {
		return g, fmt.Errorf("sensor %q: %w", name, err)
	}

	if len(sc.Fields) == 0 {
		return g, fmt.Errorf("sensor %q: no fields defined", name)
	}

	fieldNames := make([]string, 0, len(sc.Fields))
	for fn := range sc.Fields {
		fieldNames = append(fieldNames, fn)
	}
	sort.Strings(fieldNames)

	fields := make([]decode.FieldSpec, 0, len(fieldNames))
	for _, fn := range fieldNames {
		f, err := buildField(name, fn, sc.Fields[fn], length)
		if err != nil {
			return g, err
		}
		fields = append(fields, f)
	}

	g = poll.GroupSpec{
		Name:   name,
		UnitID: byte(*sc.SlaveID),
		Start:  uint16(*sc.Registry),
		Length: uint16(length),
		Order:  order,
		Fields: fields,
	}
	return g, nil
}

func buildField(sensor, name string, fc FieldConfig, length int) (decode.FieldSpec, error) {
	var f decode.FieldSpec

	if fc.Index == nil {
		return f, fmt.Errorf("sensor %q: field %q: index is mandatory and missing", sensor, name)
	}
	if *fc.Index < 0 {
		return f, fmt.Errorf("sensor %q: field %q: index %d must be >= 0", sensor, name, *fc.Index)
	}
	if fc.Scale == nil {
		return f, fmt.Errorf("sensor %q: field %q: scale is mandatory and missing", sensor, name)
	}

	dt, err := decode.ParseDataType(fc.DataType)
	if err != nil {
		return f, fmt.Errorf("sensor %q: field %q: %w", sensor, name, err)
	}

	// Span check runs here, before any network I/O, so a 32-bit field that
	// does not fit the read length can never reach decode time.
	if last := *fc.Index + dt.Words() - 1; last >= length {
		return f, fmt.Errorf(
			"sensor %q: field %q: %s at index %d needs registers up to %d but read length is %d",
			sensor, name, dt, *fc.Index, last, length)
	}

	f = decode.FieldSpec{
		Name:  name,
		Index: *fc.Index,
		Scale: *fc.Scale,
		Type:  dt,
	}
	return f, nil
}
