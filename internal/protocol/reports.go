package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

// Temperature is a report of one or more heater readings. Fields are
// omitted (zero value + the Has* flag false) when absent from the
// line, per spec: missing numeric fields are "unknown", not zero.
type Temperature struct {
	HotendTemp     float64
	HasHotendTemp  bool
	HotendSetpoint float64
	HasHotendSet   bool
	BedTemp        float64
	HasBedTemp     bool
	BedSetpoint    float64
	HasBedSet      bool
}

// temperatureFieldRE matches repeated ([TB]\d*):<float>( /<float>)? groups,
// e.g. "T:205.3 /210.0 @127 B:60.1 /60.0 @64".
var temperatureFieldRE = regexp.MustCompile(`([TB]\d*):(-?[0-9]*\.?[0-9]+)(?:\s*/(-?[0-9]*\.?[0-9]+))?`)

// ParseTemperature extracts heater readings from a line such as
// "ok T:205.3 /210.0 @127 B:60.1 /60.0 @64". Returns ok=false if the
// line carries no recognizable temperature field.
func ParseTemperature(line string) (Temperature, bool) {
	matches := temperatureFieldRE.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return Temperature{}, false
	}

	var t Temperature
	found := false
	for _, m := range matches {
		kind := m[1]
		cur, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		var set float64
		hasSet := false
		if m[3] != "" {
			if v, err := strconv.ParseFloat(m[3], 64); err == nil {
				set = v
				hasSet = true
			}
		}

		switch {
		case strings.HasPrefix(kind, "T"):
			t.HotendTemp = cur
			t.HasHotendTemp = true
			if hasSet {
				t.HotendSetpoint = set
				t.HasHotendSet = true
			}
			found = true
		case strings.HasPrefix(kind, "B"):
			t.BedTemp = cur
			t.HasBedTemp = true
			if hasSet {
				t.BedSetpoint = set
				t.HasBedSet = true
			}
			found = true
		}
	}
	return t, found
}

// Position is a parsed machine coordinate report.
type Position struct {
	X, Y, Z float64
}

// ParsePosition parses "ok C: X:<f> Y:<f> Z:<f>" style lines.
// Tokenises on whitespace; coordinates are the substring after the
// first ':' in each token. Fewer than five tokens is treated as not
// a position line.
func ParsePosition(line string) (Position, bool) {
	tokens := strings.Fields(line)
	if len(tokens) < 5 {
		return Position{}, false
	}

	var pos Position
	found := 0
	for _, tok := range tokens {
		idx := strings.IndexByte(tok, ':')
		if idx < 0 {
			continue
		}
		key := tok[:idx]
		val := tok[idx+1:]
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			continue
		}
		switch key {
		case "X":
			pos.X = f
			found++
		case "Y":
			pos.Y = f
			found++
		case "Z":
			pos.Z = f
			found++
		}
	}
	if found == 0 {
		return Position{}, false
	}
	return pos, true
}

// Status is a parsed "<State|Key:v1,v2,...|...>" report.
type Status struct {
	State  string
	Fields map[string][]float64
}

// OldStatusFormatAdvisory is the advisory text reported alongside an
// "ERROR" status when a status line has fewer than three
// pipe-separated fields (the old, unsupported format).
const OldStatusFormatAdvisory = "set new_status_format true"

// ParseStatus parses a device status line after stripping the
// surrounding angle brackets. ok=false with an empty Status means
// the line used the old, unsupported format (fewer than three
// pipe-separated fields); callers should emit the advisory per
// spec.md §4.4 in that case.
func ParseStatus(line string) (Status, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(line, "<"), ">")
	pieces := strings.Split(trimmed, "|")
	if len(pieces) < 3 {
		return Status{}, false
	}

	st := Status{
		State:  pieces[0],
		Fields: make(map[string][]float64, len(pieces)-1),
	}

	for _, piece := range pieces[1:] {
		idx := strings.IndexByte(piece, ':')
		if idx < 0 {
			continue
		}
		name := piece[:idx]
		rawValues := strings.Split(piece[idx+1:], ",")
		values := make([]float64, 0, len(rawValues))
		for _, rv := range rawValues {
			f, err := strconv.ParseFloat(strings.TrimSpace(rv), 64)
			if err != nil {
				continue
			}
			values = append(values, f)
		}
		st.Fields[name] = values
	}

	return st, true
}
