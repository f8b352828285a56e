package zigbee

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Unit spacing for formatted display values.
const (
	noSpaceBeforeUnits  = false
	oneSpaceBeforeUnits = true
)

// coerceInt coerces a JSON payload value to an integer. Integral
// floats are accepted; fractional floats are not.
func coerceInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val == math.Trunc(val) {
			return int(val), true
		}
		return 0, false
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), true
		}
		return 0, false
	case string:
		if i, err := strconv.Atoi(val); err == nil {
			return i, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// coerceFloat coerces a JSON payload value to a float. Integer forms
// are tried first, then floating point, matching the order reports use
// on the wire.
func coerceFloat(v any) (float64, bool) {
	if i, ok := coerceInt(v); ok {
		return float64(i), true
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
		return 0, false
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// coerceBool accepts JSON booleans only.
func coerceBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// coerceString accepts JSON strings only.
func coerceString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// celsiusToFahrenheit converts °C to °F.
func celsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// fahrenheitToCelsius converts °F to °C.
func fahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// miredToKelvin converts a mired colour temperature to Kelvin.
func miredToKelvin(mired float64) int {
	if mired <= 0 {
		return 0
	}
	return int(1_000_000 / mired)
}

// kelvinToMired converts a Kelvin colour temperature to mired.
func kelvinToMired(kelvin int) int {
	if kelvin <= 0 {
		return 0
	}
	return int(1_000_000 / float64(kelvin))
}

// roundedKelvinEntry describes one snap point on the white temperature
// scale with its approximate RGB rendering and display name.
type roundedKelvinEntry struct {
	Kelvin int
	RGB    [3]int
	Name   string
}

// roundedKelvins is the ascending snap table for white temperature
// commands. Requested Kelvin values snap to the nearest entry.
var roundedKelvins = []roundedKelvinEntry{
	{1500, [3]int{246, 221, 184}, "~ Candlelight"},
	{2000, [3]int{246, 221, 184}, "~ Sunset"},
	{2500, [3]int{246, 221, 184}, "~ Ultra Warm"},
	{2750, [3]int{246, 224, 184}, "~ Incandescent"},
	{3000, [3]int{248, 227, 195}, "~ Warm"},
	{3200, [3]int{247, 228, 198}, "~ Neutral Warm"},
	{3500, [3]int{246, 228, 201}, "~ Neutral"},
	{4000, [3]int{249, 234, 210}, "~ Cool"},
	{4500, [3]int{250, 238, 217}, "~ Cool Daylight"},
	{5000, [3]int{250, 239, 219}, "~ Soft Daylight"},
	{5500, [3]int{249, 240, 225}, "~ Daylight"},
	{6000, [3]int{247, 241, 230}, "~ Noon Daylight"},
	{6500, [3]int{245, 242, 234}, "~ Bright Daylight"},
	{7000, [3]int{241, 240, 236}, "~ Cloudy Daylight"},
	{7500, [3]int{236, 236, 238}, "~ Blue Daylight"},
	{8000, [3]int{237, 240, 246}, "~ Blue Overcast"},
	{8500, [3]int{236, 241, 249}, "~ Blue Water"},
	{9000, [3]int{237, 243, 252}, "~ Blue Ice"},
}

// nearestRoundedKelvin snaps a requested Kelvin value to the closest
// table entry.
func nearestRoundedKelvin(kelvin int) roundedKelvinEntry {
	best := roundedKelvins[0]
	bestDelta := math.MaxFloat64
	for _, entry := range roundedKelvins {
		delta := math.Abs(float64(entry.Kelvin - kelvin))
		if delta < bestDelta {
			best = entry
			bestDelta = delta
		}
	}
	return best
}

// hsvToRGB converts hue/saturation/value in [0,1] to RGB in [0,1].
func hsvToRGB(h, s, v float64) (r, g, b float64) {
	if s == 0 {
		return v, v, v
	}
	h = math.Mod(h, 1) * 6
	sector := int(h)
	f := h - float64(sector)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	switch sector {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

// brightness255ToPercent scales a 0-255 brightness onto 0-100, with
// values of 99 and above snapping to 100.
func brightness255ToPercent(b int) int {
	pct := int(float64(b) / 255 * 100)
	if pct >= 99 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// brightnessPercentTo255 scales a 0-100 percentage onto 0-255.
func brightnessPercentTo255(pct int) int {
	if pct <= 0 {
		return 0
	}
	if pct >= 100 {
		return 255
	}
	return int(float64(pct) / 100 * 255)
}

// formatValue rounds a numeric value to the configured decimal places
// and renders the display string with units. With zero decimal places
// the stored value is an int, otherwise a rounded float.
func formatValue(value float64, decimalPlaces int, units string, spaceBeforeUnits bool) (any, string) {
	suffix := units
	if units != "" && spaceBeforeUnits {
		suffix = " " + units
	}

	if decimalPlaces <= 0 {
		i := int(value)
		return i, fmt.Sprintf("%d%s", i, suffix)
	}

	factor := math.Pow(10, float64(decimalPlaces))
	rounded := math.Round(value*factor) / factor
	return rounded, fmt.Sprintf("%.*f%s", decimalPlaces, rounded, suffix)
}
