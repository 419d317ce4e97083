package fudi

import (
	"regexp"
	"strconv"
)

// units accepted after a number. Angle units make the quantity an angle.
var units = map[string]bool{
	"nm": false, "um": false, "mm": false, "cm": false, "dm": false, "m": false, "km": false,
	"thou": false, "in": false, "ft": false, "yd": false, "mi": false,
	"s": false, "min": false, "h": false,
	"g": false, "kg": false, "N": false,
	"deg": true, "°": true, "rad": true, "gon": true,
}

var quantityPattern = regexp.MustCompile(`^([+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)([A-Za-z°]+)$`)

// ParseQuantity parses a number immediately followed by a known unit.
// A bare unit with no number is not a quantity.
func ParseQuantity(word string) (Quantity, bool) {
	m := quantityPattern.FindStringSubmatch(word)
	if m == nil {
		return Quantity{}, false
	}
	if _, known := units[m[2]]; !known {
		return Quantity{}, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Quantity{}, false
	}
	return Quantity{Value: f, Unit: m[2]}, true
}

// IsAngle reports whether the quantity is expressed in an angle unit
func (q Quantity) IsAngle() bool {
	return units[q.Unit]
}
