package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is a float64 that also accepts numeric strings ("10.5") on decode.
// Booleans, objects, arrays, null and non-numeric strings are rejected.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty value")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("value %q is not a number", s)
		}
		*n = Number(f)
		return nil
	case 'n':
		return fmt.Errorf("value is null")
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("value %s is not a number", string(b))
	}
	*n = Number(f)
	return nil
}

func (n Number) Float64() float64 { return float64(n) }
