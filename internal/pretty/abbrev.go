// Package pretty formats values for log output.
package pretty

import "fmt"

// Abbrev shortens s for logging. The optional ranges are the maximum length
// before cutting and the length to cut to, both default to 12.
func Abbrev(s string, ranges ...int) Abbreviated {
	MaxLen := 12
	CutTo := 12
	if len(ranges) >= 2 {
		MaxLen, CutTo = ranges[0], ranges[1]
	} else if len(ranges) == 1 {
		MaxLen, CutTo = ranges[0], ranges[0]
	}
	return Abbreviated{
		Original: s,
		MaxLen:   MaxLen,
		CutTo:    CutTo,
	}
}

// Payload abbreviates a raw JSON value, such as call params or an event's
// data.
func Payload(raw []byte) Abbreviated {
	return Abbrev(string(raw), 120, 100)
}

type Abbreviated struct {
	Original string
	MaxLen   int
	CutTo    int
}

func (s Abbreviated) String() string {
	if len(s.Original) > s.MaxLen {
		return fmt.Sprintf("%s… (%d bytes)", s.Original[:s.CutTo], len(s.Original))
	}
	return s.Original
}
