package rfctime

import (
	"bytes"
	"encoding/json"
	"time"
)

// Format for timestamps in responses. Time offset is always numeric, never "Z".
const RFC3339DateTimeFormat string = "2006-01-02T15:04:05.999-07:00"

// date-time in https://www.ietf.org/rfc/rfc3339.txt .
type RFC3339 time.Time

func (t RFC3339) Time() time.Time {
	return time.Time(t)
}

func (t RFC3339) Equal(other RFC3339) bool {
	return t.Time().Equal(other.Time())
}

func (t RFC3339) String() string {
	return time.Time(t).Format(RFC3339DateTimeFormat)
}

// Parse RFC3339 date-time. Both "Z" and numeric offsets are accepted.
func Parse(s string) (RFC3339, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return RFC3339{}, err
	}
	return RFC3339(t), nil
}

// implement encoding/json.Marshaller
func (t RFC3339) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// implement encoding/json.Unmarshaller
func (t *RFC3339) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	ret, err := Parse(s)
	if err != nil {
		return err
	}
	*t = ret
	return nil
}
