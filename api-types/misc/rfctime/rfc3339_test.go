package rfctime_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/opst/knitfleet-api-types/misc/rfctime"
)

func TestRFC3339(t *testing.T) {
	t.Run("it should fail to parse when passed wrong format", func(t *testing.T) {
		if _, err := rfctime.Parse("2021/10/22 12:34:56 +07:00"); err == nil {
			t.Error("no error unexpectedly")
		}
	})

	t.Run("it should accept Z as offset", func(t *testing.T) {
		testee, err := rfctime.Parse("2021-10-22T12:34:56.123Z")
		if err != nil {
			t.Fatal(err)
		}
		expected := time.Date(2021, 10, 22, 12, 34, 56, 123_000_000, time.UTC)
		if !testee.Time().Equal(expected) {
			t.Errorf("unmatch: (actual, expected) = (%v, %v)", testee, expected)
		}
	})

	t.Run("it should be marshalled with numeric offset", func(t *testing.T) {
		ts := rfctime.RFC3339(time.Date(
			2021, 10, 22, 12, 34, 56, 0, time.FixedZone("+09:00", 9*60*60),
		))
		b, err := json.Marshal(ts)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != `"2021-10-22T12:34:56+09:00"` {
			t.Errorf("unexpected json: %s", b)
		}
	})

	t.Run("it should ignore null", func(t *testing.T) {
		ts := rfctime.RFC3339{}
		if err := json.Unmarshal([]byte("null"), &ts); err != nil {
			t.Fatal(err)
		}
		if !ts.Time().IsZero() {
			t.Errorf("not zero: %v", ts)
		}
	})
}
