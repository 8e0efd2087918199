package packet

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const snowflakeLen = 13

// MaxSnowflake is the largest snowflake this package produces. Ids are
// kept within the signed range so they survive storage in int64 columns.
const MaxSnowflake = Snowflake(math.MaxInt64)

// Snowflake is a unique identifier transmitted as a 13-character base-36
// string.
type Snowflake uint64

func (s Snowflake) String() string {
	str := strconv.FormatUint(uint64(s), 36)
	if len(str) < snowflakeLen {
		str = strings.Repeat("0", snowflakeLen-len(str)) + str
	}
	return str
}

// ParseSnowflake parses the 13-character base-36 wire form.
func ParseSnowflake(s string) (Snowflake, error) {
	if len(s) != snowflakeLen {
		return 0, fmt.Errorf("invalid snowflake length: expected %d bytes, got %d", snowflakeLen, len(s))
	}
	n, err := strconv.ParseUint(s, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q: %w", s, err)
	}
	return Snowflake(n), nil
}

func (s Snowflake) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	v, err := ParseSnowflake(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Time is a unix timestamp in seconds.
type Time int64

// Now returns the current time truncated to seconds.
func Now() Time {
	return FromTime(time.Now())
}

func FromTime(t time.Time) Time {
	return Time(t.Unix())
}

func (t Time) Std() time.Time {
	return time.Unix(int64(t), 0).UTC()
}
