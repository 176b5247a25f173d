package dashboard

import (
	"fmt"
	"strings"
	"time"
)

// IST is India Standard Time, UTC+5:30.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// TimeSince describes how long ago receivedAt was, e.g. "3 MINUTES AGO".
// A zero receivedAt yields "UNKNOWN".
func TimeSince(receivedAt, now time.Time) string {
	if receivedAt.IsZero() {
		return "UNKNOWN"
	}
	seconds := int(now.Sub(receivedAt) / time.Second)
	minutes := seconds / 60
	switch {
	case seconds < 30:
		return "JUST NOW"
	case seconds < 60:
		return fmt.Sprintf("%d SECONDS AGO", seconds)
	case minutes == 1:
		return "1 MINUTE AGO"
	case minutes < 60:
		return fmt.Sprintf("%d MINUTES AGO", minutes)
	case minutes/60 == 1:
		return "1 HOUR AGO"
	default:
		return fmt.Sprintf("%d HOURS AGO", minutes/60)
	}
}

// TimestampIST formats now in IST as "MONDAY, 2 JANUARY 2006, 15:04:05 IST".
func TimestampIST(now time.Time) string {
	return strings.ToUpper(now.In(IST).Format("Monday, 2 January 2006, 15:04:05")) + " IST"
}
