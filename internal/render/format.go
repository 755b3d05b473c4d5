package render

import (
	"fmt"
	"time"
)

// Clock formats a millisecond timestamp as local HH:MM.
func Clock(ms int64) string {
	return time.UnixMilli(ms).Format("15:04")
}

// Ago describes how long before now the millisecond timestamp was.
func Ago(ms int64, now time.Time) string {
	t := time.UnixMilli(ms)
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Format("Jan 2")
	}
}
