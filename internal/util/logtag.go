package util

import (
	"fmt"
	"strings"
	"time"
)

// LiquidationTag formats the structured log prefix operators grep for:
// liquidation#<addr_lowercase>.
func LiquidationTag(address string) string {
	return fmt.Sprintf("liquidation#%s", strings.ToLower(address))
}

// Elapsed formats a duration the way the rest of the codebase's log lines
// suffix an operation's timing, e.g. "812ms".
func Elapsed(since time.Time) string {
	return time.Since(since).Round(time.Millisecond).String()
}
