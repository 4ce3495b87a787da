package media

import (
	"regexp"
	"strconv"
	"strings"
)

var positionRx = regexp.MustCompile(`time=(\d{2,}:\d{2}:\d{2}\.\d+)`)

// extractPosition pulls the wall-clock position marker out of one engine
// diagnostic line.
func extractPosition(line string) (float64, bool) {
	match := positionRx.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	return parseClock(match[1])
}

// parseClock converts HH:MM:SS.ff to seconds.
func parseClock(clock string) (float64, bool) {
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, false
	}
	var total float64
	for _, part := range parts {
		value, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, false
		}
		total = total*60 + value
	}
	return total, true
}

// ProgressPercent converts an elapsed position into a whole-number
// percentage of the total duration, clamped to [0, 100].
func ProgressPercent(elapsed, totalDuration float64) int {
	if totalDuration <= 0 {
		return 0
	}
	percent := int(elapsed / totalDuration * 100)
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
