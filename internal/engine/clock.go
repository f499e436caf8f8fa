package engine

import (
	"fmt"
	"strconv"
	"strings"
)

const windowSeconds = 900

// WindowState is the pure result of mapping wall-clock time onto 900-second
// window boundaries.
type WindowState struct {
	WindowStart     int64
	SecsInto        int64
	TimeLeft        int64
	InTradingPhase  bool
}

// ComputeWindow maps epoch seconds to the window containing it, given the
// dump window (trading-phase) length in seconds.
func ComputeWindow(nowS int64, dumpWindowSec int) WindowState {
	windowStart := (nowS / windowSeconds) * windowSeconds
	secsInto := nowS - windowStart
	timeLeft := windowSeconds - secsInto
	return WindowState{
		WindowStart:    windowStart,
		SecsInto:       secsInto,
		TimeLeft:       timeLeft,
		InTradingPhase: timeLeft <= int64(dumpWindowSec) && timeLeft >= 0,
	}
}

const slugPrefix = "btc-updown-15m-"

// SlugWindowStart parses the window-start epoch encoded in a market slug of
// the form "btc-updown-15m-<window_start_epoch_seconds>".
func SlugWindowStart(slug string) (int64, error) {
	suffix := strings.TrimPrefix(slug, slugPrefix)
	if suffix == slug {
		return 0, fmt.Errorf("engine: slug %q missing prefix %q", slug, slugPrefix)
	}
	start, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("engine: slug %q has non-numeric window start: %w", slug, err)
	}
	return start, nil
}

// FormatSlug builds the canonical slug for a window start.
func FormatSlug(windowStart int64) string {
	return fmt.Sprintf("%s%d", slugPrefix, windowStart)
}
