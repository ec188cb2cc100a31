package game

import (
	"regexp"
	"strconv"
)

var digitRun = regexp.MustCompile(`[0-9]+`)

// parseGuess extracts the first run of ASCII digits in text. Runs that do not fit in an
// int are not guesses.
func parseGuess(text string) (int, bool) {
	run := digitRun.FindString(text)
	if run == "" {
		return 0, false
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return 0, false
	}
	return n, true
}
