package botkit

import (
	"fmt"
	"strconv"
	"strings"
)

// Args splits command arguments on whitespace.
func Args(raw string) []string {
	return strings.Fields(raw)
}

// IntArg parses args[i] as a positive int, falling back to def when the
// argument is absent.
func IntArg(args []string, i, def int) (int, error) {
	if i >= len(args) {
		return def, nil
	}

	n, err := strconv.Atoi(args[i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("argument %d must be a positive number, got %q", i+1, args[i])
	}
	return n, nil
}
