package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// parseRetentionDuration parses a duration string that may carry a day
// suffix (e.g. "30d"), falling back to time.ParseDuration otherwise.
// Grounded on the teacher's internal/cmd/index_gc.go parseDuration.
func parseRetentionDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// confirm prompts the operator on an interactive terminal, defaulting to
// "no" when stdin isn't a TTY (a scripted invocation without -y/--yes is
// treated as a refusal, not a hang).
func confirm(c *cobra.Command, prompt string) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false
	}
	fmt.Fprintf(c.OutOrStdout(), "%s [y/N] ", prompt)
	reader := bufio.NewReader(c.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}
