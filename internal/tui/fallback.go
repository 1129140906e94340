package tui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// chooseNumbered lists the options and reads a 1-based number. Invalid
// answers are asked again; end of input cancels.
func (c *Chooser) chooseNumbered(title string, options []Option) (int, error) {
	fmt.Fprintln(c.out, title)
	for i, o := range options {
		if o.Detail != "" {
			fmt.Fprintf(c.out, "  %d) %s %s\n", i+1, o.Label, DimStyle.Render("- "+o.Detail))
		} else {
			fmt.Fprintf(c.out, "  %d) %s\n", i+1, o.Label)
		}
	}

	for {
		fmt.Fprintf(c.out, "Select [1-%d]: ", len(options))
		line, err := c.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer != "" {
			n, convErr := strconv.Atoi(answer)
			if convErr == nil && n >= 1 && n <= len(options) {
				return n - 1, nil
			}
			fmt.Fprintln(c.out, ErrorStyle.Render(fmt.Sprintf("Please enter a number between 1 and %d.", len(options))))
		}
		if err == io.EOF {
			return -1, ErrCancelled
		}
		if err != nil {
			return -1, err
		}
	}
}
