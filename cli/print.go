package cli

import (
	"fmt"
	"io"
	"strings"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	//nolint:errcheck
	fmt.Fprintf(w, "Warning: "+format, a...)
}
