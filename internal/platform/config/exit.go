package config

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Exitf prints a formatted message to stderr and exits with status 1.
func Exitf(format string, args ...any) {
	exitf(os.Stderr, os.Exit, format, args...)
}

func exitf(w io.Writer, exit func(int), format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}
	_, _ = io.WriteString(w, message)
	exit(1)
}
