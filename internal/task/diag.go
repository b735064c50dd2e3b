package task

import (
	"strconv"
	"strings"

	"forge/pkg/stringutil"
)

// Diagnostic is one compiler or vet message in file:line:col: message form.
type Diagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// ParseDiagnostics extracts Go compiler-style diagnostics from command
// output. Lines that do not match the file:line:col: message shape are
// ignored.
func ParseDiagnostics(output string) []Diagnostic {
	var diags []Diagnostic
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, ".go:") {
			continue
		}
		// Need at least file:line:col:message.
		if stringutil.CountRune(':', line) < 3 {
			continue
		}

		parts := stringutil.SplitExact(line, ':', 4)
		lineNum, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		colNum, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}

		diags = append(diags, Diagnostic{
			File:    parts[0],
			Line:    lineNum,
			Column:  colNum,
			Message: strings.TrimSpace(parts[3]),
		})
	}
	return diags
}
