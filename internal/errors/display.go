package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// DisplayError writes a colourised, actionable rendering of err to w
func DisplayError(w io.Writer, err error, noColor bool) {
	color.NoColor = noColor || os.Getenv("NO_COLOR") != ""

	var lwErr *LWError
	if !stderrors.As(err, &lwErr) {
		fmt.Fprintln(w, color.RedString("Error: %v", err))
		return
	}

	colorFunc := getErrorStyle(lwErr.Type)
	fmt.Fprintf(w, "\n%s\n", colorFunc(lwErr.Error()))

	if len(lwErr.Solutions) > 0 {
		fmt.Fprintf(w, "\n   %s\n", color.GreenString("Solutions:"))
		for i, solution := range lwErr.Solutions {
			fmt.Fprintf(w, "   %s %s\n", color.HiBlackString(fmt.Sprintf("%d.", i+1)), solution)
		}
	}

	if lwErr.Verify != "" {
		fmt.Fprintf(w, "\n   %s %s\n", color.BlueString("Verify:"), color.HiWhiteString(lwErr.Verify))
	}
	fmt.Fprintln(w)
}

func getErrorStyle(errType ErrorType) func(format string, a ...interface{}) string {
	switch errType {
	case ErrorTypeConfiguration, ErrorTypeValidation:
		return color.YellowString
	case ErrorTypeRateLimit:
		return color.MagentaString
	case ErrorTypePartialFailure:
		return color.CyanString
	default:
		return color.RedString
	}
}

// FormatPlain renders err without colour, for logs and CI output
func FormatPlain(err error) string {
	var lwErr *LWError
	if !stderrors.As(err, &lwErr) {
		return fmt.Sprintf("Error: %v\n", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", lwErr.Error()))
	sb.WriteString(fmt.Sprintf("Type: %s/%s\n", lwErr.Type, lwErr.Provider))
	if len(lwErr.Solutions) > 0 {
		sb.WriteString("\nSolutions:\n")
		for i, solution := range lwErr.Solutions {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, solution))
		}
	}
	if lwErr.Verify != "" {
		sb.WriteString(fmt.Sprintf("\nVerify: %s\n", lwErr.Verify))
	}
	return sb.String()
}
