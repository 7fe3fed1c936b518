package errors

import (
	goerrors "errors"
	"fmt"
	"strings"
)

// Classify reduces an error to a low-cardinality type tag for metrics and logs,
// e.g. "pgconn_pgerror" or "context_deadlineexceedederror". The innermost
// wrapped error is used: outer layers are usually fmt.Errorf context that would
// collapse everything into "fmt_wraperror".
func Classify(err error) string {
	if err == nil {
		return ""
	}

	for {
		inner := goerrors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}

	name := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	if name == "" || name == "<nil>" {
		return "unknown"
	}
	name = strings.ToLower(strings.ReplaceAll(name, ".", "_"))
	return name
}
