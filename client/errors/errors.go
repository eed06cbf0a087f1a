package errors

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// formatError lists every error on its own indented line
func formatError(es []error) string {
	var b strings.Builder
	if len(es) == 1 {
		b.WriteString("1 error occurred:")
	} else {
		fmt.Fprintf(&b, "%d errors occurred:", len(es))
	}
	for _, err := range es {
		fmt.Fprintf(&b, "\n\t* %s", err)
	}
	return b.String()
}

// FormatErrorOrNil returns nil for an empty multierror, the formatted multierror otherwise
func FormatErrorOrNil(err *multierror.Error) error {
	if err != nil {
		err.ErrorFormat = formatError
	}
	return err.ErrorOrNil()
}

// Join collects the non-nil errs, as used when tearing down a peer and its sockets.
// It returns nil when all of them are nil.
func Join(errs ...error) error {
	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return FormatErrorOrNil(merr)
}
