package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	apperrors "ledgersync/internal/errors"
)

// Exit codes for ledgerctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // storage, remote or internal failure
	ExitCommandError = 2 // bad input or unknown record
)

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch apperrors.Code(err) {
	case "":
		if err == nil {
			return ExitSuccess
		}
		return ExitFailure
	case apperrors.ErrInvalidInput.Code, apperrors.ErrNotFound.Code,
		apperrors.ErrCategoryTypeImmutable.Code, apperrors.ErrOwnerImmutable.Code:
		return ExitCommandError
	}
	return ExitFailure
}

// response is the JSON envelope of every command's output.
type response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// printer writes a command result as JSON or as text.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) printer {
	return printer{format: opts.Format, w: w}
}

// print emits data. In text mode text renders it instead.
func (p printer) print(data interface{}, text func(w io.Writer)) error {
	if p.format == "json" {
		return json.NewEncoder(p.w).Encode(response{Status: "ok", Data: data})
	}
	text(p.w)
	return nil
}

// table renders rows as aligned columns.
func table(w io.Writer, header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeRow(tw, header)
	for _, row := range rows {
		writeRow(tw, row)
	}
	_ = tw.Flush()
}

func writeRow(w io.Writer, cols []string) {
	for i, col := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)
}
