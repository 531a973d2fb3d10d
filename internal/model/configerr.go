package model

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// CueErrorDetail is one problem found in a configuration file.
type CueErrorDetail struct {
	Path    string // service.poll_interval
	Code    string // unknown_field, missing_required, invalid_value or validation_error
	Message string
	Pos     CueErrorPosition
}

type CueErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

func (c CueErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
		slog.String("file", c.Pos.Filename),
		slog.Int("line", c.Pos.Line),
		slog.Int("column", c.Pos.Column),
	)
}

// issues maps cue error messages to a code and a short message about the
// offending field. The first match wins.
var issues = []struct {
	match  *regexp.Regexp
	code   string
	format string
}{
	{regexp.MustCompile(`(?i)not allowed|unknown field`), "unknown_field", "%s is not a known setting"},
	{regexp.MustCompile(`(?i)incomplete value`), "missing_required", "%s must be set"},
	{regexp.MustCompile(`(?i)conflicting values|empty disjunction|does not match|invalid value|out of bound`), "invalid_value", "%s has an invalid value"},
}

// CueErrDetails splits an error of LoadConfig into one detail per position
// in the configuration file. Errors other than cue ones yield a single
// validation_error.
func CueErrDetails(err error) []CueErrorDetail {
	if err == nil {
		return nil
	}
	var out []CueErrorDetail
	seen := make(map[CueErrorPosition]bool)
	for _, e := range cueerrors.Errors(err) {
		pos := filePosition(e)
		if seen[pos] {
			continue
		}
		seen[pos] = true

		path := e.Path()
		if len(path) > 0 && strings.HasPrefix(path[0], "#") {
			path = path[1:]
		}
		d := CueErrorDetail{
			Path:    strings.Join(path, "."),
			Code:    "validation_error",
			Message: e.Error(),
			Pos:     pos,
		}
		format, args := e.Msg()
		raw := fmt.Sprintf(format, args...)
		for _, is := range issues {
			if is.match.MatchString(raw) && len(path) > 0 {
				d.Code = is.code
				d.Message = fmt.Sprintf(is.format, path[len(path)-1])
				break
			}
		}
		out = append(out, d)
	}
	return out
}

// filePosition returns the first position located in a file, the embedded
// schema has none.
func filePosition(e cueerrors.Error) CueErrorPosition {
	for _, p := range cueerrors.Positions(e) {
		if p.Filename() != "" {
			return CueErrorPosition{Filename: p.Filename(), Line: p.Line(), Column: p.Column()}
		}
	}
	return CueErrorPosition{}
}
