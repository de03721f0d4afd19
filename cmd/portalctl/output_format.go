package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

func validateOutputFormat(outputFormat string) error {
	switch strings.ToLower(outputFormat) {
	case "table":
	case "json":
	default:
		return errors.Errorf("unknown output format %q", outputFormat)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error formatting output")
	}
	fmt.Fprintln(w, string(prettyJSON))
	return nil
}
