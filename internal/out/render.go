// Package out renders command results: a JSON envelope for scripts, or
// tables for humans in plain mode.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/moonapp-tools/mooncoin-cli/internal/config"
	"github.com/moonapp-tools/mooncoin-cli/internal/model"
)

// Render writes env in the configured output mode. Field selection and
// results-only apply to the data payload. Plain mode draws outcome, account
// and journal payloads as tables unless fields were selected.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	if settings.OutputMode == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if settings.ResultsOnly {
			return enc.Encode(data)
		}
		env.Data = data
		return enc.Encode(env)
	}

	if !settings.ResultsOnly {
		if err := plainHeader(w, env); err != nil {
			return err
		}
	}
	if env.Error != nil {
		return nil
	}
	return plainData(w, data)
}

func plainHeader(w io.Writer, env model.Envelope) error {
	status := "ok"
	if !env.Success {
		status = "error"
	} else if env.Meta.Partial {
		status = "partial"
	}
	fields := []string{status, "command=" + env.Meta.Command}
	if env.Meta.RunID != "" {
		fields = append(fields, "run="+env.Meta.RunID)
	}
	if _, err := fmt.Fprintln(w, strings.Join(fields, " ")); err != nil {
		return err
	}
	if env.Error != nil {
		if _, err := fmt.Fprintf(w, "%s (code %d): %s\n", env.Error.Type, env.Error.Code, env.Error.Message); err != nil {
			return err
		}
	}
	for _, warning := range env.Warnings {
		if _, err := fmt.Fprintln(w, "warning: "+warning); err != nil {
			return err
		}
	}
	return nil
}

func plainData(w io.Writer, data any) error {
	switch t := data.(type) {
	case []model.Outcome:
		return OutcomesTable(w, t)
	case []model.AccountSummary:
		return AccountsTable(w, t)
	case []model.JournalEntry:
		return JournalTable(w, t)
	}

	switch t := normalizeValue(data).(type) {
	case nil:
		return nil
	case []any:
		if len(t) == 0 {
			_, err := fmt.Fprintln(w, "(none)")
			return err
		}
		for _, item := range t {
			if _, err := fmt.Fprintln(w, toLine(item)); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, toLine(t))
		return err
	}
}

func project(data any, fields []string) any {
	switch t := normalizeValue(data).(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, pick(m, fields))
			}
		}
		return out
	case map[string]any:
		return pick(t, fields)
	default:
		return t
	}
}

func pick(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}

// normalizeValue round-trips v through JSON so tags decide field names.
func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(buf)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}
