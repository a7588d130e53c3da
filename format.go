package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/velux-go/internal/session"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	// Different year: show "Jan  2  2006"
	return t.Format("Jan _2  2006")
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// printBody writes a raw backend response. With asJSON the body is
// re-indented when it is valid JSON.
func printBody(w io.Writer, body []byte, asJSON bool) error {
	if asJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err == nil {
			buf.WriteByte('\n')
			_, err = w.Write(buf.Bytes())

			return err
		}
	}

	if _, err := w.Write(body); err != nil {
		return err
	}

	_, err := fmt.Fprintln(w)

	return err
}

// printSnapshot renders a session snapshot as a two-column table.
func printSnapshot(w io.Writer, snap session.Snapshot, asJSON bool) error {
	if asJSON {
		return printJSON(w, snap)
	}

	printTable(w, []string{"FIELD", "VALUE"}, [][]string{
		{"skill", snap.Skill},
		{"user", orDash(snap.UserID)},
		{"settings", strconv.FormatBool(snap.HasSettings)},
		{"base url", orDash(snap.BaseURL)},
		{"credentials", strconv.FormatBool(snap.HasCredentials)},
		{"username", orDash(snap.Username)},
		{"home", orDash(snap.HomeID)},
		{"token", strconv.FormatBool(snap.HasToken)},
		{"expires", formatTime(snap.TokenExpiry)},
	})

	return nil
}

// printSettings renders settings, which callers must already have redacted.
func printSettings(w io.Writer, st session.Settings, asJSON bool) error {
	if asJSON {
		return printJSON(w, st)
	}

	printTable(w, []string{"KEY", "VALUE"}, [][]string{
		{"base_url", st.BaseURL},
		{"token_url", st.TokenURL},
		{"authorization", st.Authorization},
		{"app_identifier", st.AppIdentifier},
		{"device_model", st.DeviceModel},
		{"device_name", st.DeviceName},
		{"scope", st.Scope},
		{"user_prefix", st.UserPrefix},
		{"sync_url", st.SyncURL},
		{"app_version", st.AppVersion},
		{"app_type", st.AppType},
		{"homesdata_url", st.HomesDataURL},
		{"homestatus_url", st.HomeStatusURL},
	})

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	// Compute column widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
