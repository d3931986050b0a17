// Package csvexport renders table exports in the layout the back-office
// spreadsheets expect: semicolon separators with every field quoted,
// including empty ones. encoding/csv only quotes fields that need it, so
// the writer here is hand-rolled.
package csvexport

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

func Write(w io.Writer, header []string, rows [][]string) error {
	buf := bufio.NewWriter(w)

	if err := writeRecord(buf, header); err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("csvexport: row has %d fields, header has %d", len(row), len(header))
		}
		if err := writeRecord(buf, row); err != nil {
			return err
		}
	}

	return buf.Flush()
}

func writeRecord(buf *bufio.Writer, fields []string) error {
	for i, field := range fields {
		if i > 0 {
			if err := buf.WriteByte(';'); err != nil {
				return err
			}
		}
		if err := buf.WriteByte('"'); err != nil {
			return err
		}
		if _, err := buf.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := buf.WriteByte('"'); err != nil {
			return err
		}
	}
	return buf.WriteByte('\n')
}

// FormatCents renders a cents amount as a decimal money string, e.g.
// 123456 -> "1234.56".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
