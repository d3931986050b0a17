package csvexport

import (
	"bytes"
	"testing"
)

func TestWriteQuotesEveryField(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf,
		[]string{"Номер", "Сумма"},
		[][]string{
			{"CHK202608311405091234", "1250.00"},
			{"", "0.00"},
		})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	want := "\"Номер\";\"Сумма\"\n" +
		"\"CHK202608311405091234\";\"1250.00\"\n" +
		"\"\";\"0.00\"\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestWriteEscapesEmbeddedQuotes(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []string{"name"}, [][]string{{`ООО "Ромашка"`}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	want := "\"name\"\n\"ООО \"\"Ромашка\"\"\"\n"
	if buf.String() != want {
		t.Fatalf("unexpected output %q, want %q", buf.String(), want)
	}
}

func TestWriteRejectsRaggedRows(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []string{"a", "b"}, [][]string{{"only-one"}})
	if err == nil {
		t.Fatalf("expected error for ragged row")
	}
}

func TestFormatCents(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{123456, "1234.56"},
		{-250, "-2.50"},
	}
	for _, tc := range cases {
		if got := FormatCents(tc.cents); got != tc.want {
			t.Fatalf("%d: expected %q, got %q", tc.cents, tc.want, got)
		}
	}
}
