package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type row struct {
	ID     uint32        `json:"id"`
	Name   string        `json:"name"`
	Locked bool          `json:"is_locked"`
	UUID   string        `json:"uuid" table:"wide"`
	Hidden string        `table:"-"`
	Left   time.Duration `json:"left"`
}

type wrapped struct {
	row
	Extra int `json:"extra"`
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "table": FormatTable, "json": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) succeeded")
	}
}

func TestTableFormatter_Slice(t *testing.T) {
	rows := []row{
		{ID: 1, Name: "Deepest Vault", Locked: true, UUID: "u-1", Hidden: "x", Left: time.Minute},
		{ID: 2, Name: "", UUID: "u-2"},
	}

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, rows); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "ID NAME IS_LOCKED LEFT" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Deepest Vault") || !strings.Contains(lines[1], "1m0s") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "-") {
		t.Errorf("empty name not rendered as '-': %q", lines[2])
	}
	if strings.Contains(buf.String(), "u-1") {
		t.Error("wide column shown without wide mode")
	}

	buf.Reset()
	if err := (&TableFormatter{Wide: true, NoHeaders: true}).Format(&buf, rows); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "u-1") || strings.Contains(buf.String(), "NAME") {
		t.Errorf("wide/no-headers output = %q", buf.String())
	}
}

func TestTableFormatter_EmbeddedAndPointers(t *testing.T) {
	rows := []*wrapped{{row: row{ID: 7, Name: "Vault"}, Extra: 3}, nil}

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, rows); err != nil {
		t.Fatal(err)
	}
	header := strings.Fields(strings.SplitN(buf.String(), "\n", 2)[0])
	if strings.Join(header, " ") != "ID NAME IS_LOCKED LEFT EXTRA" {
		t.Errorf("header = %v", header)
	}
	if strings.Count(strings.TrimSpace(buf.String()), "\n") != 1 {
		t.Errorf("nil row rendered:\n%s", buf.String())
	}
}

func TestTableFormatter_StructAndMap(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, row{ID: 4, UUID: "u-4"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "FIELD") || !strings.Contains(out, "uuid") || !strings.Contains(out, "u-4") {
		t.Errorf("struct output = %q", out)
	}

	buf.Reset()
	if err := (&TableFormatter{}).Format(&buf, map[string]int{"b": 2, "a": 1}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "a") {
		t.Errorf("map output not sorted:\n%s", buf.String())
	}
}

func TestTableFormatter_Table(t *testing.T) {
	tbl := Table{Headers: []string{"NAME", "VALUE"}}
	tbl.AddRow("role", "world")

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, &tbl); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "NAME") || !strings.Contains(buf.String(), "world") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestTableFormatter_FallbackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, 42); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatJSON, false).Format(&buf, row{ID: 1, Name: "Vault"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"name": "Vault"`) {
		t.Errorf("output = %s", buf.String())
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"expeditions": []row{{ID: 1, Name: "Vault", Locked: true}}, "total": 1}
	if err := NewFormatter(FormatYAML, false).Format(&buf, data); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"total: 1", "name: Vault", "is_locked: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml output missing %q:\n%s", want, out)
		}
	}
}
