package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammed-shakir/tilestats/internal/worker"
)

const pointsYAML = `kind: geo
tiles:
  - id: 0/0/0
    isVisible: true
    geometries:
      points:
        positions: {value: [1, 1, 5, 5, 20, 20], size: 2}
        featureIds: [0, 1, 2]
        columns:
          numericProps:
            - {name: cartodb_id, value: [1, 2, 3]}
            - {name: pop, value: [10, 20, 30]}
`

const box10 = `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func execute(t *testing.T, args ...string) (worker.Response, string, error) {
	t.Helper()
	cmd := newRootCmd()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()

	var resp worker.Response
	if out.Len() > 0 {
		if jerr := json.Unmarshal(out.Bytes(), &resp); jerr != nil {
			t.Fatalf("output is not a response: %v\n%s", jerr, out.String())
		}
	}
	return resp, errOut.String(), err
}

func TestCallCommand(t *testing.T) {
	dir := t.TempDir()
	ds := writeFile(t, dir, "points.yaml", pointsYAML)
	req := writeFile(t, dir, "sum.yaml", "method: formula\nparams:\n  column: pop\n  operation: sum\n")

	resp, _, err := execute(t, "call", "--dataset", ds, "--request", req)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !resp.OK || string(resp.Result) != "60" {
		t.Fatalf("resp=%+v", resp)
	}

	resp, _, err = execute(t, "call", "--dataset", ds, "--method", "range", "--params", `{"column":"pop"}`)
	if err != nil {
		t.Fatalf("inline call: %v", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, resp.Result); err != nil {
		t.Fatalf("compact: %v", err)
	}
	if compact.String() != `{"min":10,"max":30}` {
		t.Fatalf("range=%s", compact.String())
	}
}

func TestCallCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	ds := writeFile(t, dir, "points.yaml", pointsYAML)

	if _, _, err := execute(t, "call", "--dataset", ds); err == nil {
		t.Fatalf("expected error without method")
	}
	resp, _, err := execute(t, "call", "--dataset", ds, "--method", "median")
	if err == nil || resp.OK {
		t.Fatalf("unknown method must fail, resp=%+v err=%v", resp, err)
	}
	if _, _, err := execute(t, "call", "--dataset", filepath.Join(dir, "missing.yaml"), "--method", "range"); err == nil || !strings.Contains(err.Error(), "read dataset") {
		t.Fatalf("missing dataset err=%v", err)
	}
}

func TestExtractCommand(t *testing.T) {
	dir := t.TempDir()
	ds := writeFile(t, dir, "points.yaml", pointsYAML)
	f := writeFile(t, dir, "box.json", box10)

	resp, _, err := execute(t, "extract", "--dataset", ds, "--filter", f, "--columns", "cartodb_id")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var res worker.ExtractResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.TotalCount != 2 || len(res.Rows) != 2 {
		t.Fatalf("result=%+v", res)
	}
}
