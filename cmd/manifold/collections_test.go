package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

// executeCollectionsCmd executes a collections subcommand with captured output.
// It uses --db to isolate filesystem state per test.
func executeCollectionsCmd(t *testing.T, dbPath string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	// Reset package-level flag variables to their defaults.
	// Cobra parses into these variables, so stale values from previous tests
	// would leak if not reset.
	collectionsDBOverride = ""
	collectionsJSONOutput = false

	fullArgs := append([]string{"collections"}, args...)
	fullArgs = append(fullArgs, "--db", dbPath)

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(fullArgs)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), errBuf.String(), err
}

// executeCollectionsCmdWithStdin executes a collections subcommand with piped stdin.
func executeCollectionsCmdWithStdin(t *testing.T, dbPath string, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	collectionsDBOverride = ""
	collectionsJSONOutput = false

	fullArgs := append([]string{"collections"}, args...)
	fullArgs = append(fullArgs, "--db", dbPath)

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(fullArgs)
	rootCmd.SetIn(strings.NewReader(stdin))

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)
	rootCmd.SetIn(nil)

	return outBuf.String(), errBuf.String(), err
}

func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "manifold.db")
}

func TestCollectionsList_Empty(t *testing.T) {
	stdout, _, err := executeCollectionsCmd(t, testDBPath(t), "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "No collections found.") {
		t.Errorf("stdout = %q, want 'No collections found.'", stdout)
	}
}

func TestCollectionsImportThenList(t *testing.T) {
	db := testDBPath(t)

	input := `[{"branch":"KTM","pieces":2},{"branch":"PKR","pieces":5}]`
	stdout, _, err := executeCollectionsCmdWithStdin(t, db, input, "import", "shipments")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(stdout, `Imported 2 documents into "shipments"`) {
		t.Errorf("import stdout = %q", stdout)
	}

	stdout, _, err = executeCollectionsCmd(t, db, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, "shipments") {
		t.Errorf("list stdout = %q, want it to mention shipments", stdout)
	}
}

func TestCollectionsList_JSONOutput(t *testing.T) {
	db := testDBPath(t)

	_, _, err := executeCollectionsCmdWithStdin(t, db,
		`[{"name":"Kathmandu"}]`, "import", "branches")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	stdout, _, err := executeCollectionsCmd(t, db, "list", "--json")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}

	var result struct {
		Collections []struct {
			Name     string `json:"name"`
			Count    int64  `json:"count"`
			Revision int64  `json:"revision"`
		} `json:"collections"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("parse JSON output: %v\n%s", err, stdout)
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want 1", result.Total)
	}
	if result.Collections[0].Name != "branches" || result.Collections[0].Count != 1 {
		t.Errorf("collections = %+v", result.Collections)
	}
	if result.Collections[0].Revision != 1 {
		t.Errorf("revision = %d, want 1 after a single insert", result.Collections[0].Revision)
	}
}

func TestCollectionsExport_RoundTrip(t *testing.T) {
	db := testDBPath(t)

	input := `[{"number":"BA 2 KHA 1234","capacity":9000}]`
	if _, _, err := executeCollectionsCmdWithStdin(t, db, input, "import", "vehicles"); err != nil {
		t.Fatalf("import: %v", err)
	}

	stdout, _, err := executeCollectionsCmd(t, db, "export", "vehicles")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var docs []map[string]any
	if err := json.Unmarshal([]byte(stdout), &docs); err != nil {
		t.Fatalf("parse export output: %v\n%s", err, stdout)
	}
	if len(docs) != 1 {
		t.Fatalf("exported %d docs, want 1", len(docs))
	}
	if docs[0]["number"] != "BA 2 KHA 1234" {
		t.Errorf("doc = %v", docs[0])
	}
	if id, _ := docs[0]["id"].(string); id == "" {
		t.Error("exported document missing server-assigned id")
	}
}

func TestCollectionsExport_EmptyCollection(t *testing.T) {
	stdout, _, err := executeCollectionsCmd(t, testDBPath(t), "export", "drivers")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var docs []json.RawMessage
	if err := json.Unmarshal([]byte(stdout), &docs); err != nil {
		t.Fatalf("parse export output: %v\n%s", err, stdout)
	}
	if len(docs) != 0 {
		t.Errorf("exported %d docs, want 0", len(docs))
	}
}

func TestCollectionsImport_RejectsNonArray(t *testing.T) {
	_, _, err := executeCollectionsCmdWithStdin(t, testDBPath(t),
		`{"not":"an array"}`, "import", "shipments")
	if err == nil {
		t.Fatal("expected error for non-array input")
	}
	if !strings.Contains(err.Error(), "expected a JSON array") {
		t.Errorf("error = %v", err)
	}
}
