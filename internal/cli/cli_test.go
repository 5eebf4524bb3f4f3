package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/elastic-upload/internal/config"
	"github.com/JonMunkholm/elastic-upload/internal/fault"
)

// fakeCluster answers the info and _bulk endpoints like a single node.
type fakeCluster struct {
	mu         sync.Mutex
	bulkCalls  int
	docs       []map[string]string
	indexes    []string
	user, pass string

	bulkStatus int    // non-zero: reject every bulk request with this status
	rejectName string // documents with this name fail with a mapping error
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		w.Write([]byte(`{"name":"node-1","cluster_name":"test","version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`))
	case r.URL.Path == "/_bulk":
		f.bulk(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCluster) bulk(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls++
	f.user, f.pass, _ = r.BasicAuth()

	if f.bulkStatus != 0 {
		w.WriteHeader(f.bulkStatus)
		w.Write([]byte(`{"error":{"type":"security_exception","reason":"unable to authenticate user [elastic]"},"status":401}`))
		return
	}

	var items []map[string]any
	hasErrors := false
	sc := bufio.NewScanner(r.Body)
	for sc.Scan() {
		var action map[string]map[string]string
		if err := json.Unmarshal(sc.Bytes(), &action); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !sc.Scan() {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var doc map[string]string
		json.Unmarshal(sc.Bytes(), &doc)
		f.docs = append(f.docs, doc)
		f.indexes = append(f.indexes, action["index"]["_index"])

		item := map[string]any{"_index": action["index"]["_index"], "status": 201, "result": "created"}
		if f.rejectName != "" && doc["name"] == f.rejectName {
			hasErrors = true
			item = map[string]any{"status": 400, "error": map[string]string{"type": "mapper_parsing_exception", "reason": "failed to parse"}}
		}
		items = append(items, map[string]any{"index": item})
	}
	json.NewEncoder(w).Encode(map[string]any{"took": 1, "errors": hasErrors, "items": items})
}

// clearEnv blanks every configuration variable so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, opt := range config.Options() {
		if opt.Env != "" {
			t.Setenv(opt.Env, "")
		}
	}
}

func writeCSV(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func run(ctx context.Context, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

const people = "Id,Name,Favourite Pizza\n1,John,Pineapple\n\n2,Jane,Margherita\n3,Ann,Diavola\n"

func TestRun_Help(t *testing.T) {
	clearEnv(t)
	for _, arg := range []string{"--help", "-h", "-?"} {
		code, stdout, _ := run(context.Background(), arg)
		if code != fault.ExitOK {
			t.Errorf("%s exit = %d, want 0", arg, code)
		}
		for _, want := range []string{"Usage: elastic-upload", "-f|--file", "-pf|--property-formatting", "Example usage"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("%s output missing %q", arg, want)
			}
		}
	}
}

func TestRun_UsageErrors(t *testing.T) {
	clearEnv(t)
	csv := writeCSV(t, "people.csv", people)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no options", nil, "Missing required options"},
		{"no cluster", []string{"-f", csv, "-u", "elastic", "-p", "x"}, "--elastic or --cloud"},
		{"no credentials", []string{"-f", csv, "-e", "http://localhost:9200"}, "--key"},
		{"unknown flag", []string{"--bogus"}, "flag provided but not defined"},
		{"stray argument", []string{"-f", csv, "extra"}, "unexpected argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(context.Background(), tt.args...)
			if code != fault.ExitUsage {
				t.Errorf("exit = %d, want %d", code, fault.ExitUsage)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr missing %q:\n%s", tt.want, stderr)
			}
			if !strings.Contains(stderr, "Usage: elastic-upload") {
				t.Error("usage not printed")
			}
		})
	}
}

func TestRun_ConfigErrorsBeforeIO(t *testing.T) {
	clearEnv(t)
	cluster := &fakeCluster{}
	srv := httptest.NewServer(cluster)
	defer srv.Close()
	csv := writeCSV(t, "people.csv", people)
	base := []string{"-f", csv, "-e", srv.URL, "-u", "elastic", "-p", "changeme", "--delay", "0s"}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"zero buffer", []string{"-b", "0"}, "buffer size (0) must be positive"},
		{"unknown formatting", []string{"-pf", "Snake"}, "property formatting"},
		{"empty delimiter", []string{"-d", ""}, "delimiter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(context.Background(), append(base, tt.args...)...)
			if code != fault.ExitFatal {
				t.Errorf("exit = %d, want %d", code, fault.ExitFatal)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr missing %q:\n%s", tt.want, stderr)
			}
		})
	}
	if cluster.bulkCalls != 0 {
		t.Errorf("cluster received %d bulk requests, want 0", cluster.bulkCalls)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	clearEnv(t)
	cluster := &fakeCluster{}
	srv := httptest.NewServer(cluster)
	defer srv.Close()
	csv := writeCSV(t, "People.csv", people)

	code, stdout, stderr := run(context.Background(),
		"-f", csv, "-e", srv.URL, "-u", "elastic", "-p", "changeme", "-b", "2", "--delay", "0s")
	if code != fault.ExitOK {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr)
	}

	for _, want := range []string{
		"Starting upload",
		"Index name not specified, using file name",
		"Batch 0: indexed 2 records",
		"Batch 1: indexed 1 records",
		"Upload complete",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}

	if cluster.bulkCalls != 2 {
		t.Errorf("bulk requests = %d, want 2", cluster.bulkCalls)
	}
	if cluster.user != "elastic" || cluster.pass != "changeme" {
		t.Errorf("basic auth = %q/%q", cluster.user, cluster.pass)
	}
	for _, idx := range cluster.indexes {
		if idx != "people" {
			t.Errorf("_index = %q, want people", idx)
		}
	}
	if len(cluster.docs) != 3 {
		t.Fatalf("indexed %d documents, want 3", len(cluster.docs))
	}
	if got := cluster.docs[0]["favouritePizza"]; got != "Pineapple" {
		t.Errorf("favouritePizza = %q, want Pineapple", got)
	}
}

func TestRun_ExplicitIndexAndEnv(t *testing.T) {
	clearEnv(t)
	cluster := &fakeCluster{}
	srv := httptest.NewServer(cluster)
	defer srv.Close()

	t.Setenv("ELASTIC_UPLOAD_FILE", writeCSV(t, "data.tsv", "First Name\tAge\nAnn\t31\n"))
	t.Setenv("ELASTIC_URL", srv.URL)
	t.Setenv("ELASTIC_API_KEY", "id:secret")
	t.Setenv("UPLOAD_DELIMITER", "tab")
	t.Setenv("UPLOAD_START_DELAY", "0s")

	code, stdout, stderr := run(context.Background(), "-i", "staff", "-pf", "Upper")
	if code != fault.ExitOK {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr)
	}
	if strings.Contains(stdout, "Index name not specified") {
		t.Error("index derived although -i was given")
	}
	if len(cluster.indexes) != 1 || cluster.indexes[0] != "staff" {
		t.Errorf("indexes = %v, want [staff]", cluster.indexes)
	}
	if got := cluster.docs[0]["FIRST NAME"]; got != "Ann" {
		t.Errorf("doc = %v", cluster.docs[0])
	}
}

func TestRun_PartialFailureExitsZero(t *testing.T) {
	clearEnv(t)
	cluster := &fakeCluster{rejectName: "Jane"}
	srv := httptest.NewServer(cluster)
	defer srv.Close()
	csv := writeCSV(t, "people.csv", people)

	code, stdout, stderr := run(context.Background(),
		"-f", csv, "-e", srv.URL, "-u", "elastic", "-p", "changeme", "-b", "2", "--delay", "0s")
	if code != fault.ExitOK {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr)
	}
	for _, want := range []string{
		"Batch 0: indexed 1 of 2 records, 1 failed",
		"item 1: status 400 mapper_parsing_exception",
		"Batch 1: indexed 1 records",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRun_AuthRejectedStops(t *testing.T) {
	clearEnv(t)
	cluster := &fakeCluster{bulkStatus: http.StatusUnauthorized}
	srv := httptest.NewServer(cluster)
	defer srv.Close()
	csv := writeCSV(t, "people.csv", people)

	code, stdout, stderr := run(context.Background(),
		"-f", csv, "-e", srv.URL, "-u", "elastic", "-p", "wrong", "-b", "1", "--delay", "0s")
	if code != fault.ExitFatal {
		t.Errorf("exit = %d, want %d", code, fault.ExitFatal)
	}
	if cluster.bulkCalls != 1 {
		t.Errorf("bulk requests = %d, want 1", cluster.bulkCalls)
	}
	if !strings.Contains(stderr, "status 401") || !strings.Contains(stderr, "ES002") {
		t.Errorf("stderr = %s", stderr)
	}
	if strings.Contains(stdout, "Upload complete") {
		t.Error("completion banner printed after a fatal error")
	}
}

func TestRun_MalformedHeader(t *testing.T) {
	clearEnv(t)
	cluster := &fakeCluster{}
	srv := httptest.NewServer(cluster)
	defer srv.Close()
	csv := writeCSV(t, "people.csv", "Id;Name\n1;John\n")

	code, _, stderr := run(context.Background(),
		"-f", csv, "-e", srv.URL, "-k", "id:secret", "--delay", "0s")
	if code != fault.ExitFatal {
		t.Errorf("exit = %d, want %d", code, fault.ExitFatal)
	}
	if !strings.Contains(stderr, "delimiter") {
		t.Errorf("stderr = %s", stderr)
	}
	if cluster.bulkCalls != 0 {
		t.Errorf("bulk requests = %d, want 0", cluster.bulkCalls)
	}
}

func TestRun_MissingFile(t *testing.T) {
	clearEnv(t)
	code, _, stderr := run(context.Background(),
		"-f", filepath.Join(t.TempDir(), "nope.csv"), "-e", "http://localhost:9200", "-k", "id:secret", "--delay", "0s")
	if code != fault.ExitFatal {
		t.Errorf("exit = %d, want %d", code, fault.ExitFatal)
	}
	if !strings.Contains(stderr, "CSV002") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestRun_CancelledBeforeUpload(t *testing.T) {
	clearEnv(t)
	cluster := &fakeCluster{}
	srv := httptest.NewServer(cluster)
	defer srv.Close()
	csv := writeCSV(t, "people.csv", people)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, _, _ := run(ctx, "-f", csv, "-e", srv.URL, "-k", "id:secret", "--delay", "1h")
	if code != fault.ExitFatal {
		t.Errorf("exit = %d, want %d", code, fault.ExitFatal)
	}
	if cluster.bulkCalls != 0 {
		t.Errorf("bulk requests = %d after cancel, want 0", cluster.bulkCalls)
	}
}

func TestRun_Profile(t *testing.T) {
	clearEnv(t)
	cluster := &fakeCluster{}
	srv := httptest.NewServer(cluster)
	defer srv.Close()
	csv := writeCSV(t, "people.csv", people)

	profile := filepath.Join(t.TempDir(), "upload.yaml")
	body := "cluster:\n  url: " + srv.URL + "\n  user: elastic\n  password: changeme\nupload:\n  batch_size: 10\n  start_delay: 0s\n"
	if err := os.WriteFile(profile, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := run(context.Background(), "--config", profile, "-f", csv)
	if code != fault.ExitOK {
		t.Fatalf("exit = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "Batch 0: indexed 3 records") {
		t.Errorf("stdout = %s", stdout)
	}
}
