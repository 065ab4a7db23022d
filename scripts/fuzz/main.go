// Fuzz runner for netvault.
//
// Runs every fuzz target for FUZZ_TIME (default 30s) and writes a summary to
// target/reports/fuzz.txt. Exits non-zero when a target finds a failing
// input.
//
// Usage:
//
//	go run ./scripts/fuzz
//	FUZZ_TIME=2m go run ./scripts/fuzz
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type fuzzTarget struct {
	Function string
	Package  string
}

var fuzzTargets = []fuzzTarget{
	// Worker report payloads
	{Function: "FuzzValidateReport", Package: "./internal/queue/"},
	// Polling table indexes
	{Function: "FuzzParseIndex", Package: "./internal/snmp/"},
	// Config substitution
	{Function: "FuzzExpandEnvVars", Package: "./internal/config/"},
}

type fuzzResult struct {
	Target   fuzzTarget
	Duration time.Duration
	Execs    int64
	Corpus   int
	Passed   bool
	Output   string
}

var (
	reExecs  = regexp.MustCompile(`execs:\s+(\d+)`)
	reCorpus = regexp.MustCompile(`new interesting:\s+(\d+)`)
)

func main() {
	root := projectRoot()
	reportDir := filepath.Join(root, "target", "reports")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		log.Fatalf("creating report directory: %v", err)
	}

	fuzzTime := os.Getenv("FUZZ_TIME")
	if fuzzTime == "" {
		fuzzTime = "30s"
	}

	results := make([]fuzzResult, 0, len(fuzzTargets))
	failed := 0
	for _, t := range fuzzTargets {
		fmt.Printf("--- %s (%s, %s) ---\n", t.Function, t.Package, fuzzTime)
		r := run(root, t, fuzzTime)
		if !r.Passed {
			failed++
		}
		results = append(results, r)
	}

	path := filepath.Join(reportDir, "fuzz.txt")
	if err := os.WriteFile(path, []byte(report(fuzzTime, results)), 0o644); err != nil {
		log.Fatalf("writing fuzz report: %v", err)
	}
	fmt.Printf("\nFuzz report: %s\n", path)

	if failed > 0 {
		fmt.Printf("%d fuzz target(s) failed\n", failed)
		os.Exit(1)
	}
}

func run(root string, t fuzzTarget, fuzzTime string) fuzzResult {
	start := time.Now()
	cmd := exec.Command("go", "test", "-run=^$", "-fuzz=^"+t.Function+"$", "-fuzztime="+fuzzTime, t.Package)
	cmd.Dir = root

	var buf bytes.Buffer
	cmd.Stdout = io.MultiWriter(os.Stdout, &buf)
	cmd.Stderr = io.MultiWriter(os.Stderr, &buf)
	err := cmd.Run()
	out := buf.String()

	r := fuzzResult{Target: t, Duration: time.Since(start), Output: out}
	// The fuzz timer can race test shutdown and report a deadline error
	// without a failing input; only a written corpus entry is a failure.
	r.Passed = err == nil ||
		(strings.Contains(out, "context deadline exceeded") && !strings.Contains(out, "Failing input written to"))

	if m := reExecs.FindAllStringSubmatch(out, -1); len(m) > 0 {
		r.Execs, _ = strconv.ParseInt(m[len(m)-1][1], 10, 64)
	}
	if m := reCorpus.FindAllStringSubmatch(out, -1); len(m) > 0 {
		r.Corpus, _ = strconv.Atoi(m[len(m)-1][1])
	}
	return r
}

func report(fuzzTime string, results []fuzzResult) string {
	var sb strings.Builder
	line := strings.Repeat("-", 72)

	fmt.Fprintf(&sb, "netvault fuzz report, %s\n", time.Now().Format(time.RFC1123))
	fmt.Fprintf(&sb, "%s, %s/%s, %s per target\n%s\n", goVersion(), runtime.GOOS, runtime.GOARCH, fuzzTime, line)
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&sb, "%-4s  %-24s  %-22s  execs=%-10d new=%-4d %s\n",
			status, r.Target.Function, r.Target.Package, r.Execs, r.Corpus, r.Duration.Round(time.Second))
	}
	sb.WriteString(line + "\n")

	for _, r := range results {
		if r.Passed {
			continue
		}
		fmt.Fprintf(&sb, "\n[FAIL] %s\n%s\n", r.Target.Function, r.Output)
	}
	return sb.String()
}

func goVersion() string {
	out, err := exec.Command("go", "version").Output()
	if err != nil {
		return "go unknown"
	}
	return strings.TrimSpace(string(out))
}

// projectRoot walks up from this file to the directory holding go.mod.
func projectRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		log.Fatal("could not determine script directory")
	}
	for dir := filepath.Dir(filename); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		if dir == filepath.Dir(dir) {
			log.Fatal("could not find project root (no go.mod found)")
		}
	}
}
