// Coverage gate for netvault.
//
// Runs the test suite with a coverage profile, drops generated and fake
// code from it, and compares the total against coverage_required.txt next
// to this file. The threshold ratchets up when coverage improves and the run
// fails when coverage falls below it. Reports go to target/reports/.
//
// Usage:
//
//	go run ./scripts/coverage
package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// defaultThreshold applies until the first ratchet writes
// coverage_required.txt.
const defaultThreshold = 70

var testedPackages = []string{"./internal/...", "./cmd/..."}

// excluded lists path fragments whose profile lines are dropped.
var excluded = []string{
	"/docs/swagger/",
	"/internal/snmp/snmptest/",
}

func main() {
	scriptDir := scriptDir()
	root := projectRoot(scriptDir)
	thresholdFile := filepath.Join(scriptDir, "coverage_required.txt")
	reportDir := filepath.Join(root, "target", "reports")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		log.Fatalf("creating report directory: %v", err)
	}

	threshold, err := readThreshold(thresholdFile)
	if err != nil {
		log.Fatalf("reading threshold: %v", err)
	}
	fmt.Printf("Coverage threshold: %d%%\n\n", threshold)

	raw := filepath.Join(reportDir, "coverage.out")
	profile := filepath.Join(reportDir, "coverage-filtered.out")

	args := append([]string{"test", "-count=1", "-race", "-coverprofile=" + raw}, testedPackages...)
	if err := goCmd(root, args...).Run(); err != nil {
		log.Fatalf("tests failed: %v", err)
	}
	if err := filterProfile(raw, profile); err != nil {
		log.Fatalf("filtering coverage profile: %v", err)
	}

	out, err := exec.Command("go", "tool", "cover", "-func="+profile).Output()
	if err != nil {
		log.Fatalf("summarising coverage: %v", err)
	}
	fmt.Println(string(out))

	total, err := totalPercent(string(out))
	if err != nil {
		log.Fatalf("reading total coverage: %v", err)
	}
	fmt.Printf("Total %d%%, required %d%%\n", total, threshold)

	html := filepath.Join(reportDir, "coverage.html")
	if err := exec.Command("go", "tool", "cover", "-html="+profile, "-o", html).Run(); err != nil {
		fmt.Printf("warning: no HTML report: %v\n", err)
	}

	switch {
	case total < threshold:
		fmt.Printf("Coverage fell below %d%%\n", threshold)
		os.Exit(1)
	case total > threshold:
		fmt.Printf("Ratcheting threshold to %d%%\n", total)
		if err := os.WriteFile(thresholdFile, []byte(strconv.Itoa(total)+"\n"), 0o644); err != nil {
			log.Fatalf("writing threshold: %v", err)
		}
	}
}

func goCmd(dir string, args ...string) *exec.Cmd {
	cmd := exec.Command("go", args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

func readThreshold(path string) (int, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultThreshold, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return n, nil
}

// totalPercent extracts the integer percentage of the "total:" line of
// `go tool cover -func`.
func totalPercent(summary string) (int, error) {
	for line := range strings.SplitSeq(summary, "\n") {
		f := strings.Fields(line)
		if len(f) < 3 || f[0] != "total:" {
			continue
		}
		pct, err := strconv.ParseFloat(strings.TrimSuffix(f[len(f)-1], "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %q: %w", line, err)
		}
		return int(pct), nil
	}
	return 0, fmt.Errorf("no total line in coverage summary")
}

func filterProfile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	var kept []string
	for line := range strings.SplitSeq(string(data), "\n") {
		if !isExcluded(line) {
			kept = append(kept, line)
		}
	}
	return os.WriteFile(dst, []byte(strings.Join(kept, "\n")), 0o644)
}

func isExcluded(line string) bool {
	for _, frag := range excluded {
		if strings.Contains(line, frag) {
			return true
		}
	}
	return false
}

func scriptDir() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		log.Fatal("could not determine script directory")
	}
	return filepath.Dir(filename)
}

func projectRoot(from string) string {
	for dir := from; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		if dir == filepath.Dir(dir) {
			log.Fatal("could not find project root (no go.mod found)")
		}
	}
}
