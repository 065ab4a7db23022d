// Benchmark runner for netvault.
//
// Runs the benchmarks of the queue store and the health collector and writes
// the raw output plus an ns/op summary to target/reports/bench.txt.
//
// Usage:
//
//	go run ./scripts/bench
//	BENCH_TIME=10s go run ./scripts/bench
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

var benchPackages = []string{
	"./internal/store/",
	"./internal/collector/",
}

func main() {
	root := projectRoot()
	reportDir := filepath.Join(root, "target", "reports")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		log.Fatalf("creating report directory: %v", err)
	}

	benchTime := os.Getenv("BENCH_TIME")
	if benchTime == "" {
		benchTime = "3s"
	}

	args := append([]string{"test", "-run=^$", "-bench=.", "-benchmem", "-benchtime=" + benchTime}, benchPackages...)
	cmd := exec.Command("go", args...)
	cmd.Dir = root

	var buf bytes.Buffer
	cmd.Stdout = io.MultiWriter(os.Stdout, &buf)
	cmd.Stderr = io.MultiWriter(os.Stderr, &buf)
	runErr := cmd.Run()

	var sb strings.Builder
	fmt.Fprintf(&sb, "netvault benchmark report, %s\n", time.Now().Format(time.RFC1123))
	fmt.Fprintf(&sb, "%s/%s, benchtime %s\n\n", runtime.GOOS, runtime.GOARCH, benchTime)
	sb.WriteString("Summary\n")
	for _, l := range summary(buf.String()) {
		sb.WriteString("  " + l + "\n")
	}
	sb.WriteString("\nRaw output\n")
	sb.WriteString(buf.String())
	if runErr != nil {
		fmt.Fprintf(&sb, "\n[ERROR] %v\n", runErr)
	}

	path := filepath.Join(reportDir, "bench.txt")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		log.Fatalf("writing bench report: %v", err)
	}
	fmt.Printf("\nBenchmark report: %s\n", path)

	if runErr != nil {
		os.Exit(1)
	}
}

// summary keeps the benchmark name and ns/op of every result line.
func summary(out string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 4 || !strings.HasPrefix(f[0], "Benchmark") || f[3] != "ns/op" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-40s %14s ns/op", f[0], f[2]))
	}
	return lines
}

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
