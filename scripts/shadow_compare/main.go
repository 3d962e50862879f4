// Command shadow_compare replays timetable payloads against the legacy generator and this
// service, and reports where their flat responses disagree.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

// Fields that differ on every run and are dropped before comparing bodies.
var defaultIgnored = []string{"timestamp", "processing_time_seconds", "run_id", "stats", "cache_hit"}

type target struct {
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	Payload  string   `json:"payload"`
	Ignore   []string `json:"ignore"`
	Critical bool     `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target         target
	LegacyStatus   int
	GoStatus       int
	StatusMatch    bool
	BodyMatch      bool
	Error          error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

type client struct {
	http   *http.Client
	apiKey string
}

func main() {
	var (
		goBase      string
		legacyBase  string
		targetsPath string
		apiKey      string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:5000", "Legacy generator base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&apiKey, "api-key", os.Getenv("AUTH_API_KEY"), "X-API-KEY sent to both services")
	flag.DurationVar(&timeout, "timeout", 60*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	c := &client{http: &http.Client{Timeout: timeout}, apiKey: apiKey}
	baseDir := filepath.Dir(targetsPath)
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)
	for _, t := range targets {
		comp := compareTarget(c, goBase, legacyBase, baseDir, t)
		switch {
		case comp.Error != nil:
			if t.Critical {
				breaking++
			}
		case !comp.StatusMatch || !comp.BodyMatch:
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func compareTarget(c *client, goBase, legacyBase, baseDir string, tgt target) comparison {
	comp := comparison{Target: tgt}

	var body []byte
	if tgt.Payload != "" {
		var err error
		body, err = os.ReadFile(filepath.Join(baseDir, tgt.Payload))
		if err != nil {
			comp.Error = fmt.Errorf("read payload: %w", err)
			return comp
		}
	}

	goStatus, goBody, goDur, err := c.do(goBase, tgt, body)
	comp.DurationGo = goDur
	if err != nil {
		comp.Error = fmt.Errorf("go request failed: %w", err)
		return comp
	}
	legacyStatus, legacyBody, legacyDur, err := c.do(legacyBase, tgt, body)
	comp.DurationLegacy = legacyDur
	if err != nil {
		comp.Error = fmt.Errorf("legacy request failed: %w", err)
		return comp
	}

	comp.GoStatus = goStatus
	comp.LegacyStatus = legacyStatus
	comp.StatusMatch = goStatus == legacyStatus
	comp.BodyMatch = bodiesEqual(goBody, legacyBody, append(defaultIgnored, tgt.Ignore...))
	return comp
}

func (c *client) do(base string, tgt target, body []byte) (int, []byte, time.Duration, error) {
	if c == nil || c.http == nil {
		return 0, nil, 0, errors.New("nil client")
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodPost
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, data, time.Since(start), nil
}

func bodiesEqual(a, b []byte, ignored []string) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	for _, v := range []*interface{}{&aj, &bj} {
		if m, ok := (*v).(map[string]interface{}); ok {
			for _, key := range ignored {
				delete(m, key)
			}
		}
		normalize(v)
	}
	return reflect.DeepEqual(aj, bj)
}

// normalize folds integral floats to int64 so 1 and 1.0 compare equal.
func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k, v2 := range val {
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []comparison) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s (%s)\n", status, res.Target.Method, res.Target.Path, res.Target.Payload)
		fmt.Printf("  Go Status: %d (%s)\n", res.GoStatus, res.DurationGo)
		fmt.Printf("  Legacy Status: %d (%s)\n", res.LegacyStatus, res.DurationLegacy)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
		}
	}
}
