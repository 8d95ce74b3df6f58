// Command shadow_compare replays read-only requests against the Go API and the
// legacy PeerLearn backend and reports status or payload drift.
package main

import (
	"bytes"
	"context"
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

	"golang.org/x/sync/errgroup"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
	// Auth sends the bearer token to both backends.
	Auth bool `json:"auth"`
}

type config struct {
	Targets []target `json:"targets"`
	// Ignore lists object keys whose values differ per backend (ids, timestamps).
	Ignore []string `json:"ignore"`
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

type fetched struct {
	status   int
	body     []byte
	duration time.Duration
}

func main() {
	var (
		goBase      string
		legacyBase  string
		targetsPath string
		token       string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8000/api/v1", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:8001/api", "Legacy API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&token, "token", os.Getenv("SHADOW_TOKEN"), "Bearer token for targets marked auth")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	cfg, err := loadConfig(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}
	ignore := make(map[string]struct{}, len(cfg.Ignore))
	for _, key := range cfg.Ignore {
		ignore[key] = struct{}{}
	}

	client := &http.Client{Timeout: timeout}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)

	for _, t := range cfg.Targets {
		if t.Auth && token == "" {
			log.Printf("skipping %s %s: no token", t.Method, t.Path)
			continue
		}
		comp := compareTarget(client, goBase, legacyBase, token, t, ignore)
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

func loadConfig(path string) (*config, error) {
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
	return &cfg, nil
}

// compareTarget hits both backends concurrently so latency numbers are comparable.
func compareTarget(client *http.Client, goBase, legacyBase, token string, tgt target, ignore map[string]struct{}) comparison {
	comp := comparison{Target: tgt}

	var goRes, legacyRes fetched
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		res, err := performRequest(ctx, client, goBase, token, tgt)
		if err != nil {
			return fmt.Errorf("go request failed: %w", err)
		}
		goRes = res
		return nil
	})
	g.Go(func() error {
		res, err := performRequest(ctx, client, legacyBase, token, tgt)
		if err != nil {
			return fmt.Errorf("legacy request failed: %w", err)
		}
		legacyRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		comp.Error = err
		return comp
	}

	comp.DurationGo = goRes.duration
	comp.DurationLegacy = legacyRes.duration
	comp.GoStatus = goRes.status
	comp.LegacyStatus = legacyRes.status
	comp.StatusMatch = comp.GoStatus == comp.LegacyStatus
	comp.BodyMatch = bodiesEqual(unwrapEnvelope(goRes.body), legacyRes.body, ignore)
	return comp
}

func performRequest(ctx context.Context, client *http.Client, base, token string, tgt target) (fetched, error) {
	if client == nil {
		return fetched{}, errors.New("nil client")
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fetched{}, err
	}
	req.Header.Set("Accept", "application/json")
	if tgt.Auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetched{}, fmt.Errorf("read body: %w", err)
	}
	return fetched{status: resp.StatusCode, body: body, duration: time.Since(start)}, nil
}

// unwrapEnvelope returns the data member of a {"data": ...} response so it can be
// compared with the legacy backend's bare payloads.
func unwrapEnvelope(body []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Data) == 0 {
		return body
	}
	return env.Data
}

func bodiesEqual(a, b []byte, ignore map[string]struct{}) bool {
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
	normalize(&aj, ignore)
	normalize(&bj, ignore)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}, ignore map[string]struct{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k, v2 := range val {
			if _, skip := ignore[k]; skip {
				delete(val, k)
				continue
			}
			normalize(&v2, ignore)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2, ignore)
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
		fmt.Printf("[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		fmt.Printf("  Go: %d (%s) | Legacy: %d (%s)\n", res.GoStatus, res.DurationGo, res.LegacyStatus, res.DurationLegacy)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
		}
	}
}
