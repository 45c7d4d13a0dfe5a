package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"talkml/agent/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Check is one named probe.
type Check func(ctx context.Context) CheckResult

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// CheckAll runs the configuration and script backend checks plus any extra
// checks and returns the combined status.
func CheckAll(ctx context.Context, cfg config.Config, extra ...Check) HealthStatus {
	checks := append([]Check{
		func(context.Context) CheckResult { return checkDialogue(cfg) },
		func(ctx context.Context) CheckResult { return checkScript(ctx, cfg) },
	}, extra...)
	return run(ctx, checks)
}

func run(ctx context.Context, checks []Check) HealthStatus {
	results := make([]CheckResult, 0, len(checks))
	allOK := true
	for _, c := range checks {
		r := c(ctx)
		if !r.OK {
			allOK = false
		}
		results = append(results, r)
	}
	return HealthStatus{
		OK:        allOK,
		Checks:    results,
		CheckedAt: time.Now().UTC(),
	}
}

func checkDialogue(cfg config.Config) CheckResult {
	result := CheckResult{Name: "dialogue_config"}
	if err := cfg.Validate(); err != nil {
		result.Error = err.Error()
		return result
	}
	if cfg.Script.TKMLFile == "" {
		result.Error = "script.tkml_file not set"
		return result
	}
	result.OK = true
	return result
}

// checkScript only proves the backend answers HTTP. Any response below 500
// counts, since the endpoint rejects anything but a dialogue POST.
func checkScript(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "script_backend"}

	if cfg.Script.URL == "" {
		result.Error = "script.url not set"
		return result
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Script.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	client := &http.Client{Timeout: cfg.Script.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)
	if resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}
	io.Copy(io.Discard, resp.Body)

	result.OK = true
	return result
}

// WorkerCheck reports whether a speech worker is attached.
func WorkerCheck(connected func() bool) Check {
	return func(context.Context) CheckResult {
		r := CheckResult{Name: "speech_worker", OK: connected()}
		if !r.OK {
			r.Error = "no worker connected"
		}
		return r
	}
}

// LoopCheck reports whether the dialogue loop is running.
func LoopCheck(running func() bool) Check {
	return func(context.Context) CheckResult {
		r := CheckResult{Name: "dialogue_loop", OK: running()}
		if !r.OK {
			r.Error = "dialogue loop not running"
		}
		return r
	}
}
