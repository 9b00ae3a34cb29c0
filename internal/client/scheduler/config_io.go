package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/avalactf/avala/internal/client/exploit"
)

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// exploitFile is the on-disk JSON shape for one exploit's config file,
// the field names matching the original decorator's keyword arguments.
type exploitFile struct {
	Service   string            `json:"service"`
	Alias     string            `json:"alias"`
	Draft     bool              `json:"draft"`
	Targets   string            `json:"strategy"`
	TickScope string            `json:"tick_scope"`
	LastN     int               `json:"last_n"`
	Skip      []int             `json:"skip"`
	Prepare   string            `json:"prepare"`
	Cleanup   string            `json:"cleanup"`
	Command   string            `json:"command"`
	Env       map[string]string `json:"env"`
	DelaySecs float64           `json:"delay"`
	Batching  struct {
		Size    int     `json:"size"`
		Count   int     `json:"count"`
		GapSecs float64 `json:"gap"`
	} `json:"batching"`
	Workers    int     `json:"workers"`
	TimeoutSecs float64 `json:"timeout"`
}

func loadExploitConfig(path string) (exploit.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return exploit.Config{}, fmt.Errorf("read: %w", err)
	}
	var f exploitFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return exploit.Config{}, fmt.Errorf("decode: %w", err)
	}
	if f.Command == "" {
		return exploit.Config{}, fmt.Errorf("missing required field %q", "command")
	}

	cfg := exploit.Config{
		Service:   f.Service,
		Alias:     f.Alias,
		Targets:   exploit.TargetingStrategy(f.Targets),
		TickScope: exploit.TickScope(f.TickScope),
		LastN:     f.LastN,
		Skip:      f.Skip,
		IsDraft:   f.Draft,
		Prepare:   f.Prepare,
		Cleanup:   f.Cleanup,
		Command:   f.Command,
		Env:       f.Env,
		Delay:     secondsToDuration(f.DelaySecs),
		Batching: exploit.Batching{
			Size:  f.Batching.Size,
			Count: f.Batching.Count,
			Gap:   secondsToDuration(f.Batching.GapSecs),
		},
		Workers: f.Workers,
		Timeout: secondsToDuration(f.TimeoutSecs),
	}
	if cfg.Alias == "" {
		cfg.Alias = strings.TrimSuffix(path, ".json")
	}
	return cfg, nil
}

// writeFlagIDsFile writes flagIDs, one per line, to a temp file and
// returns its path plus a cleanup func, the same file-handoff the
// original's shell executor used for {flag_ids_path}.
func writeFlagIDsFile(flagIDs []string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "avala-flagids-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strings.Join(flagIDs, "\n")); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}

	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
