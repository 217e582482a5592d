// Package coverage computes a gated code-coverage percentage from an
// xccov JSON report, filtered by target and file-name rules.
package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// ErrBelowMinimum is returned when the computed percentage misses the
// gate.
var ErrBelowMinimum = errors.New("code coverage below minimum")

// Config selects which targets and files count toward the percentage.
// Matching is case-insensitive substring matching; generated Swift
// sources are always excluded.
type Config struct {
	Targets         []string `json:"targets" yaml:"targets"`
	FileNameInclude []string `json:"file_name_include" yaml:"file_name_include"`
	FileNameExclude []string `json:"file_name_exclude" yaml:"file_name_exclude"`
}

// Report mirrors the xccov --report --json shape, the parts we read.
type Report struct {
	Targets []struct {
		Name  string `json:"name"`
		Files []struct {
			Name         string  `json:"name"`
			LineCoverage float64 `json:"lineCoverage"`
		} `json:"files"`
	} `json:"targets"`
}

// LoadConfig reads a JSON coverage config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading coverage config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("coverage config is not valid JSON: %w", err)
	}
	return &cfg, nil
}

// LoadReport reads an xccov JSON report file.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading coverage report: %w", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("coverage report is not valid JSON: %w", err)
	}
	return &report, nil
}

// Compute averages per-file line coverage across the counted files and
// returns the percentage with the number of files counted.
func Compute(report *Report, cfg *Config) (float64, int, error) {
	var total float64
	var files int
	for _, target := range report.Targets {
		// target names carry a product suffix, e.g. Foo.framework
		name := strings.SplitN(target.Name, ".", 2)[0]
		if !contains(cfg.Targets, name) {
			continue
		}
		for _, file := range target.Files {
			if !countsTowardCoverage(file.Name, cfg) {
				continue
			}
			pct := file.LineCoverage * 100
			log.WithField("file", file.Name).Debugf("%.1f%%", pct)
			total += pct
			files++
		}
	}
	if files == 0 {
		return 0, 0, fmt.Errorf("no files matched the coverage config")
	}
	return total / float64(files), files, nil
}

// Check computes the percentage and fails when it is below minimum.
func Check(report *Report, cfg *Config, minimum float64) (float64, error) {
	if minimum < 0 || minimum > 100 {
		return 0, fmt.Errorf("minimum coverage percentage must be between 0 and 100, got %v", minimum)
	}
	pct, files, err := Compute(report, cfg)
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"files":    files,
		"coverage": fmt.Sprintf("%.1f%%", pct),
	}).Info("computed code coverage")
	if pct < minimum {
		return pct, fmt.Errorf("%w: %.1f%% < %.1f%%", ErrBelowMinimum, pct, minimum)
	}
	return pct, nil
}

func countsTowardCoverage(fileName string, cfg *Config) bool {
	name := strings.ToLower(fileName)
	if strings.HasSuffix(name, ".generated.swift") {
		return false
	}
	included := false
	for _, inc := range cfg.FileNameInclude {
		if strings.Contains(name, strings.ToLower(inc)) {
			included = true
			break
		}
	}
	for _, exc := range cfg.FileNameExclude {
		if strings.Contains(name, strings.ToLower(exc)) {
			return false
		}
	}
	return included
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
