// Package config loads the kernel configuration used by the rtsim command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tomasbasham/rtkernel"
)

// Kernel holds the kernel configuration as it appears in a YAML file.
type Kernel struct {
	MaxPriorities   int    `yaml:"max_priorities"`
	MaxTasks        int    `yaml:"max_tasks"`
	HeapSize        int    `yaml:"heap_size"`
	TickRate        int    `yaml:"tick_rate_hz"`
	AgingThreshold  int    `yaml:"aging_threshold"`
	TimeSlicing     bool   `yaml:"time_slicing"`
	Severity        string `yaml:"severity"`
	CheckInvariants bool   `yaml:"check_invariants"`
	LogLevel        string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat       string `yaml:"log_format"` // text, json
}

// Default returns the configuration matching the kernel defaults.
func Default() Kernel {
	return Kernel{
		MaxPriorities:  rtkernel.DefaultMaxPriorities,
		MaxTasks:       rtkernel.DefaultMaxTasks,
		HeapSize:       rtkernel.DefaultHeapSize,
		TickRate:       rtkernel.DefaultTickRate,
		AgingThreshold: rtkernel.DefaultAgingThreshold,
		TimeSlicing:    true,
		Severity:       rtkernel.SeverityAbortTask.String(),
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads a YAML configuration file. Fields missing from the file keep
// their default values.
func Load(path string) (Kernel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Kernel{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Kernel{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document on top of the defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (Kernel, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Kernel{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Kernel{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Kernel) Validate() error {
	switch {
	case c.MaxPriorities < 4:
		return fmt.Errorf("max_priorities must be at least 4, got %d", c.MaxPriorities)
	case c.MaxTasks < 1:
		return fmt.Errorf("max_tasks must be positive, got %d", c.MaxTasks)
	case c.HeapSize <= 0:
		return fmt.Errorf("heap_size must be positive, got %d", c.HeapSize)
	case c.TickRate <= 0:
		return fmt.Errorf("tick_rate_hz must be positive, got %d", c.TickRate)
	case c.AgingThreshold < 0:
		return fmt.Errorf("aging_threshold must not be negative, got %d", c.AgingThreshold)
	}
	if _, ok := rtkernel.ParseSeverity(strings.ToLower(c.Severity)); !ok {
		return fmt.Errorf("severity must be abort-task or halt, got %q", c.Severity)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Options converts the configuration to kernel options.
func (c Kernel) Options(logger *slog.Logger, console io.Writer) []rtkernel.Option {
	severity, _ := rtkernel.ParseSeverity(strings.ToLower(c.Severity))
	return []rtkernel.Option{
		rtkernel.WithMaxPriorities(c.MaxPriorities),
		rtkernel.WithMaxTasks(c.MaxTasks),
		rtkernel.WithHeapSize(c.HeapSize),
		rtkernel.WithTickRate(c.TickRate),
		rtkernel.WithAgingThreshold(c.AgingThreshold),
		rtkernel.WithTimeSlicing(c.TimeSlicing),
		rtkernel.WithSeverity(severity),
		rtkernel.WithInvariantChecks(c.CheckInvariants),
		rtkernel.WithLogger(logger),
		rtkernel.WithConsole(console),
	}
}
