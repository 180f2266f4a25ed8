package config

import "github.com/spf13/pflag"

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario string
	Events   string
	Snapshot string
	PGDSN    string
	Migrate  bool
	LogLevel string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"events":  "./data/events.jsonl",
		"migrate": true,
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	return SimulateConfig{
		Scenario: v.GetString("scenario"),
		Events:   v.GetString("events"),
		Snapshot: v.GetString("snapshot"),
		PGDSN:    v.GetString("pg-dsn"),
		Migrate:  v.GetBool("migrate"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// InspectConfig holds configuration for the inspect command. Snapshot wins
// over PGDSN when both are set.
type InspectConfig struct {
	Snapshot string
	PGDSN    string
	At       string
	LogLevel string
}

// LoadInspect merges config file, environment variables, and flags into InspectConfig.
func LoadInspect(cfgFile string, flags *pflag.FlagSet) (InspectConfig, error) {
	v, err := load(cfgFile, flags, nil)
	if err != nil {
		return InspectConfig{}, err
	}
	return InspectConfig{
		Snapshot: v.GetString("snapshot"),
		PGDSN:    v.GetString("pg-dsn"),
		At:       v.GetString("at"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
