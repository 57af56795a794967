// pkg/config/types.go
package config

import "time"

// Config is the root configuration of bytehunter.
type Config struct {
	Log       LogConfig       `description:"Logging configuration" koanf:"log"`
	Scheduler SchedulerConfig `description:"Task scheduling" koanf:"scheduler"`
	Executor  ExecutorConfig  `description:"External tool execution" koanf:"executor"`
	Workspace WorkspaceConfig `description:"Workspace layout" koanf:"workspace"`
	Report    ReportConfig    `description:"Report output" koanf:"report"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level: debug | info | warn | error" koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `description:"Log format: json | text" koanf:"format" validate:"oneof=json text"`
}

// SchedulerConfig bounds how many tasks run at once. Concurrency 0 or 1 runs
// tasks one at a time.
type SchedulerConfig struct {
	Concurrency      int `description:"Maximum tasks in flight" koanf:"concurrency" validate:"gte=0,lte=64"`
	PerCategoryLimit int `description:"Maximum tasks in flight per category (0 = unlimited)" koanf:"per_category_limit" validate:"gte=0"`
}

// ExecutorConfig controls how workers invoke external scanners.
type ExecutorConfig struct {
	Timeout   time.Duration `description:"Default per-command timeout" koanf:"timeout" validate:"gt=0"`
	RateLimit float64       `description:"Command launches per second (0 = unlimited)" koanf:"rate_limit" validate:"gte=0"`
	Burst     int           `description:"Burst of command launches allowed above the rate" koanf:"burst" validate:"gte=1"`
}

// WorkspaceConfig locates the reports, logs and results directories.
type WorkspaceConfig struct {
	Dir string `description:"Workspace root directory (empty = platform default)" koanf:"dir"`
}

// ReportConfig controls report persistence.
type ReportConfig struct {
	Enabled bool `description:"Write reports to the workspace" koanf:"enabled"`
}
