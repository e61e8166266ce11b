package config

import (
	"fmt"
	"strings"
	"time"
)

// Config keys
const (
	KeyAnalyzerCommand            = "analyzer.command"
	KeyAnalyzerIncrementalCommand = "analyzer.incremental-command"

	KeyReferenceMode = "reference.mode"
	KeyReferenceRev  = "reference.rev"
	KeyReferenceDir  = "reference.dir"

	KeyIssuesFixture     = "issues.fixture"
	KeyExclusionsCommand = "exclusions.command"
	KeyTrackerCommand    = "tracker.command"

	KeyBatchJobs             = "batch.jobs"
	KeyWatchDebounce         = "watch.debounce"
	KeyRemoteRetryMaxElapsed = "remote.retry-max-elapsed"
	KeyDebtHoursPerDay       = "debt.hours-per-day"
	KeySettingsPath          = "settings.path"
)

// Reference modes
const (
	ReferenceGit = "git"
	ReferenceDir = "dir"
)

// Settings is the typed view over every lens key.
type Settings struct {
	AnalyzerCommand    string        `json:"analyzer_command"`
	IncrementalCommand string        `json:"incremental_command"`
	ReferenceMode      string        `json:"reference_mode"`
	ReferenceRev       string        `json:"reference_rev"`
	ReferenceDir       string        `json:"reference_dir"`
	IssuesFixture      string        `json:"issues_fixture"`
	ExclusionsCommand  string        `json:"exclusions_command"`
	TrackerCommand     string        `json:"tracker_command"`
	BatchJobs          int           `json:"batch_jobs"`
	WatchDebounce      time.Duration `json:"watch_debounce"`
	RetryMaxElapsed    time.Duration `json:"retry_max_elapsed"`
	HoursPerDay        int           `json:"hours_per_day"`
	SettingsPath       string        `json:"settings_path"`
}

func registerDefaults() {
	v.SetDefault(KeyAnalyzerCommand, "")
	v.SetDefault(KeyAnalyzerIncrementalCommand, "")
	v.SetDefault(KeyReferenceMode, ReferenceGit)
	v.SetDefault(KeyReferenceRev, "HEAD")
	v.SetDefault(KeyReferenceDir, "")
	v.SetDefault(KeyIssuesFixture, "")
	v.SetDefault(KeyExclusionsCommand, "")
	v.SetDefault(KeyTrackerCommand, "")
	v.SetDefault(KeyBatchJobs, 4)
	v.SetDefault(KeyWatchDebounce, "500ms")
	v.SetDefault(KeyRemoteRetryMaxElapsed, "30s")
	v.SetDefault(KeyDebtHoursPerDay, 8)
	v.SetDefault(KeySettingsPath, "")
}

// Get returns the current settings.
func Get() Settings {
	return Settings{
		AnalyzerCommand:    GetString(KeyAnalyzerCommand),
		IncrementalCommand: GetString(KeyAnalyzerIncrementalCommand),
		ReferenceMode:      strings.ToLower(GetString(KeyReferenceMode)),
		ReferenceRev:       GetString(KeyReferenceRev),
		ReferenceDir:       GetString(KeyReferenceDir),
		IssuesFixture:      GetString(KeyIssuesFixture),
		ExclusionsCommand:  GetString(KeyExclusionsCommand),
		TrackerCommand:     GetString(KeyTrackerCommand),
		BatchJobs:          GetInt(KeyBatchJobs),
		WatchDebounce:      GetDuration(KeyWatchDebounce),
		RetryMaxElapsed:    GetDuration(KeyRemoteRetryMaxElapsed),
		HoursPerDay:        GetInt(KeyDebtHoursPerDay),
		SettingsPath:       GetString(KeySettingsPath),
	}
}

// Validate reports the first setting that cannot be used.
func (s Settings) Validate() error {
	switch s.ReferenceMode {
	case ReferenceGit:
	case ReferenceDir:
		if s.ReferenceDir == "" {
			return fmt.Errorf("%s is required when %s is %q", KeyReferenceDir, KeyReferenceMode, ReferenceDir)
		}
	default:
		return fmt.Errorf("invalid %s: must be %q or %q, got %q", KeyReferenceMode, ReferenceGit, ReferenceDir, s.ReferenceMode)
	}
	if s.BatchJobs < 1 {
		return fmt.Errorf("invalid %s: must be at least 1, got %d", KeyBatchJobs, s.BatchJobs)
	}
	if s.HoursPerDay < 1 || s.HoursPerDay > 24 {
		return fmt.Errorf("invalid %s: must be between 1 and 24, got %d", KeyDebtHoursPerDay, s.HoursPerDay)
	}
	if s.WatchDebounce < 0 || s.RetryMaxElapsed < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
