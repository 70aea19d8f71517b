package config

import "time"

// FeedsConfig holds the upstream endpoint per agency. Any agency may be
// left empty to disable it.
type FeedsConfig struct {
	AmtrakURL                string `yaml:"amtrakURL" validate:"omitempty,url"`
	ViaURL                   string `yaml:"viaURL" validate:"omitempty,url"`
	BrightlinePositionsURL   string `yaml:"brightlinePositionsURL" validate:"omitempty,url"`
	BrightlineTripUpdatesURL string `yaml:"brightlineTripUpdatesURL" validate:"omitempty,url"`
}

// PollerConfig controls the polling cadence.
type PollerConfig struct {
	IntervalMS int `yaml:"intervalMS" validate:"gte=0"`
	TimeoutMS  int `yaml:"timeoutMS" validate:"gte=0"`
}

// AssetsConfig points to the static reference data on disk.
type AssetsConfig struct {
	StationsPath      string `yaml:"stationsPath" validate:"required"`
	TrackGeometryPath string `yaml:"trackGeometryPath"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Feeds  FeedsConfig  `yaml:"feeds"`
	Poller PollerConfig `yaml:"poller"`
	Assets AssetsConfig `yaml:"assets" validate:"required"`

	// MetricsAddr enables the prometheus endpoint when set, e.g. ":9090".
	MetricsAddr string `yaml:"metricsAddr" validate:"omitempty,hostname_port"`
	LogLevel    string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
}

// PollInterval returns the configured cadence as a duration.
func (c AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalMS) * time.Millisecond
}

// PollTimeout returns the per-agency call timeout as a duration.
func (c AppConfig) PollTimeout() time.Duration {
	return time.Duration(c.Poller.TimeoutMS) * time.Millisecond
}
