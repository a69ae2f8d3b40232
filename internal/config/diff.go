package config

import "reflect"

// ConfigDiff describes what changed between two configs and whether the
// change can be applied without a restart. Gate settings and the log level
// are hot-reloadable; everything else (frame geometry, providers, admin
// server) requires a process restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GateChanged is true when any gate field changed; the new settings are
	// delivered to the running pipeline as a reconfigure command.
	GateChanged bool

	// RestartNeeded lists the non-hot-reloadable sections that changed.
	RestartNeeded []string
}

// HotReloadable reports whether the whole diff can be applied in place.
func (d ConfigDiff) HotReloadable() bool {
	return len(d.RestartNeeded) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !reflect.DeepEqual(old.Gate, new.Gate) {
		d.GateChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartNeeded = append(d.RestartNeeded, "server")
	}
	if old.Audio != new.Audio {
		d.RestartNeeded = append(d.RestartNeeded, "audio")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartNeeded = append(d.RestartNeeded, "providers")
	}

	return d
}
