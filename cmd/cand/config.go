package main

import "gopkg.in/ini.v1"

// config holds the daemon's startup options (spec.md §6's CLI plus the
// ambient config/metrics additions SPEC_FULL.md §4.E asks for).
type config struct {
	devicePath  string
	verbose     bool
	priority    int
	mailboxDir  string
	metricsAddr string
}

func defaultConfig() config {
	return config{
		devicePath: defaultDevicePath,
		mailboxDir: defaultMailboxDir,
	}
}

// loadConfigFile reads a "[daemon]" section from an INI file (the same
// library this codebase already used for EDS parsing) and overlays any
// keys it finds onto cfg, leaving unset keys at their prior value.
func loadConfigFile(cfg config, path string) (config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}
	sec := f.Section("daemon")

	if k := sec.Key("device"); k.String() != "" {
		cfg.devicePath = k.String()
	}
	if k := sec.Key("verbose"); k.String() != "" {
		cfg.verbose, err = k.Bool()
		if err != nil {
			return cfg, err
		}
	}
	if k := sec.Key("priority"); k.String() != "" {
		cfg.priority, err = k.Int()
		if err != nil {
			return cfg, err
		}
	}
	if k := sec.Key("mailbox_dir"); k.String() != "" {
		cfg.mailboxDir = k.String()
	}
	if k := sec.Key("metrics_addr"); k.String() != "" {
		cfg.metricsAddr = k.String()
	}
	return cfg, nil
}
