package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GetInt looks up an integer option, falling back to def on absence.
// Returns an error if the value is present but not parseable.
func (d *Doc) GetInt(section, key string, def int) (int, error) {
	v, ok := d.Get(section, key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("option %s.%s: %q is not an integer", section, key, v)
	}
	return n, nil
}

// GetBool looks up a boolean option ("true"/"false"/"1"/"0"/"yes"/"no").
func (d *Doc) GetBool(section, key string, def bool) (bool, error) {
	v, ok := d.Get(section, key)
	if !ok {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("option %s.%s: %q is not a boolean", section, key, v)
	}
}

// GetDuration looks up a duration option in whole seconds (as the original
// brim config format does — e.g. "client_timeout = 60").
func (d *Doc) GetDuration(section, key string, def time.Duration) (time.Duration, error) {
	v, ok := d.Get(section, key)
	if !ok {
		return def, nil
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("option %s.%s: %q is not a duration in seconds", section, key, v)
	}
	return time.Duration(secs) * time.Second, nil
}

// GetList splits a space-separated option into fields.
func (d *Doc) GetList(section, key string) []string {
	v, ok := d.Get(section, key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	return strings.Fields(v)
}
