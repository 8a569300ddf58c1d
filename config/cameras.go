package config

import (
	"regexp"
	"strings"
)

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// FindCamera resolves a user-supplied location string to a configured camera.
// Matching is case-insensitive: exact match first, then substring, then a
// substring match with punctuation stripped from both sides. Returns false
// when nothing matches.
func (cfg *Config) FindCamera(query string) (*CameraConfig, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, false
	}

	for i := range cfg.Cameras {
		if strings.ToLower(cfg.Cameras[i].Name) == q {
			return &cfg.Cameras[i], true
		}
	}

	for i := range cfg.Cameras {
		if strings.Contains(strings.ToLower(cfg.Cameras[i].Name), q) {
			return &cfg.Cameras[i], true
		}
	}

	stripped := punctuation.ReplaceAllString(q, "")
	for i := range cfg.Cameras {
		name := punctuation.ReplaceAllString(strings.ToLower(cfg.Cameras[i].Name), "")
		if stripped != "" && strings.Contains(name, stripped) {
			return &cfg.Cameras[i], true
		}
	}

	return nil, false
}

// CameraNames returns the display names of all configured cameras,
// used by not-found responses to enumerate valid identifiers.
func (cfg *Config) CameraNames() []string {
	names := make([]string, len(cfg.Cameras))
	for i, cam := range cfg.Cameras {
		names[i] = cam.Name
	}
	return names
}

// EnabledCameras returns the cameras that should be captured.
func (cfg *Config) EnabledCameras() []CameraConfig {
	var enabled []CameraConfig
	for _, cam := range cfg.Cameras {
		if cam.Enabled {
			enabled = append(enabled, cam)
		}
	}
	return enabled
}
