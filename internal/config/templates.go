package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "scenario":
		return scenarioTemplate, nil
	case "eventportd":
		return daemonTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const scenarioTemplate = `name = "pointer-tracking"
origin = "https://app.example"
depth = 2

[[events]]
type = "mousemove"
offset_x = 10
offset_y = 20
repeat = 3

[[events]]
type = "click"
offset_x = 12
offset_y = 24

[[events]]
type = "mousemove"
offset_x = 40
offset_y = 80
`

const daemonTemplate = `admin_addr = "127.0.0.1:7400"
cors_origins = ["http://localhost:3000"]
scenario_path = "cmd/eventportd/scenario.toml"
log_level = "info"
settle_interval = "250ms"
`
