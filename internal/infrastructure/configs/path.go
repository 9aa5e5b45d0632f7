package configs

import (
	"flag"
	"os"

	"github.com/hilthontt/chatrelay/internal/infrastructure/env"
)

var candidatePaths = []string{
	"./config.yaml",
	"./config.yml",
	"./tmp/config.yaml",
	"../../config.yaml",
	"/etc/chatrelay/config.yaml",
	"/app/config.yaml",
}

// DetermineConfigPath resolves the config file from --config, CHATRELAY_CONFIG
// or the first existing candidate. An empty result means defaults only.
func DetermineConfigPath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("CHATRELAY_CONFIG", "")
	}

	if configPath == "" {
		configPath = firstExisting(candidatePaths)
	}

	return configPath
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
