package config

import (
	"fmt"
	"strings"
)

// ValidateServiceConfig is the default post-merge validator. It collects
// every problem rather than stopping at the first one. A nil return
// value means the configuration is valid.
func ValidateServiceConfig(cfg *ServiceConfig) error {
	var problems []string

	switch cfg.Protocol {
	case ProtocolSFTP, ProtocolFTP, ProtocolLocal:
	default:
		problems = append(problems, fmt.Sprintf("protocol must be one of sftp, ftp, local (got %q)", cfg.Protocol))
	}

	if cfg.Protocol != ProtocolLocal {
		if strings.TrimSpace(cfg.Host) == "" {
			problems = append(problems, "host cannot be empty")
		}
		if strings.TrimSpace(cfg.Username) == "" {
			problems = append(problems, "username cannot be empty")
		}
	}

	if strings.TrimSpace(cfg.RemotePath) == "" {
		problems = append(problems, "remotePath cannot be empty")
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port must be between 1-65535 (got %d)", cfg.Port))
	}

	if cfg.Concurrency < 1 {
		problems = append(problems, fmt.Sprintf("concurrency must be at least 1 (got %d)", cfg.Concurrency))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(problems, "\n"))
	}
	return nil
}
