package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ProviderDetector detects the external tools a run can use
type ProviderDetector struct {
	laceworkCLI string
}

// NewProviderDetector creates a new provider detector
func NewProviderDetector(laceworkCLI string) *ProviderDetector {
	if laceworkCLI == "" {
		laceworkCLI = "lacework"
	}
	return &ProviderDetector{laceworkCLI: laceworkCLI}
}

// DetectionResult contains the result of provider detection
type DetectionResult struct {
	Available bool
	Status    string
	Version   string
}

// DetectAll detects all supported tools
func (d *ProviderDetector) DetectAll() map[string]DetectionResult {
	return map[string]DetectionResult{
		"lacework": d.DetectLaceworkCLI(),
		"aws":      d.DetectAWS(),
	}
}

// DetectLaceworkCLI detects the lacework CLI
func (d *ProviderDetector) DetectLaceworkCLI() DetectionResult {
	return detectBinary(d.laceworkCLI, "lacework CLI", func(out string) string {
		// "lacework v1.52.0 (sha:...)"
		for _, f := range strings.Fields(out) {
			if strings.HasPrefix(f, "v") && strings.Count(f, ".") >= 1 {
				return strings.TrimPrefix(f, "v")
			}
		}
		return ""
	}, "version")
}

// DetectAWS detects AWS CLI
func (d *ProviderDetector) DetectAWS() DetectionResult {
	return detectBinary("aws", "AWS CLI", func(out string) string {
		parts := strings.Fields(out)
		if len(parts) > 0 && strings.HasPrefix(parts[0], "aws-cli/") {
			return strings.TrimPrefix(parts[0], "aws-cli/")
		}
		return ""
	}, "--version")
}

func detectBinary(binary, label string, version func(string) string, args ...string) DetectionResult {
	result := DetectionResult{}

	output, err := exec.Command(binary, args...).Output()
	if err != nil {
		result.Status = label + " not found"
		return result
	}

	result.Available = true
	result.Version = version(string(output))
	result.Status = label + " found"
	if result.Version != "" {
		result.Status += " (v" + result.Version + ")"
	}
	return result
}

// AuthResult contains authentication check results
type AuthResult struct {
	Authenticated bool
	Message       string
	Profile       string
}

// CheckLacework reports where Lacework credentials would come from
func CheckLacework(c *Config) AuthResult {
	if c.HasLaceworkCredentials() {
		return AuthResult{Authenticated: true, Message: "API key configured for " + c.Lacework.Account}
	}

	homeDir, _ := os.UserHomeDir()
	if _, err := os.Stat(filepath.Join(homeDir, ".lacework.toml")); err == nil {
		return AuthResult{Authenticated: true, Message: "lacework CLI profile found (~/.lacework.toml)", Profile: "default"}
	}

	return AuthResult{Message: "no Lacework credentials found"}
}

// CheckAWS checks AWS authentication
func CheckAWS() AuthResult {
	if os.Getenv("AWS_ACCESS_KEY_ID") != "" && os.Getenv("AWS_SECRET_ACCESS_KEY") != "" {
		return AuthResult{Authenticated: true, Message: "authenticated via environment variables"}
	}

	homeDir, _ := os.UserHomeDir()
	if _, err := os.Stat(filepath.Join(homeDir, ".aws", "credentials")); err == nil {
		profile := os.Getenv("AWS_PROFILE")
		if profile == "" {
			profile = "default"
		}
		return AuthResult{Authenticated: true, Message: "authenticated via credentials file", Profile: profile}
	}

	return AuthResult{Message: "no AWS credentials found"}
}
