// Package setup configures MCP clients to launch the spirometry server.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	// serverEntryName is the key under which the spirometry server is
	// registered in the client config.
	serverEntryName = "spirometry"

	// dataDirEnvVar is passed to the launched server binary.
	dataDirEnvVar = "PFT_DATA_DIR"

	binaryName = "pft-mcp"
)

// ClaudeDesktopConfig represents the Claude Desktop configuration file structure.
type ClaudeDesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for the setup process.
type Options struct {
	BinaryPath  string // Path to the server binary
	DataDir     string // Data directory for the server
	AutoConfirm bool   // Skip confirmation prompts
}

// ConfigPath returns the path to Claude Desktop's config file.
func ConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		// XDG config first, then fallback
		xdgConfig := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "Claude")
		} else {
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadConfig loads the existing client configuration. A missing file
// yields an empty configuration.
func LoadConfig(configPath string) (*ClaudeDesktopConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ClaudeDesktopConfig{
				MCPServers: make(map[string]MCPServerConfig),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ClaudeDesktopConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.MCPServers == nil {
		config.MCPServers = make(map[string]MCPServerConfig)
	}

	return &config, nil
}

// SaveConfig writes the configuration to the client config file.
func SaveConfig(configPath string, config *ClaudeDesktopConfig) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// backupConfig copies an existing config file aside before it is
// rewritten. Returns the backup path, or "" when no file existed.
func backupConfig(configPath string) (string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s.bak-%s", configPath, time.Now().UTC().Format("20060102150405"))
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	return backupPath, nil
}

// Configure adds or updates the spirometry server entry in the client
// config. The prior file is backed up first; the returned path is ""
// when there was nothing to back up.
func Configure(opts Options) (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		return "", err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		binaryPath, err = findBinary()
		if err != nil {
			return "", fmt.Errorf("could not find server binary: %w", err)
		}
	}

	serverConfig := MCPServerConfig{
		Command: binaryPath,
		Args:    []string{},
		Env:     make(map[string]string),
	}
	if opts.DataDir != "" {
		serverConfig.Env[dataDirEnvVar] = opts.DataDir
	}

	config.MCPServers[serverEntryName] = serverConfig

	backupPath, err := backupConfig(configPath)
	if err != nil {
		return "", err
	}

	if err := SaveConfig(configPath, config); err != nil {
		return backupPath, err
	}

	return backupPath, nil
}

// findBinary attempts to find the server binary in common locations.
func findBinary() (string, error) {
	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	locations := []string{
		"./" + binaryName,
		"./build/" + binaryName,
		filepath.Join(os.Getenv("HOME"), ".local", "bin", binaryName),
		"/usr/local/bin/" + binaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, err := filepath.Abs(loc)
			if err != nil {
				return loc, nil
			}
			return absPath, nil
		}
	}

	return "", fmt.Errorf("binary %q not found in common locations", binaryName)
}

// Status represents the current setup status.
type Status struct {
	ClientConfigured bool
	ClientConfigPath string
	ServerPath       string
	DataDir          string
	Issues           []string
}

// GetStatus checks the current setup status.
func GetStatus() (*Status, error) {
	status := &Status{
		Issues: []string{},
	}

	configPath, err := ConfigPath()
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Could not determine client config path: %v", err))
	} else {
		status.ClientConfigPath = configPath

		config, err := LoadConfig(configPath)
		if err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("Could not load client config: %v", err))
		} else if serverConfig, ok := config.MCPServers[serverEntryName]; ok {
			status.ClientConfigured = true
			status.ServerPath = serverConfig.Command

			if _, err := os.Stat(serverConfig.Command); os.IsNotExist(err) {
				status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found at: %s", serverConfig.Command))
			}

			if dataDir, ok := serverConfig.Env[dataDirEnvVar]; ok {
				status.DataDir = dataDir
			}
		}
	}

	if status.DataDir == "" {
		status.DataDir = DefaultDataDir()
	}
	if _, err := os.Stat(status.DataDir); os.IsNotExist(err) {
		status.Issues = append(status.Issues, fmt.Sprintf("Data directory does not exist: %s", status.DataDir))
	}

	return status, nil
}

// Validate checks if the current setup is valid and functional.
func Validate() (bool, []string) {
	var issues []string

	configPath, err := ConfigPath()
	if err != nil {
		issues = append(issues, fmt.Sprintf("Cannot find client config: %v", err))
		return false, issues
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		issues = append(issues, fmt.Sprintf("Cannot load client config: %v", err))
		return false, issues
	}

	serverConfig, ok := config.MCPServers[serverEntryName]
	if !ok {
		issues = append(issues, "Spirometry server not configured in client config")
		return false, issues
	}

	if info, err := os.Stat(serverConfig.Command); os.IsNotExist(err) {
		issues = append(issues, fmt.Sprintf("Server binary not found: %s", serverConfig.Command))
	} else if err == nil && info.Mode()&0111 == 0 {
		issues = append(issues, fmt.Sprintf("Server binary is not executable: %s", serverConfig.Command))
	}

	dataDir := serverConfig.Env[dataDirEnvVar]
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		// Created on first run, warn only
		issues = append(issues, fmt.Sprintf("Data directory will be created on first run: %s", dataDir))
	}

	return len(issues) == 0 || allWarnings(issues), issues
}

// allWarnings returns true if all issues are just warnings (not errors).
func allWarnings(issues []string) bool {
	for _, issue := range issues {
		if !strings.Contains(issue, "will be created") {
			return false
		}
	}
	return true
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pft-interp")
}

// EnsureDataDir creates the data directory and its export subdirectory.
func EnsureDataDir(dataDir string) error {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "exports"), 0755); err != nil {
		return fmt.Errorf("failed to create exports directory: %w", err)
	}

	return nil
}
