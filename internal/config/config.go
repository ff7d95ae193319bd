// Package config provides file-based configuration with environment overrides.
// The file is XML by default; a path ending in .yaml or .yml is read as YAML.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sortflow/backend/internal/cloud"
	"github.com/sortflow/backend/internal/workflow"
)

// Backend names.
const (
	StorageLocal   = "local"
	StorageS3      = "s3"
	FunctionLocal  = "local"
	FunctionLambda = "lambda"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"SortFlow" yaml:"-"`

	Server   ServerConfig   `xml:"Server" yaml:"server"`
	Storage  StorageConfig  `xml:"Storage" yaml:"storage"`
	Function FunctionConfig `xml:"Function" yaml:"function"`
	Workflow WorkflowConfig `xml:"Workflow" yaml:"workflow"`
	Sessions SessionsConfig `xml:"Sessions" yaml:"sessions"`
	Security SecurityConfig `xml:"Security" yaml:"security"`
	Advanced AdvancedConfig `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" yaml:"port"`
	BindAddress  string `xml:"BindAddress" yaml:"bindAddress"`
	PublicURL    string `xml:"PublicURL" yaml:"publicURL"`
	EnableCORS   bool   `xml:"EnableCORS" yaml:"enableCORS"`
	AllowOrigins string `xml:"AllowOrigins" yaml:"allowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" yaml:"readTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" yaml:"idleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit" yaml:"bodyLimit"`
}

// StorageConfig selects the object store and its location
type StorageConfig struct {
	Backend          string `xml:"Backend" yaml:"backend"`
	DataDirectory    string `xml:"DataDirectory" yaml:"dataDirectory"`
	ObjectsDirectory string `xml:"ObjectsDirectory" yaml:"objectsDirectory"`
	InputBucket      string `xml:"InputBucket" yaml:"inputBucket"`
	OutputBucket     string `xml:"OutputBucket" yaml:"outputBucket"`
	InputPrefix      string `xml:"InputPrefix" yaml:"inputPrefix"`
	Region           string `xml:"Region" yaml:"region"`
	Endpoint         string `xml:"Endpoint" yaml:"endpoint"`
	ForcePathStyle   bool   `xml:"ForcePathStyle" yaml:"forcePathStyle"`
	AccessKeyID      string `xml:"AccessKeyID" yaml:"accessKeyID"`
	SecretAccessKey  string `xml:"SecretAccessKey" yaml:"secretAccessKey"`
	MaxRetries       int    `xml:"MaxRetries" yaml:"maxRetries"`
}

// FunctionConfig selects the sorting function
type FunctionConfig struct {
	Backend string `xml:"Backend" yaml:"backend"`
	Name    string `xml:"Name" yaml:"name"`
}

// WorkflowConfig contains upload, polling and download timings
type WorkflowConfig struct {
	AllowedExtensions  string `xml:"AllowedExtensions" yaml:"allowedExtensions"`
	OutputKeyRule      string `xml:"OutputKeyRule" yaml:"outputKeyRule"`
	PollDelayMs        int    `xml:"PollDelayMs" yaml:"pollDelayMs"`
	PollIntervalMs     int    `xml:"PollIntervalMs" yaml:"pollIntervalMs"`
	PollMaxIntervalMs  int    `xml:"PollMaxIntervalMs" yaml:"pollMaxIntervalMs"`
	PollTimeoutSeconds int    `xml:"PollTimeoutSeconds" yaml:"pollTimeoutSeconds"`
	PollMaxAttempts    int    `xml:"PollMaxAttempts" yaml:"pollMaxAttempts"`
	HideDelayMs        int    `xml:"HideDelayMs" yaml:"hideDelayMs"`
	LinkTTLSeconds     int    `xml:"LinkTTLSeconds" yaml:"linkTTLSeconds"`
}

// SessionsConfig bounds browser sessions
type SessionsConfig struct {
	MaxSessions            int `xml:"MaxSessions" yaml:"maxSessions"`
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes" yaml:"sessionTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes" yaml:"cleanupIntervalMinutes"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	SigningSecret string `xml:"SigningSecret" yaml:"signingSecret"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel" yaml:"logLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging" yaml:"enableRequestLogging"`
	EnableCompression    bool   `xml:"EnableCompression" yaml:"enableCompression"`
	CompressionLevel     int    `xml:"CompressionLevel" yaml:"compressionLevel"`
	StreamIntervalMs     int    `xml:"StreamIntervalMs" yaml:"streamIntervalMs"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "100M",
		},
		Storage: StorageConfig{
			Backend:          StorageLocal,
			DataDirectory:    "./data",
			ObjectsDirectory: "./data/objects",
			InputBucket:      workflow.DefaultInputBucket,
			OutputBucket:     workflow.DefaultOutputBucket,
			InputPrefix:      workflow.DefaultInputPrefix,
			Region:           "us-east-2",
			MaxRetries:       3,
		},
		Function: FunctionConfig{
			Backend: FunctionLocal,
			Name:    workflow.DefaultFunctionName,
		},
		Workflow: WorkflowConfig{
			AllowedExtensions:  "txt,csv",
			OutputKeyRule:      workflow.RuleFunction,
			PollDelayMs:        int(workflow.DefaultPollDelay / time.Millisecond),
			PollIntervalMs:     int(workflow.DefaultPollInterval / time.Millisecond),
			PollMaxIntervalMs:  int(workflow.DefaultPollMaxInterval / time.Millisecond),
			PollTimeoutSeconds: int(workflow.DefaultPollTimeout / time.Second),
			PollMaxAttempts:    workflow.DefaultPollMaxAttempts,
			HideDelayMs:        int(workflow.DefaultHideDelay / time.Millisecond),
			LinkTTLSeconds:     int(workflow.DefaultLinkTTL / time.Second),
		},
		Sessions: SessionsConfig{
			MaxSessions:            100,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			EnableCompression:    true,
			CompressionLevel:     5,
			StreamIntervalMs:     100,
		},
	}
}

// isYAML reports whether configPath names a YAML file.
func isYAML(configPath string) bool {
	ext := strings.ToLower(filepath.Ext(configPath))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads configuration from file, creating it with defaults
// when missing.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if isYAML(configPath) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = xml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return config, nil
}

// Save saves the configuration in the format implied by configPath
func (c *AppConfig) Save(configPath string) error {
	var content []byte
	if isYAML(configPath) {
		output, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# SortFlow configuration\n# This file is auto-generated on first run\n\n"), output...)
	} else {
		output, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- SortFlow Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, output...)
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves the objects directory along with it
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.ObjectsDirectory = filepath.Join(dataDir, "objects")
	}

	if backend := os.Getenv("SORTFLOW_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = strings.ToLower(backend)
	}
	if backend := os.Getenv("SORTFLOW_FUNCTION_BACKEND"); backend != "" {
		c.Function.Backend = strings.ToLower(backend)
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		c.Storage.Region = region
	}
	if secret := os.Getenv("SORTFLOW_SIGNING_SECRET"); secret != "" {
		c.Security.SigningSecret = secret
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.ObjectsDirectory) {
		c.Storage.ObjectsDirectory = filepath.Join(configDir, c.Storage.ObjectsDirectory)
	}
}

// Validate rejects unknown backends and unusable workflow settings.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Storage.Backend {
	case StorageLocal, StorageS3:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Function.Backend {
	case FunctionLocal, FunctionLambda:
	default:
		return fmt.Errorf("unknown function backend %q", c.Function.Backend)
	}
	if c.Function.Backend == FunctionLocal && c.Storage.Backend != StorageLocal {
		return fmt.Errorf("the local function needs the local storage backend")
	}
	if c.Function.Backend == FunctionLambda && c.Storage.Backend != StorageS3 {
		return fmt.Errorf("the lambda function needs the s3 storage backend")
	}
	if c.Sessions.SessionTimeoutMinutes <= 0 || c.Sessions.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("session timeout and cleanup interval must be positive")
	}
	return c.WorkflowConfig().Validate()
}

// WorkflowConfig converts the file settings into controller settings.
func (c *AppConfig) WorkflowConfig() workflow.Config {
	cfg := workflow.DefaultConfig()
	cfg.AllowedExtensions = splitList(c.Workflow.AllowedExtensions)
	cfg.InputBucket = c.Storage.InputBucket
	cfg.OutputBucket = c.Storage.OutputBucket
	cfg.InputPrefix = c.Storage.InputPrefix
	cfg.FunctionName = c.Function.Name
	cfg.PollDelay = time.Duration(c.Workflow.PollDelayMs) * time.Millisecond
	cfg.PollInterval = time.Duration(c.Workflow.PollIntervalMs) * time.Millisecond
	cfg.PollMaxInterval = time.Duration(c.Workflow.PollMaxIntervalMs) * time.Millisecond
	cfg.PollTimeout = time.Duration(c.Workflow.PollTimeoutSeconds) * time.Second
	cfg.PollMaxAttempts = c.Workflow.PollMaxAttempts
	cfg.HideDelay = time.Duration(c.Workflow.HideDelayMs) * time.Millisecond
	cfg.LinkTTL = time.Duration(c.Workflow.LinkTTLSeconds) * time.Second
	cfg.OutputKeyRule = c.Workflow.OutputKeyRule
	return cfg
}

// CloudOptions returns the AWS settings for the S3 and Lambda clients.
func (c *AppConfig) CloudOptions() cloud.Options {
	return cloud.Options{
		Region:          c.Storage.Region,
		AccessKeyID:     c.Storage.AccessKeyID,
		SecretAccessKey: c.Storage.SecretAccessKey,
		MaxRetries:      c.Storage.MaxRetries,
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetPublicURL returns the base URL used in local download links
func (c *AppConfig) GetPublicURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDirectory}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.ObjectsDirectory)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
