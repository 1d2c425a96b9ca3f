// Package config loads the settings of repository connectors.
//
// Settings come from a YAML file, overridden by DEPOT_* environment variables:
//
//	logLevel: info
//	logFormat: console
//	concurrency: 5
//	checksumPolicy: warn
//	checksums: [sha1, md5]
//	bufferSize: 64KiB
//	repositories:
//	  central:
//	    url: https://repo.maven.apache.org/maven2
//	  releases:
//	    url: s3://my-bucket/releases
//
// Repository ids are case insensitive.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	units "github.com/docker/go-units"
	"github.com/oneconcern/depot/pkg/checksum"
	"github.com/oneconcern/depot/pkg/connector"
	"github.com/oneconcern/depot/pkg/dlogger"
	"github.com/oneconcern/depot/pkg/errors"
	"github.com/oneconcern/depot/pkg/model"
	"github.com/oneconcern/depot/pkg/transfer"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const (
	// EnvPrefix of the environment variables overriding the configuration
	EnvPrefix = "depot"

	// EnvConfig locates the configuration file when none is given explicitly
	EnvConfig = "DEPOT_CONFIG"

	configName = "depot"
)

var (
	// ErrInvalidConfig indicates a setting that cannot be used
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownRepository indicates a repository id missing from the configuration
	ErrUnknownRepository = errors.New("unknown repository")
)

// Config holds the settings of the connectors
type Config struct {
	LogLevel       string                `json:"logLevel" yaml:"logLevel" mapstructure:"logLevel"`
	LogFormat      string                `json:"logFormat" yaml:"logFormat" mapstructure:"logFormat"`
	Concurrency    int                   `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	ChecksumPolicy string                `json:"checksumPolicy" yaml:"checksumPolicy" mapstructure:"checksumPolicy"`
	Checksums      []string              `json:"checksums" yaml:"checksums" mapstructure:"checksums"`
	StagingDir     string                `json:"stagingDir,omitempty" yaml:"stagingDir,omitempty" mapstructure:"stagingDir"`
	BufferSize     string                `json:"bufferSize" yaml:"bufferSize" mapstructure:"bufferSize"`
	Repositories   map[string]Repository `json:"repositories,omitempty" yaml:"repositories,omitempty" mapstructure:"repositories"`
}

// Repository settings
type Repository struct {
	URL    string `json:"url" yaml:"url" mapstructure:"url"`
	Layout string `json:"layout,omitempty" yaml:"layout,omitempty" mapstructure:"layout"`
}

// Default configuration
func Default() *Config {
	return &Config{
		LogLevel:       dlogger.LogLevelInfo,
		LogFormat:      dlogger.FormatJSON,
		Concurrency:    connector.DefaultConcurrency,
		ChecksumPolicy: transfer.ChecksumWarn.String(),
		Checksums:      []string{checksum.SHA1.Extension, checksum.MD5.Extension},
		BufferSize:     units.BytesSize(float64(connector.DefaultBufferSize)),
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logFormat", d.LogFormat)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("checksumPolicy", d.ChecksumPolicy)
	v.SetDefault("checksums", d.Checksums)
	v.SetDefault("stagingDir", d.StagingDir)
	v.SetDefault("bufferSize", d.BufferSize)
}

// Load the configuration file at path.
//
// With an empty path, the file named by DEPOT_CONFIG is used, or else depot.yaml
// is looked up in the current directory, $HOME/.depot and /etc/depot. A missing
// file is not an error in that case: defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := true
	switch {
	case path != "":
		v.SetConfigFile(path)
	case os.Getenv(EnvConfig) != "":
		v.SetConfigFile(os.Getenv(EnvConfig))
	default:
		explicit = false
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.depot")
		v.AddConfigPath("/etc/depot")
		v.SetConfigName(configName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, ErrInvalidConfig.Wrap(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	// env values for lists come as a single string
	if len(cfg.Checksums) == 1 && strings.ContainsAny(cfg.Checksums[0], ", ") {
		cfg.Checksums = strings.FieldsFunc(cfg.Checksums[0], func(r rune) bool { return r == ',' || r == ' ' })
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate the settings
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return ErrInvalidConfig.Wrapf("negative concurrency %d", c.Concurrency)
	}
	if _, err := transfer.ParseChecksumPolicy(c.ChecksumPolicy); err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	if _, err := checksum.Parse(c.Checksums); err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	if _, err := c.bufferSize(); err != nil {
		return err
	}
	for id, repo := range c.Repositories {
		if repo.URL == "" {
			return ErrInvalidConfig.Wrapf("repository %q has no url", id)
		}
		if _, err := model.LayoutByName(repo.Layout); err != nil {
			return ErrInvalidConfig.Wrapf("repository %q: %v", id, err)
		}
	}
	return nil
}

func (c *Config) bufferSize() (int, error) {
	if c.BufferSize == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(c.BufferSize)
	if err != nil {
		return 0, ErrInvalidConfig.Wrapf("buffer size: %v", err)
	}
	if size < 0 {
		return 0, ErrInvalidConfig.Wrapf("negative buffer size %q", c.BufferSize)
	}
	return int(size), nil
}

// Session for connectors using these settings. A nil logger is built from the configured level.
func (c *Config) Session(logger *zap.Logger) (*connector.Session, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		var err error
		logger, err = dlogger.New(c.LogLevel, c.LogFormat)
		if err != nil {
			return nil, ErrInvalidConfig.Wrapf("logger: %v", err)
		}
	}
	policy, _ := transfer.ParseChecksumPolicy(c.ChecksumPolicy)
	bufferSize, _ := c.bufferSize()

	return &connector.Session{
		Logger:             logger,
		Concurrency:        c.Concurrency,
		ChecksumPolicy:     policy,
		ChecksumAlgorithms: append([]string(nil), c.Checksums...),
		StagingDir:         c.StagingDir,
		BufferSize:         bufferSize,
	}, nil
}

// Repository configured under id
func (c *Config) Repository(id string) (connector.RemoteRepository, error) {
	for key, repo := range c.Repositories {
		if strings.EqualFold(key, id) {
			return connector.RemoteRepository{ID: key, URL: repo.URL, Layout: repo.Layout}, nil
		}
	}
	return connector.RemoteRepository{}, ErrUnknownRepository.Wrapf("%q", id)
}

// RepositoryIDs lists the configured repositories, in order
func (c *Config) RepositoryIDs() []string {
	ids := make([]string, 0, len(c.Repositories))
	for id := range c.Repositories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Write the configuration as YAML to path
func (c *Config) Write(path string) error {
	o, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, o, 0o644)
}
