package cmd

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "career-assistant"
)

type Config struct {
	Provider   *ProviderConfig   `mapstructure:"provider"`
	Router     *RouterConfig     `mapstructure:"router"`
	Stores     *StoresConfig     `mapstructure:"stores"`
	Server     *ServerConfig     `mapstructure:"server"`
	HeadHunter *HeadHunterConfig `mapstructure:"headhunter"`
	Ingest     *IngestConfig     `mapstructure:"ingest"`
}

type ProviderConfig struct {
	Backend             string `mapstructure:"backend"`
	APIKey              string `mapstructure:"api-key"`
	APIKeyFile          string `mapstructure:"api-key-file"`
	Project             string `mapstructure:"project"`
	Location            string `mapstructure:"location"`
	Model               string `mapstructure:"model"`
	EmbeddingModel      string `mapstructure:"embedding-model"`
	EmbeddingDimensions int    `mapstructure:"embedding-dimensions"`
	MaxRetries          int    `mapstructure:"max-retries"`
	MaxLogLength        int    `mapstructure:"max-log-length"`
}

type RouterConfig struct {
	SearchLimit    int      `mapstructure:"search-limit"`
	HistoryWindow  int      `mapstructure:"history-window"`
	ThoughtPreview int      `mapstructure:"thought-preview"`
	Languages      []string `mapstructure:"languages"`
	DefaultIntent  string   `mapstructure:"default-intent"`
}

type StoresConfig struct {
	JobsDB      string `mapstructure:"jobs-db"`
	VectorsDB   string `mapstructure:"vectors-db"`
	MaxRows     int    `mapstructure:"max-rows"`
	SQLAttempts int    `mapstructure:"sql-attempts"`
}

type ServerConfig struct {
	Listen         string `mapstructure:"listen"`
	MaxUploadBytes int    `mapstructure:"max-upload-bytes"`
}

type HeadHunterConfig struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token-file"`
	APIURL    string `mapstructure:"api-url"`
}

type IngestConfig struct {
	ExcludeEmployers []string `mapstructure:"exclude-employers"`
	ExcludeFile      string   `mapstructure:"exclude-file"`
	MinimumFitScore  float64  `mapstructure:"minimum-fit-score"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "career-assistant answers job market questions and helps with CVs, cover letters and interviews",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is career-assistant.yaml in current directory or ~/.config/career-assistant)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.backend", "gemini")
	v.SetDefault("provider.model", "gemini-2.5-flash")
	v.SetDefault("provider.embedding-model", "text-embedding-004")
	v.SetDefault("provider.embedding-dimensions", 768)
	v.SetDefault("provider.max-retries", 2)
	v.SetDefault("provider.max-log-length", 200)

	v.SetDefault("router.search-limit", 3)
	v.SetDefault("router.history-window", 10)
	v.SetDefault("router.thought-preview", 200)
	v.SetDefault("router.languages", []string{"en", "id"})
	v.SetDefault("router.default-intent", "descriptive")

	v.SetDefault("stores.jobs-db", filepath.Join("data", "jobs.db"))
	v.SetDefault("stores.vectors-db", filepath.Join("data", "vectors.db"))
	v.SetDefault("stores.max-rows", 50)
	v.SetDefault("stores.sql-attempts", 3)

	v.SetDefault("ingest.minimum-fit-score", 60)
	v.SetDefault("ingest.exclude-file", "")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.max-upload-bytes", 10<<20)

	// Registered so that environment overrides reach Unmarshal.
	for _, key := range []string{"provider.api-key", "provider.api-key-file", "provider.project", "provider.location",
		"headhunter.token", "headhunter.token-file", "headhunter.api-url"} {
		v.SetDefault(key, "")
	}
}

func initConfig() {
	viper.SetEnvPrefix("CAREER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", app))
		}
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless given explicitly; defaults and
	// environment variables are enough to run.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.Provider == nil {
		config.Provider = &ProviderConfig{}
	}
	if config.Router == nil {
		config.Router = &RouterConfig{}
	}
	if config.Stores == nil {
		config.Stores = &StoresConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}
	if config.HeadHunter == nil {
		config.HeadHunter = &HeadHunterConfig{}
	}
	if config.Ingest == nil {
		config.Ingest = &IngestConfig{}
	}

	return config, nil
}
