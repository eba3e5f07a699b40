package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
)

const Name = "vidodon"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host              string
		HttpPort          int    `yaml:"httpPort"`
		SslDomain         string `yaml:"sslDomain"`
		WithAp            bool   `yaml:"withAp"`
		FanoutConcurrency int    `yaml:"fanoutConcurrency"`
		RequestTimeoutSec int    `yaml:"requestTimeoutSec"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("VIDODON_HOST")
	envHttpPort := os.Getenv("VIDODON_HTTPPORT")
	envSslDomain := os.Getenv("VIDODON_SSLDOMAIN")
	envWithAp := os.Getenv("VIDODON_WITH_AP")
	envFanout := os.Getenv("VIDODON_FANOUT")
	envTimeout := os.Getenv("VIDODON_REQUEST_TIMEOUT")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envWithAp == "true" {
		c.Conf.WithAp = true
	}

	if envFanout != "" {
		v, err := strconv.Atoi(envFanout)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.FanoutConcurrency = v
	}

	if envTimeout != "" {
		v, err := strconv.Atoi(envTimeout)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.RequestTimeoutSec = v
	}

	if c.Conf.FanoutConcurrency <= 0 {
		c.Conf.FanoutConcurrency = 10
	}

	if c.Conf.RequestTimeoutSec <= 0 {
		c.Conf.RequestTimeoutSec = 10
	}

	return c, nil
}
