package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// Secrets are read from the environment only. Names follow the variables
// the deployment already sets.
type Secrets struct {
	AccessKeyID     string `env:"ALIYUN_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ALIYUN_ACCESS_KEY_SECRET"`
	AppKey          string `env:"ALIYUN_TTS_APP_KEY"`

	// OSS keys default to the Aliyun keys above.
	OSSAccessKeyID     string `env:"OSS_ACCESS_KEY_ID"`
	OSSAccessKeySecret string `env:"OSS_ACCESS_KEY_SECRET"`

	DashScopeAPIKey string `env:"DASHSCOPE_API_KEY"`

	DBHost     string `env:"DB_HOST"`
	DBPort     int    `env:"DB_PORT"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
}

// EnvFiles are loaded, if present, before the environment is read. Variables
// already set in the process environment win.
var EnvFiles = []string{".env"}

// LoadSecrets loads EnvFiles and parses the environment.
func LoadSecrets() (Secrets, error) {
	for _, f := range EnvFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Secrets{}, tts.NewError(tts.ErrorCodeInvalidConfiguration, "load "+f, err)
		}
		log.Debug("loaded environment file", "path", f)
	}

	s, err := env.ParseAs[Secrets]()
	if err != nil {
		return Secrets{}, tts.NewError(tts.ErrorCodeInvalidConfiguration, "parse environment", err)
	}
	if s.OSSAccessKeyID == "" {
		s.OSSAccessKeyID = s.AccessKeyID
	}
	if s.OSSAccessKeySecret == "" {
		s.OSSAccessKeySecret = s.AccessKeySecret
	}
	return s, nil
}

// applySecrets stores s and lets the DB_* variables override the database
// section.
func (c *Config) applySecrets(s Secrets) {
	c.Secrets = s
	if s.DBHost != "" {
		c.Database.Host = s.DBHost
	}
	if s.DBPort != 0 {
		c.Database.Port = s.DBPort
	}
	if s.DBUser != "" {
		c.Database.User = s.DBUser
	}
	if s.DBName != "" {
		c.Database.Name = s.DBName
	}
}
