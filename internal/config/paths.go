package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// AppName names the config file, the env prefix and the per-user directories.
const AppName = "readaloud"

// SearchDirs lists the directories searched for readaloud.yml, most
// specific first.
func SearchDirs() ([]string, error) {
	dirs, err := gap.NewScope(gap.User, AppName).ConfigDirs()
	if err != nil {
		return nil, err
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// LogFile returns the path of the debug log.
func LogFile() (string, error) {
	dir, err := gap.NewScope(gap.User, AppName).DataPath("")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName+".log"), nil
}

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return homedir.Expand(os.ExpandEnv(p))
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Cache.Dir, &c.Mux.TempDir, &c.Mux.FFmpeg, &c.Job.OutputDir, &c.GTTS.Binary} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return tts.NewError(tts.ErrorCodeInvalidConfiguration, "expand "+*p, err)
		}
		*p = expanded
	}
	return nil
}
