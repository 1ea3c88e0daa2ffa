package engines

import (
	"errors"
	"fmt"
	"strings"

	"github.com/UnamanoDAO/AI-IELTS/internal/subprocess"
)

// EngineType names a synthesis backend.
type EngineType string

const (
	// EngineNLS is the Aliyun NLS synchronous REST API.
	EngineNLS EngineType = "nls"

	// EngineNLSLong is the Aliyun NLS long-text async API.
	EngineNLSLong EngineType = "nls-long"

	// EngineDashScope is the DashScope websocket API.
	EngineDashScope EngineType = "dashscope"

	// EngineGoogle is gtts-cli.
	EngineGoogle EngineType = "gtts"

	// EngineMock produces silent audio without any network access.
	EngineMock EngineType = "mock"

	// EngineNone represents no engine selected
	EngineNone EngineType = ""
)

var (
	// ErrNoEngineConfigured is returned when neither the flag nor the config
	// names an engine.
	ErrNoEngineConfigured = errors.New("no TTS engine configured")

	// ErrInvalidEngine is returned for an unknown engine name.
	ErrInvalidEngine = errors.New("invalid TTS engine")
)

// ValidateEngineSelection resolves the engine from the CLI argument, then the
// configured value. There is no implicit default.
func ValidateEngineSelection(cliArg, configured string) (EngineType, error) {
	name := strings.ToLower(strings.TrimSpace(cliArg))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(configured))
	}
	if name == "" {
		return EngineNone, fmt.Errorf("%w\n\nPlease specify an engine:\n  readaloud generate --engine nls 3\n\nOr set a default in the config file:\n  engine: nls  # or nls-long, dashscope, gtts, mock", ErrNoEngineConfigured)
	}

	switch name {
	case "nls", "aliyun":
		return EngineNLS, nil
	case "nls-long", "long":
		return EngineNLSLong, nil
	case "dashscope", "cosyvoice":
		return EngineDashScope, nil
	case "gtts", "google":
		return EngineGoogle, nil
	case "mock":
		return EngineMock, nil
	default:
		return EngineNone, fmt.Errorf("%w: %s\n\nSupported engines:\n  - nls (Aliyun NLS, segments up to %d characters)\n  - nls-long (Aliyun NLS long text)\n  - dashscope (DashScope CosyVoice)\n  - gtts (Google TTS)\n  - mock (silent audio, no network)",
			ErrInvalidEngine, name, NLSMaxTextSize)
	}
}

// ValidationResult contains the result of engine validation
type ValidationResult struct {
	Engine    EngineType
	Available bool
	Error     error
	Guidance  string
	Details   map[string]string
}

// CheckEngine verifies that the credentials and binaries an engine needs are
// present. It does not contact the backend; use Validate on the engine for
// that.
func CheckEngine(engine EngineType, opts Options) *ValidationResult {
	result := &ValidationResult{
		Engine:  engine,
		Details: make(map[string]string),
	}

	switch engine {
	case EngineNLS, EngineNLSLong:
		result.Details["engine"] = "Aliyun NLS"
		switch {
		case opts.NLS.AppKey == "":
			result.Error = errors.New("NLS app key not configured")
		case opts.NLS.AccessKeyID == "" || opts.NLS.AccessKeySecret == "":
			result.Error = errors.New("Aliyun access key not configured")
		}
		if result.Error != nil {
			result.Guidance = nlsGuidance
			return result
		}
		result.Details["app_key"] = mask(opts.NLS.AppKey)

	case EngineDashScope:
		result.Details["engine"] = "DashScope"
		if opts.DashScope.APIKey == "" {
			result.Error = errors.New("DashScope API key not configured")
			result.Guidance = "Set DASHSCOPE_API_KEY in the environment or in .env"
			return result
		}
		result.Details["api_key"] = mask(opts.DashScope.APIKey)

	case EngineGoogle:
		result.Details["engine"] = "Google TTS (gTTS - Free)"
		binary := opts.GTTS.Binary
		if binary == "" {
			binary = "gtts-cli"
		}
		path, err := subprocess.Available(binary)
		if err != nil {
			result.Error = fmt.Errorf("gTTS not found in PATH: %w", err)
			result.Guidance = gttsGuidance
			return result
		}
		result.Details["gtts_path"] = path

	case EngineMock:
		result.Details["engine"] = "Mock (silent audio)"

	case EngineNone:
		result.Error = ErrNoEngineConfigured
		result.Guidance = "Please specify a TTS engine with --engine or in the config file"
		return result

	default:
		result.Error = fmt.Errorf("%w: %s", ErrInvalidEngine, engine)
		result.Guidance = "Supported engines: nls, nls-long, dashscope, gtts, mock"
		return result
	}

	result.Available = true
	return result
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

const nlsGuidance = `Aliyun NLS credentials are missing. Set them in the environment or in .env:

  ALIYUN_ACCESS_KEY_ID=...
  ALIYUN_ACCESS_KEY_SECRET=...
  ALIYUN_NLS_APP_KEY=...

The app key comes from the Intelligent Speech Interaction console.`

const gttsGuidance = `gTTS (Google Text-to-Speech) is not installed. To install:

1. Install via pip:
   pip install gtts

   # Or with pipx (recommended):
   pipx install gtts

2. Verify installation:
   gtts-cli --help

Note: gTTS requires an internet connection to function.`
