package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/forPelevin/yt2text/internal/logging"
	"github.com/forPelevin/yt2text/internal/ports/adapters/whisperapi"
	"github.com/forPelevin/yt2text/internal/types"
)

// Keys double as flag names (with "_" → "-") and YT2TEXT_* env suffixes.
const (
	KeyOutDir       = "outdir"
	KeyLang         = "lang"
	KeyModel        = "model"
	KeySubs         = "subs"
	KeySRTWidth     = "srt_width"
	KeyTxtWrapPunct = "txt_wrap_punct"
	KeyTxtWidth     = "txt_width"
	KeyKeepAudio    = "keep_audio"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
	KeyTranscriber  = "transcriber"
	KeyNoHistory    = "no_history"

	KeyYtDlpPath      = "ytdlp_path"
	KeyFFmpegPath     = "ffmpeg_path"
	KeyFFprobePath    = "ffprobe_path"
	KeyWhisperBin     = "whisper_bin"
	KeyWhisperModels  = "whisper_models_dir"
	KeyWhisperThreads = "whisper_threads"

	KeyOpenAIAPIKey       = "openai_api_key"
	KeyOpenAIModel        = "openai_model"
	KeyOpenAIBaseURL      = "openai_base_url"
	KeyOpenAIAllowedHosts = "openai_allowed_hosts"
)

const (
	TranscriberWhisperCPP = "whispercpp"
	TranscriberOpenAI     = "openai"

	// LangAuto disables the transcription language hint.
	LangAuto = "none"
)

// Models is the accepted set of transcription model sizes.
var Models = []string{"tiny", "base", "small", "medium", "large-v3"}

type Config struct {
	OutDir       string `mapstructure:"outdir"`
	Lang         string `mapstructure:"lang"`
	Model        string `mapstructure:"model"`
	Subs         string `mapstructure:"subs"`
	SRTWidth     int    `mapstructure:"srt_width"`
	TxtWrapPunct bool   `mapstructure:"txt_wrap_punct"`
	TxtWidth     int    `mapstructure:"txt_width"`
	KeepAudio    bool   `mapstructure:"keep_audio"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	Transcriber  string `mapstructure:"transcriber"`
	NoHistory    bool   `mapstructure:"no_history"`

	YtDlpPath        string `mapstructure:"ytdlp_path"`
	FFmpegPath       string `mapstructure:"ffmpeg_path"`
	FFprobePath      string `mapstructure:"ffprobe_path"`
	WhisperBin       string `mapstructure:"whisper_bin"`
	WhisperModelsDir string `mapstructure:"whisper_models_dir"`
	WhisperThreads   int    `mapstructure:"whisper_threads"`

	OpenAIAPIKey       string   `mapstructure:"openai_api_key"`
	OpenAIModel        string   `mapstructure:"openai_model"`
	OpenAIBaseURL      string   `mapstructure:"openai_base_url"`
	OpenAIAllowedHosts []string `mapstructure:"openai_allowed_hosts"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyOutDir, filepath.Join("~", "Downloads", "YT2Text"))
	v.SetDefault(KeyLang, "zh")
	v.SetDefault(KeyModel, "small")
	v.SetDefault(KeySubs, "zh-Hant,zh-TW,zh,zh-Hans,en")
	v.SetDefault(KeySRTWidth, 28)
	v.SetDefault(KeyTxtWrapPunct, false)
	v.SetDefault(KeyTxtWidth, 0)
	v.SetDefault(KeyKeepAudio, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyTranscriber, TranscriberWhisperCPP)
	v.SetDefault(KeyNoHistory, false)

	v.SetDefault(KeyYtDlpPath, "yt-dlp")
	v.SetDefault(KeyFFmpegPath, "ffmpeg")
	v.SetDefault(KeyFFprobePath, "ffprobe")
	v.SetDefault(KeyWhisperBin, "whisper-cli")
	v.SetDefault(KeyWhisperModels, filepath.Join("~", ".cache", "whisper.cpp"))
	v.SetDefault(KeyWhisperThreads, 0)

	v.SetDefault(KeyOpenAIModel, "whisper-1")
	v.SetDefault(KeyOpenAIBaseURL, "https://api.openai.com")
	v.SetDefault(KeyOpenAIAllowedHosts, []string{})
}

// RegisterFlags declares the CLI flags that map onto config keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("outdir", "o", "", "Output directory (default ~/Downloads/YT2Text)")
	fs.String("lang", "", `Transcription language hint, "none" for auto-detect (default zh)`)
	fs.String("model", "", "Transcription model: "+strings.Join(Models, "|")+" (default small)")
	fs.String("subs", "", "Caption language priority, comma-separated (default zh-Hant,zh-TW,zh,zh-Hans,en)")
	fs.Int("srt-width", 28, "Subtitle line width, 0 disables wrapping")
	fs.Bool("txt-wrap-punct", false, "Put each sentence of the .txt on its own line")
	fs.Int("txt-width", 0, "Plain-text wrap width, 0 disables")
	fs.Bool("keep-audio", false, "Keep the transcoded audio next to the transcripts")
	fs.String("log-level", "", "Log level: debug|info|warn|error")
	fs.String("log-format", "", "Log format: console|json")
	fs.String("transcriber", "", "Transcription backend: whispercpp|openai")
	fs.Bool("no-history", false, "Do not record the run in the history database")
}

// BindFlags binds every registered flag to its key so that an explicitly set
// flag wins over env, file and defaults.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKey(key) {
			return
		}
		errs = append(errs, v.BindPFlag(key, f))
	})
	return errors.Join(errs...)
}

func isKey(key string) bool {
	switch key {
	case KeyOutDir, KeyLang, KeyModel, KeySubs, KeySRTWidth, KeyTxtWrapPunct, KeyTxtWidth,
		KeyKeepAudio, KeyLogLevel, KeyLogFormat, KeyTranscriber, KeyNoHistory:
		return true
	}
	return false
}

// Load layers the config file (explicit path, or yt2text.yaml in . or
// ~/.config/yt2text), YT2TEXT_* env vars and bound flags over the defaults.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("yt2text")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "yt2text"))
		}
	}

	v.SetEnvPrefix("YT2TEXT")
	v.AutomaticEnv()
	if err := v.BindEnv(KeyOpenAIAPIKey, "YT2TEXT_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return Config{}, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("%w: read config file: %v", types.ErrConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config: %v", types.ErrConfig, err)
	}
	cfg.OutDir = expandHome(cfg.OutDir)
	cfg.WhisperModelsDir = expandHome(cfg.WhisperModelsDir)
	return cfg, nil
}

// Validate reports every problem at once, wrapped in types.ErrConfig.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.OutDir) == "" {
		errs = append(errs, errors.New("outdir is empty"))
	}
	if !slices.Contains(Models, c.Model) {
		errs = append(errs, fmt.Errorf("model %q: must be one of %s", c.Model, strings.Join(Models, ", ")))
	}
	if c.SRTWidth < 0 {
		errs = append(errs, fmt.Errorf("srt-width must be >= 0, got %d", c.SRTWidth))
	}
	if c.TxtWidth < 0 {
		errs = append(errs, fmt.Errorf("txt-width must be >= 0, got %d", c.TxtWidth))
	}
	if !strings.EqualFold(c.Lang, LangAuto) {
		if _, err := language.Parse(c.Lang); err != nil {
			errs = append(errs, fmt.Errorf("lang %q: %v", c.Lang, err))
		}
	}
	subs := c.SubLangs()
	if len(subs) == 0 {
		errs = append(errs, errors.New("subs: at least one caption language is required"))
	}
	for _, s := range subs {
		if _, err := language.Parse(s); err != nil {
			errs = append(errs, fmt.Errorf("subs %q: %v", s, err))
		}
	}
	if !logging.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("log-level %q: must be debug, info, warn or error", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "" && f != "console" && f != "json" {
		errs = append(errs, fmt.Errorf("log-format %q: must be console or json", c.LogFormat))
	}
	switch c.Transcriber {
	case TranscriberWhisperCPP:
	case TranscriberOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			errs = append(errs, errors.New("openai transcriber requires OPENAI_API_KEY"))
		}
		if err := whisperapi.ValidateBaseURL(c.OpenAIBaseURL, c.OpenAIAllowedHosts); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("transcriber %q: must be %s or %s", c.Transcriber, TranscriberWhisperCPP, TranscriberOpenAI))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", types.ErrConfig, err)
	}
	return nil
}

// SubLangs splits the caption priority list, dropping blanks.
func (c Config) SubLangs() []string {
	var out []string
	for _, s := range strings.Split(c.Subs, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LangHint is the transcriber hint; "" means auto-detect.
func (c Config) LangHint() string {
	if strings.EqualFold(c.Lang, LangAuto) {
		return ""
	}
	return c.Lang
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
