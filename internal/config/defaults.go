package config

const (
	defaultConfigPath          = "~/.config/subflow/config.toml"
	defaultCacheDir            = "~/.cache/subflow"
	defaultWorkDir             = "~/.local/share/subflow/work"
	defaultLogDir              = "~/.local/share/subflow/logs"
	defaultHistoryDB           = "~/.local/share/subflow/history.db"
	defaultTranscriptionCmd    = "subflow-whisper"
	defaultTranscriptionModel  = "base"
	defaultTranscriptionDevice = "auto"
	defaultComputeType         = "default"
	defaultTranslationCmd      = "argos-translate"
	defaultSourceLanguage      = "en"
	defaultTargetLanguage      = "ru"
	defaultSynthesisCmd        = "subflow-tts"
	defaultSpeaker             = "xenia"
	defaultSampleRate          = 48000
	defaultBackgroundVolume    = 0.15
	defaultVoiceVolume         = 1.0
	defaultFingerprint         = "weak"
	defaultServerBind          = "127.0.0.1:7491"
	defaultEventBuffer         = 1000
	defaultNtfyTimeout         = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:  defaultCacheDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
			HistoryDB: defaultHistoryDB,
		},
		Transcription: Transcription{
			Command:     defaultTranscriptionCmd,
			Model:       defaultTranscriptionModel,
			Device:      defaultTranscriptionDevice,
			ComputeType: defaultComputeType,
		},
		Translation: Translation{
			Enabled:        true,
			Command:        defaultTranslationCmd,
			SourceLanguage: defaultSourceLanguage,
			TargetLanguage: defaultTargetLanguage,
		},
		Synthesis: Synthesis{
			Command:    defaultSynthesisCmd,
			Speaker:    defaultSpeaker,
			SampleRate: defaultSampleRate,
		},
		Mix: Mix{
			BackgroundVolume: defaultBackgroundVolume,
			VoiceVolume:      defaultVoiceVolume,
		},
		Cache: Cache{
			Enabled:     true,
			Fingerprint: defaultFingerprint,
		},
		Server: Server{
			Bind:        defaultServerBind,
			EventBuffer: defaultEventBuffer,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
