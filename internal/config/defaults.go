package config

const (
	defaultWorkDir             = "~/.local/share/clipreel/work"
	defaultOutputDir           = "~/Videos/clipreel"
	defaultLogDir              = "~/.local/share/clipreel/logs"
	defaultStateDir            = "~/.local/share/clipreel/state"
	defaultCatalogBaseURL      = "https://api.pexels.com"
	defaultCatalogPageSize     = 40
	defaultCatalogMaxPages     = 3
	defaultCatalogMinResults   = 10
	defaultCatalogTimeout      = 30
	defaultDownloadConcurrency = 3
	defaultDownloadAttempts    = 3
	defaultDownloadTimeout     = 300
	defaultFFmpegBinary        = "ffmpeg"
	defaultFFprobeBinary       = "ffprobe"
	defaultProbeTimeout        = 10
	defaultSoftwarePreset      = "veryfast"
	defaultSoftwareCRF         = 23
	defaultOutputWidth         = 1920
	defaultOutputHeight        = 1080
	defaultOutputFrameRate     = 30.0
	defaultOutputDuration      = 60
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultAPIBind             = "127.0.0.1:7488"
)

var defaultHardwareEncoders = []string{"h264_nvenc", "h264_qsv", "h264_amf", "h264_videotoolbox"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Catalog: Catalog{
			BaseURL:        defaultCatalogBaseURL,
			PageSize:       defaultCatalogPageSize,
			MaxPages:       defaultCatalogMaxPages,
			MinCandidates:  defaultCatalogMinResults,
			TimeoutSeconds: defaultCatalogTimeout,
		},
		Download: Download{
			Concurrency:    defaultDownloadConcurrency,
			MaxAttempts:    defaultDownloadAttempts,
			TimeoutSeconds: defaultDownloadTimeout,
		},
		Encoding: Encoding{
			FFmpegBinary:        defaultFFmpegBinary,
			FFprobeBinary:       defaultFFprobeBinary,
			HardwareEncoders:    append([]string(nil), defaultHardwareEncoders...),
			ProbeTimeoutSeconds: defaultProbeTimeout,
			SoftwarePreset:      defaultSoftwarePreset,
			SoftwareCRF:         defaultSoftwareCRF,
		},
		Output: Output{
			Width:           defaultOutputWidth,
			Height:          defaultOutputHeight,
			FrameRate:       defaultOutputFrameRate,
			DurationSeconds: defaultOutputDuration,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		API: API{
			Bind: defaultAPIBind,
		},
	}
}
