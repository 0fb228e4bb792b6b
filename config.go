package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const appName = "reelplayer"

// Config keys
const (
	keySocketPath         = "socket.path"
	keySocketPollInterval = "socket.poll_interval"

	keyPlayerFPS          = "player.fps"
	keyPlayerFetchWindow  = "player.fetch_window"
	keyPlayerInfoInterval = "player.info_interval"
	keyPlayerIdleInterval = "player.idle_interval"
	keyPlayerMaxSyncSleep = "player.max_sync_sleep"

	keyAudioEnabled    = "audio.enabled"
	keyAudioDecoder    = "audio.decoder"
	keyAudioOutput     = "audio.output"
	keyAudioSampleRate = "audio.sample_rate"
	keyAudioPrebuffer  = "audio.prebuffer"

	keyRenderCharset = "render.charset"
	keyRenderRatio   = "render.ratio"
	keyRenderWidth   = "render.width"
	keyRenderHeight  = "render.height"
	keyRenderResize  = "render.resize"

	keyLogsWrite = "logs.write"
	keyLogsLevel = "logs.level"
	keyLogsJSON  = "logs.json"
	keyLogsPath  = "logs.path"

	keyHistoryEnabled = "history.enabled"
	keyHistoryPath    = "history.path"

	keyProbeEnabled = "probe.enabled"

	keyFeedBatch = "feed.batch"
	keyFeedDelay = "feed.delay"

	keyCliColored = "cli.colored"
)

const (
	decoderLibav    = "libav"
	decoderFFmpeg   = "ffmpeg"
	outputPortAudio = "portaudio"
	outputBeep      = "beep"
)

// Field is a configuration entry with its default value
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env returns the environment variable that overrides the field
func (f Field) Env() string {
	return strings.ToUpper(appName + "_" + envKeyReplacer.Replace(f.Key))
}

// Default holds every known configuration field
var Default = make(map[string]Field)

func declare(key string, value any, description string) {
	Default[key] = Field{Key: key, Value: value, Description: description}
}

func init() {
	declare(keySocketPath, "/tmp/uds_socket", "Path of the unix socket the producer connects to")
	declare(keySocketPollInterval, 500*time.Millisecond, "Upper bound on how long accept and read block before checking for shutdown")

	declare(keyPlayerFPS, 30, "Nominal frame rate used to pace video")
	declare(keyPlayerFetchWindow, 2, "Request more videos when the cursor is this close to the end of the queue")
	declare(keyPlayerInfoInterval, 10, "Refresh the info overlay every N frames")
	declare(keyPlayerIdleInterval, 100*time.Millisecond, "How often to re-check the queue while waiting for videos")
	declare(keyPlayerMaxSyncSleep, 100*time.Millisecond, "Longest sleep the sync controller may insert")

	declare(keyAudioEnabled, true, "Play audio")
	declare(keyAudioDecoder, decoderLibav, "Audio decoder, libav or ffmpeg")
	declare(keyAudioOutput, outputPortAudio, "Audio output, portaudio or beep")
	declare(keyAudioSampleRate, 22050, "Output sample rate in Hz")
	declare(keyAudioPrebuffer, 10, "Chunks written to the device before the audio clock starts")

	declare(keyRenderCharset, "ascii", "Character set, ascii, ascii_no_space or block")
	declare(keyRenderRatio, 0, "Size of a character as height/width, 0 measures the terminal")
	declare(keyRenderWidth, 0, "Maximum width in columns, 0 uses the terminal width")
	declare(keyRenderHeight, 0, "Maximum height in rows, 0 uses the terminal height")
	declare(keyRenderResize, false, "Follow terminal resizes")

	declare(keyLogsWrite, false, "Write logs to a file")
	declare(keyLogsLevel, "info", "Log level")
	declare(keyLogsJSON, false, "Write logs as JSON")
	declare(keyLogsPath, os.TempDir(), "Directory for log files")

	declare(keyHistoryEnabled, false, "Record finished sessions")
	declare(keyHistoryPath, appName+".db", "Path of the history database")

	declare(keyProbeEnabled, true, "Probe videos with ffprobe for the info overlay")

	declare(keyFeedBatch, 5, "Videos sent per fetch request by the feed command")
	declare(keyFeedDelay, 100*time.Millisecond, "Delay between videos sent by the feed command")

	declare(keyCliColored, true, "Colored help output")
}

var envKeyReplacer = strings.NewReplacer(".", "_")

// setupConfig loads defaults, environment and the optional config file
func setupConfig() error {
	viper.SetConfigName(appName)
	viper.SetConfigType("toml")
	viper.SetFs(filesystem().Fs)
	viper.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(dir, appName))
	}

	viper.SetEnvPrefix(appName)
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	viper.SetTypeByDefaultValue(true)
	for name, field := range Default {
		viper.SetDefault(name, field.Value)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return tagErr("config", err)
	}
	return nil
}

type ListenerConfig struct {
	Path         string
	PollInterval time.Duration
}

type PlaybackConfig struct {
	FPS          float64
	FetchWindow  int
	InfoInterval int
	IdleInterval time.Duration
	MaxSyncSleep time.Duration
}

type AudioConfig struct {
	Enabled    bool
	Decoder    string
	Output     string
	SampleRate int
	Prebuffer  int
}

func (c AudioConfig) Format() AudioFormat {
	return AudioFormat{SampleRate: c.SampleRate, Channels: 1}
}

type RenderConfig struct {
	Charset string
	Ratio   uint
	Width   uint
	Height  uint
	Resize  bool
}

type HistoryConfig struct {
	Enabled bool
	Path    string
}

type FeedConfig struct {
	Socket string
	Batch  int
	Delay  time.Duration
}

type Config struct {
	Listener ListenerConfig
	Playback PlaybackConfig
	Audio    AudioConfig
	Render   RenderConfig
	History  HistoryConfig
	Feed     FeedConfig
	Probe    bool
}

// loadConfig reads every section and rejects values playback cannot work with
func loadConfig() (Config, error) {
	cfg := Config{
		Listener: ListenerConfig{
			Path:         viper.GetString(keySocketPath),
			PollInterval: viper.GetDuration(keySocketPollInterval),
		},
		Playback: PlaybackConfig{
			FPS:          viper.GetFloat64(keyPlayerFPS),
			FetchWindow:  viper.GetInt(keyPlayerFetchWindow),
			InfoInterval: viper.GetInt(keyPlayerInfoInterval),
			IdleInterval: viper.GetDuration(keyPlayerIdleInterval),
			MaxSyncSleep: viper.GetDuration(keyPlayerMaxSyncSleep),
		},
		Audio: AudioConfig{
			Enabled:    viper.GetBool(keyAudioEnabled),
			Decoder:    viper.GetString(keyAudioDecoder),
			Output:     viper.GetString(keyAudioOutput),
			SampleRate: viper.GetInt(keyAudioSampleRate),
			Prebuffer:  viper.GetInt(keyAudioPrebuffer),
		},
		Render: RenderConfig{
			Charset: viper.GetString(keyRenderCharset),
			Ratio:   viper.GetUint(keyRenderRatio),
			Width:   viper.GetUint(keyRenderWidth),
			Height:  viper.GetUint(keyRenderHeight),
			Resize:  viper.GetBool(keyRenderResize),
		},
		History: HistoryConfig{
			Enabled: viper.GetBool(keyHistoryEnabled),
			Path:    viper.GetString(keyHistoryPath),
		},
		Feed: FeedConfig{
			Socket: viper.GetString(keySocketPath),
			Batch:  viper.GetInt(keyFeedBatch),
			Delay:  viper.GetDuration(keyFeedDelay),
		},
		Probe: viper.GetBool(keyProbeEnabled),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, tagErr("config", err)
	}
	return cfg, nil
}

type configRule struct {
	ok    bool
	key   string
	value any
	want  string
}

func (c Config) validate() error {
	rules := []configRule{
		{c.Listener.PollInterval > 0, keySocketPollInterval, c.Listener.PollInterval, "positive"},
		{c.Playback.FPS > 0, keyPlayerFPS, c.Playback.FPS, "positive"},
		{c.Playback.FetchWindow >= 0, keyPlayerFetchWindow, c.Playback.FetchWindow, "zero or more"},
		{c.Playback.InfoInterval > 0, keyPlayerInfoInterval, c.Playback.InfoInterval, "positive"},
		{c.Playback.IdleInterval > 0, keyPlayerIdleInterval, c.Playback.IdleInterval, "positive"},
		{c.Playback.MaxSyncSleep >= 0, keyPlayerMaxSyncSleep, c.Playback.MaxSyncSleep, "zero or more"},
		{lo.Contains([]string{decoderLibav, decoderFFmpeg}, c.Audio.Decoder), keyAudioDecoder, c.Audio.Decoder, decoderLibav + " or " + decoderFFmpeg},
		{lo.Contains([]string{outputPortAudio, outputBeep}, c.Audio.Output), keyAudioOutput, c.Audio.Output, outputPortAudio + " or " + outputBeep},
		{c.Audio.SampleRate > 0, keyAudioSampleRate, c.Audio.SampleRate, "positive"},
		{c.Audio.Prebuffer >= 0, keyAudioPrebuffer, c.Audio.Prebuffer, "zero or more"},
		{c.Feed.Batch > 0, keyFeedBatch, c.Feed.Batch, "positive"},
		{c.Feed.Delay >= 0, keyFeedDelay, c.Feed.Delay, "zero or more"},
	}

	var errs []error
	for _, r := range rules {
		if !r.ok {
			errs = append(errs, fmt.Errorf("%s is %v, must be %s", r.key, r.value, r.want))
		}
	}
	return errors.Join(errs...)
}
