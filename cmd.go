package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Actions read from the terminal but not yet handled by the playback loop
const inputBufferSize = 16

const defaultHistoryLimit = 20

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringP("socket", "s", "", "Path of the unix socket shared with the producer")
	lo.Must0(viper.BindPFlag(keySocketPath, flags.Lookup("socket")))

	flags.BoolP("log", "l", false, "Write logs to a file for debugging")
	lo.Must0(viper.BindPFlag(keyLogsWrite, flags.Lookup("log")))

	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	lo.Must0(viper.BindPFlag(keyLogsLevel, flags.Lookup("log-level")))

	rootFlags := rootCmd.Flags()

	rootFlags.Float64("fps", 0, "Nominal frame rate used to pace video")
	lo.Must0(viper.BindPFlag(keyPlayerFPS, rootFlags.Lookup("fps")))

	rootFlags.Bool("no-audio", false, "Play without sound")

	rootFlags.String("audio-decoder", "", "Audio decoder: \"libav\" or \"ffmpeg\"")
	lo.Must0(viper.BindPFlag(keyAudioDecoder, rootFlags.Lookup("audio-decoder")))
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("audio-decoder", fixedCompletion(decoderLibav, decoderFFmpeg)))

	rootFlags.String("audio-output", "", "Audio output: \"portaudio\" or \"beep\"")
	lo.Must0(viper.BindPFlag(keyAudioOutput, rootFlags.Lookup("audio-output")))
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("audio-output", fixedCompletion(outputPortAudio, outputBeep)))

	rootFlags.String("ch", "", "Character set: \"ascii\", \"ascii_no_space\" or \"block\"")
	lo.Must0(viper.BindPFlag(keyRenderCharset, rootFlags.Lookup("ch")))
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("ch", fixedCompletion("ascii", "ascii_no_space", "block")))

	rootFlags.Uint("ratio", 0, "Size of a character as height/width. Measured from the terminal if 0")
	lo.Must0(viper.BindPFlag(keyRenderRatio, rootFlags.Lookup("ratio")))

	rootFlags.UintP("width", "w", 0, "Maximum width of video in columns. Uses the terminal width if 0")
	lo.Must0(viper.BindPFlag(keyRenderWidth, rootFlags.Lookup("width")))

	rootFlags.Uint("height", 0, "Maximum height of video in rows. Uses the terminal height if 0")
	lo.Must0(viper.BindPFlag(keyRenderHeight, rootFlags.Lookup("height")))

	rootFlags.Bool("resize", false, "Continuously resize video to fit terminal size")
	lo.Must0(viper.BindPFlag(keyRenderResize, rootFlags.Lookup("resize")))

	rootFlags.Bool("history", false, "Record finished sessions")
	lo.Must0(viper.BindPFlag(keyHistoryEnabled, rootFlags.Lookup("history")))

	rootCmd.AddCommand(feedCmd, historyCmd, configCmd)

	feedCmd.Flags().IntP("batch", "b", 0, "Videos sent per fetch request")
	lo.Must0(viper.BindPFlag(keyFeedBatch, feedCmd.Flags().Lookup("batch")))

	historyCmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Number of entries to show")
}

func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Play short videos in the terminal as they are pushed over a unix socket",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Setup()
	},
	Run: func(cmd *cobra.Command, args []string) {
		if lo.Must(cmd.Flags().GetBool("no-audio")) {
			viper.Set(keyAudioEnabled, false)
		}
		handleErr(runPlayer())
	},
}

var feedCmd = &cobra.Command{
	Use:   "feed <directory|list-file>",
	Short: "Act as the producer: send videos to a running player when it asks for more",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(runFeed(args[0]))
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently played videos",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(printHistory(cmd, lo.Must(cmd.Flags().GetInt("limit"))))
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "List configuration keys, their values and environment variables",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		keys := lo.Keys(Default)
		slices.Sort(keys)
		for _, key := range keys {
			field := Default[key]
			fmt.Fprintf(out, "%s = %v\n", titleStyle.Render(key), viper.Get(key))
			fmt.Fprintf(out, "  %s\n  %s\n", faintStyle.Render(field.Description), faintStyle.Render("env: "+field.Env()))
		}
	},
}

// Execute runs the command line
func Execute() {
	if viper.GetBool(keyCliColored) {
		colorHelp(rootCmd)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func colorHelp(cmd *cobra.Command) {
	cc.Init(&cc.Config{
		RootCmd:       cmd,
		Headings:      cc.HiCyan + cc.Bold + cc.Underline,
		Commands:      cc.HiYellow + cc.Bold,
		Example:       cc.Italic,
		ExecName:      cc.Bold,
		Flags:         cc.Bold,
		FlagsDataType: cc.Italic + cc.HiBlue,
	})
}

func handleErr(err error) {
	if err != nil {
		logger.Error("main", "%v", err)
		logger.Close()
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}

func runPlayer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Close()

	pctx := newPlayerContext(context.Background())
	defer pctx.cancel(nil)

	queue := NewIngestionQueue()
	listener := NewSocketListener(cfg.Listener, queue)
	playlist := NewPlaylist(queue, listener, cfg.Playback.FetchWindow)
	listener.OnConnect = func() {
		playlist.RequestMore()
	}

	if err := listener.Start(pctx.ctx); err != nil {
		return err
	}
	defer listener.Stop()

	shutdownAudio, err := initAudioOutput(cfg.Audio)
	if err != nil {
		return err
	}
	defer shutdownAudio()

	var history HistoryRecorder
	if cfg.History.Enabled {
		store, err := OpenHistoryStore(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		history = store
	}

	renderer, err := newTerminalRenderer(os.Stdout, cfg.Render)
	if err != nil {
		return err
	}
	restore, err := enterRawMode()
	if err != nil {
		return err
	}
	defer restore()

	// not tracked by pctx, a blocked terminal read cannot be interrupted
	input := make(chan Action, inputBufferSize)
	go readActions(os.Stdin, input)

	player := NewPlayer(cfg.Playback, PlayerDeps{
		Queue:    queue,
		Playlist: playlist,
		Conn:     listener,
		Media:    newLibavMedia(cfg),
		Renderer: renderer,
		Input:    input,
		History:  history,
	})

	var runErr error
	pctx.Go(func() { catchSignals(pctx) })
	pctx.Go(func() {
		runErr = player.Run(pctx.ctx)
		if runErr != nil {
			pctx.cancel(runErr)
		} else {
			pctx.cancel(ErrUserQuit)
		}
	})

	cause := pctx.Wait()
	if runErr != nil {
		return runErr
	}
	if cause != nil && !errors.Is(cause, ErrUserQuit) {
		return cause
	}
	logger.Info("main", "Bye")
	return nil
}

func runFeed(source string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ids, err := loadFeedIDs(source)
	if err != nil {
		return tagErr("feed", err)
	}
	logger.Info("feed", "Loaded %d videos from %s", len(ids), source)

	pctx := newPlayerContext(context.Background())
	feeder := NewFeeder(cfg.Feed, ids)

	pctx.Go(func() { catchSignals(pctx) })
	pctx.Go(func() {
		if err := feeder.Run(pctx.ctx); err != nil {
			raiseErr("feed", err)
		}
	})

	cause := pctx.Wait()
	if cause != nil && !errors.Is(cause, ErrUserQuit) {
		return cause
	}
	fmt.Printf("Sent %d of %d videos, %d acknowledged\n", feeder.Sent(), len(ids), feeder.Acks())
	return nil
}

func printHistory(cmd *cobra.Command, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := OpenHistoryStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return tagErr("history", err)
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, faintStyle.Render("No videos played yet"))
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-9s %s  %s\n",
			e.StartedAt.Format("2006-01-02 15:04"),
			e.Outcome,
			formatClock(e.Watched),
			filepath.Base(e.VideoID))
	}
	return nil
}
