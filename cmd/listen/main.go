package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/audio"
	"github.com/eleven-am/voice-interpreter/internal/bootstrap"
	"github.com/eleven-am/voice-interpreter/internal/capture"
	"github.com/eleven-am/voice-interpreter/internal/voicesession"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "listen",
	Short: "Translate a live PCM16 stream read from stdin",
	Long: `Reads raw little-endian PCM16 mono audio from stdin (or --input), cuts it
into segments, translates each one in order and keeps a rolling summary.

	ffmpeg -f avfoundation -i ":0" -f s16le -ac 1 -ar 16000 - | listen --target en`,
	SilenceUsage: true,
	RunE:         runListen,
}

func init() {
	rootCmd.Flags().StringP("target", "t", "", "Target language code or name (defaults to TARGET_LANGUAGE)")
	rootCmd.Flags().StringP("input", "i", "", "Read audio from this file instead of stdin")
	rootCmd.Flags().Int("rate", 16000, "Input sample rate in Hz")
	rootCmd.Flags().Duration("segment", 0, "Segment length (defaults to SEGMENT_DURATION)")
	rootCmd.Flags().Duration("drain-timeout", 2*time.Minute, "How long to wait for queued segments on exit")
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if target, _ := cmd.Flags().GetString("target"); target != "" {
		cfg.TargetLanguage = target
	}
	if segment, _ := cmd.Flags().GetDuration("segment"); segment > 0 {
		cfg.SegmentDuration = segment
	}
	rate, _ := cmd.Flags().GetInt("rate")
	drain, _ := cmd.Flags().GetDuration("drain-timeout")

	logger := bootstrap.ProvideLogger(cfg)

	var src io.Reader = os.Stdin
	if path, _ := cmd.Flags().GetString("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		src = f
	}

	openai := bootstrap.ProvideOpenAIConfig(cfg)
	translator := bootstrap.ProvideTranslator(cfg, openai, logger)
	deps := voicesession.Dependencies{
		Recognizer: bootstrap.ProvideRecognizer(cfg, openai, logger),
		Translator: translator,
		Summarizer: translator,
		Publisher:  newLogPublisher(logger),
	}

	listenCfg := bootstrap.ProvideListenConfig(cfg, bootstrap.ProvidePipelineConfig(cfg))
	listenCfg.InputFormat = audio.Format{SampleRate: rate, Channels: 1}
	listenCfg.Segment = capture.SegmentConfig{Duration: cfg.SegmentDuration}
	listenCfg.DrainTimeout = drain

	session := voicesession.NewListenSession(listenCfg, deps, logger)
	session.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	copyErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(session, src)
		copyErr <- err
	}()

	select {
	case <-ctx.Done():
		logger.Info("interrupted, finishing queued segments")
	case err := <-copyErr:
		if err != nil && !errors.Is(err, io.EOF) {
			logger.Error("audio input failed", "error", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), drain+time.Minute)
	defer cancel()
	session.Stop(stopCtx)

	snap := session.Snapshot()
	logger.Info("session finished",
		"segments", len(snap.Segments),
		"summary", snap.Summary,
	)
	if snap.Error != "" {
		return errors.New(snap.Error)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
