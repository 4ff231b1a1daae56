// Command fusion-node runs the real-time VIO sensor-fusion core: it
// wires ingress buffers through the measurement pairer and fast
// predictor into the fusion worker, and the fusion worker into the loop
// coordinator and the global correction, then serves a health endpoint
// until SIGINT/SIGTERM. Structure grounded on the teacher's
// cmd/oriond/main.go (flag parsing, JSON slog handler, signal-driven
// graceful shutdown with a timeout context).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kaben/fusion-core/internal/audit"
	"github.com/kaben/fusion-core/internal/collab"
	"github.com/kaben/fusion-core/internal/config"
	"github.com/kaben/fusion-core/internal/correction"
	"github.com/kaben/fusion-core/internal/fusion"
	"github.com/kaben/fusion-core/internal/health"
	"github.com/kaben/fusion-core/internal/ingress"
	"github.com/kaben/fusion-core/internal/keyframedb"
	"github.com/kaben/fusion-core/internal/loopcoord"
	"github.com/kaben/fusion-core/internal/mailbox"
	"github.com/kaben/fusion-core/internal/predictor"
	"github.com/kaben/fusion-core/internal/publish"
	mqttpub "github.com/kaben/fusion-core/internal/publish/mqtt"
)

const defaultConfigPath = "config/fusion-node.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("starting fusion-node", "config", *configPath, "loop_closure", cfg.LoopClosure)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	buffers := ingress.NewBuffers(cfg.QueueCapacity, cfg.QueueCapacity)
	var imageQueue *ingress.ImageQueue
	if cfg.LoopClosure {
		imageQueue = ingress.NewImageQueue(cfg.QueueCapacity)
	}

	pred := predictor.New()
	corrHolder := correction.NewHolder()

	pub, pubCloser := buildPublisher(cfg)
	if pubCloser != nil {
		defer pubCloser()
	}

	// External collaborators are out of scope for this service (they
	// ship as a separate process or library); these deterministic fakes
	// let the wiring run end to end until real ones are substituted.
	estimator := collab.NewFakeEstimator(1)
	loopDetector := collab.FakeLoopDetector{}
	optimizer := collab.FakePoseGraphOptimizer{R: correction.Identity.R, T: correction.Identity.T}

	kfMailbox := mailbox.New[collab.Keyframe]()
	retrieveMailbox := mailbox.New[collab.RetrieveData]()
	poseGraphMailbox := mailbox.New[int]()
	kfDB := keyframedb.New()

	if cfg.Audit.Enabled {
		auditSink, err := audit.Open(ctx, cfg.Audit.Path, cfg.Audit.CommitEvery, cfg.Audit.QueueCap)
		if err != nil {
			slog.Error("failed to open audit sink", "error", err)
			os.Exit(1)
		}
		defer auditSink.Close()
		pred.Audit = auditSink
	}

	monitor := health.New(buffers,
		func() float64 { return pred.Snapshot().T },
		func() int {
			if imageQueue == nil {
				return 0
			}
			return imageQueue.Depth()
		},
		func() uint64 { return corrHolder.Load().Generation },
	)

	worker := fusion.New(fusion.Config{
		Buffers:            buffers,
		Predictor:          pred,
		Estimator:          estimator,
		Correction:         corrHolder,
		Publisher:          pub,
		LoopClosureEnabled: cfg.LoopClosure,
		ImageQueue:         imageQueue,
		KeyframeOut:        kfMailbox,
		RetrieveIn:         retrieveMailbox,
		PoseGraphQueueOut:  poseGraphMailbox,
		ClearLoop:          kfDB.ClearLoop,
		MarkLooped:         kfDB.MarkLooped,
		OnBatch:            monitor.ObserveBatch,
	})

	coordinator := loopcoord.New(loopcoord.Config{
		DB:             kfDB,
		Detector:       loopDetector,
		Optimizer:      optimizer,
		Correction:     corrHolder,
		Publisher:      pub,
		KeyframeIn:     kfMailbox,
		PoseGraphIn:    poseGraphMailbox,
		RetrieveOut:    retrieveMailbox,
		MinLoopInliers: cfg.MinLoopNum,
		MaxKeyframeNum: cfg.MaxKeyframeNum,
	})

	// Transport subscription is an external collaborator (spec.md §1):
	// whatever subscribes to cfg.IMUTopic/cfg.ImageTopic is expected to
	// decode the wire formats of spec.md §6 and call worker.IngestIMU /
	// worker.IngestFeatureFrame / imageQueue.Push on message arrival —
	// the same boundary buildPublisher crosses for outbound transport.

	healthServer := monitor.StartServer(cfg.Health.ListenAddr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	if cfg.LoopClosure {
		wg.Add(2)
		go func() {
			defer wg.Done()
			coordinator.RunDetector(ctx)
		}()
		go func() {
			defer wg.Done()
			coordinator.RunOptimizer(ctx)
		}()
	}

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case <-ctx.Done():
	}

	buffers.Close()
	kfMailbox.Close()
	poseGraphMailbox.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutS)*time.Second)
	defer shutdownCancel()
	_ = healthServer.Shutdown(shutdownCtx)

	wg.Wait()
	slog.Info("fusion-node stopped")
}

// buildPublisher wires the MQTT publisher when a broker is configured,
// otherwise falls back to the zero-config LogPublisher (spec.md §1:
// transport wiring stays an external collaborator; this is the only
// place that imports the mqtt package).
func buildPublisher(cfg *config.Config) (publish.Publisher, func()) {
	if cfg.MQTT.Broker == "" {
		return publish.LogPublisher{}, nil
	}

	topics := mqttpub.DefaultTopics(cfg.MQTT.TopicPrefix)
	p := mqttpub.New(cfg.MQTT.Broker, cfg.MQTT.ClientID, topics)
	if err := p.Connect(); err != nil {
		slog.Warn("mqtt connect failed, falling back to log publisher", "error", err)
		return publish.LogPublisher{}, nil
	}
	return p, func() { _ = p.Disconnect() }
}
