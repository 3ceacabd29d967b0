package app

import (
	"context"
	"fmt"

	"bufferqueue/pkg/banner"
	"bufferqueue/pkg/bufferqueue"
	"bufferqueue/pkg/config"
	"bufferqueue/pkg/gfx"
	"bufferqueue/pkg/logger"
	"bufferqueue/pkg/telemetry"
)

// App wires a buffer queue, a synthetic producer, a demo consumer and
// the debug HTTP surface into one process.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	alloc    *gfx.PooledAllocator
	producer *bufferqueue.Producer
	consumer *bufferqueue.Consumer

	// frames is the consumer's mailbox: OnFrameAvailable posts here,
	// the consumer loop drains it.
	frames chan struct{}
}

// frameListener forwards queue callbacks into the app's mailbox.
type frameListener struct {
	frames chan struct{}
}

func (l *frameListener) OnFrameAvailable() {
	select {
	case l.frames <- struct{}{}:
	default:
	}
}

func (l *frameListener) OnBuffersReleased() {
	logger.Debug("buffers_released")
}

func (l *frameListener) OnSidebandStreamChanged() {}

// New builds the queue from the effective config and connects both
// endpoints. It does not start any loops; call Run.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		alloc:     gfx.NewPooledAllocator(),
		frames:    make(chan struct{}, 1),
	}

	qc := eff.Config.Queue
	if limit := qc.BufferSizeLimit.Int64(); limit > 0 {
		a.alloc.SetBufferSize(int(limit))
	}

	a.producer, a.consumer = bufferqueue.New(a.alloc)

	if err := a.consumer.ConsumerConnect(&frameListener{frames: a.frames}, true); err != nil {
		return nil, fmt.Errorf("consumer connect: %w", err)
	}
	name := qc.ConsumerName
	if name == "" {
		name = "bufferqueued"
	}
	if err := a.consumer.SetConsumerName(name); err != nil {
		return nil, err
	}
	if qc.DefaultWidth != 0 && qc.DefaultHeight != 0 {
		if err := a.consumer.SetDefaultBufferSize(qc.DefaultWidth, qc.DefaultHeight); err != nil {
			return nil, fmt.Errorf("default buffer size: %w", err)
		}
	}
	if err := a.consumer.SetDefaultBufferFormat(qc.Format()); err != nil {
		return nil, err
	}
	if qc.DefaultMaxBufferCount != 0 {
		if err := a.consumer.SetDefaultMaxBufferCount(qc.DefaultMaxBufferCount); err != nil {
			return nil, fmt.Errorf("default max buffer count: %w", err)
		}
	}
	if qc.MaxAcquiredBufferCount != 0 {
		if err := a.consumer.SetMaxAcquiredBufferCount(qc.MaxAcquiredBufferCount); err != nil {
			return nil, fmt.Errorf("max acquired buffer count: %w", err)
		}
	}

	if _, err := a.producer.Connect(bufferqueue.APICPU, true); err != nil {
		return nil, fmt.Errorf("producer connect: %w", err)
	}
	if a.eff.Config.Producer.Async {
		if err := a.producer.SetAsyncMode(true); err != nil {
			return nil, err
		}
	}

	telemetry.RegisterQueue(name, a.producer.Core())
	telemetry.RegisterAllocator(name, a.alloc)
	return a, nil
}

// Run starts the HTTP server and both queue loops, then blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	errCh := a.startHTTP(ctx)

	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	consumerDone := a.startConsumerLoop(loopCtx)
	producerDone := a.startProducerLoop(loopCtx)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("http_server_failed", "error", err)
		cancelLoops()
	}

	<-producerDone
	_ = a.producer.Disconnect(bufferqueue.APICPU)
	<-consumerDone
	_ = a.consumer.ConsumerDisconnect()
	logger.Info("shutdown_complete")
	return err
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}
