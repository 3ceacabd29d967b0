package app

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"bufferqueue/pkg/bufferqueue"
	"bufferqueue/pkg/fence"
	"bufferqueue/pkg/logger"
)

const defaultFrameRate = 30.0

// startProducerLoop runs the synthetic render loop: dequeue, fetch the
// handle, paint a test pattern, queue. The frame rate
// is enforced with a token-bucket limiter.
func (a *App) startProducerLoop(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	pc := a.eff.Config.Producer

	frameRate := pc.FrameRate
	if frameRate <= 0 {
		frameRate = defaultFrameRate
	}
	limiter := rate.NewLimiter(rate.Limit(frameRate), 1)

	statsEvery := pc.StatsEvery.Duration()
	if statsEvery <= 0 {
		statsEvery = 10 * time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(statsEvery)
		defer ticker.Stop()

		produced := 0
		for pc.Frames == 0 || produced < pc.Frames {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case <-ticker.C:
				a.logStats()
			default:
			}

			if err := a.produceFrame(pc.Async, pc.Width, pc.Height); err != nil {
				if errors.Is(err, bufferqueue.ErrNoInit) || ctx.Err() != nil {
					return
				}
				// Transient back-pressure: try again on the next tick.
				continue
			}
			produced++
		}
		logger.Info("producer_finished", "frames", produced)
	}()
	return done
}

// produceFrame runs one dequeue/request/fill/queue round trip.
func (a *App) produceFrame(async bool, w, h uint32) error {
	slot, outFence, flags, err := a.producer.DequeueBuffer(async, w, h, 0, 0)
	if err != nil {
		if !errors.Is(err, bufferqueue.ErrNoInit) {
			logger.Warn("dequeue_failed", "error", err)
		}
		return err
	}
	if !fence.IsNoFence(outFence) {
		_ = outFence.Wait(time.Second)
	}

	if flags&bufferqueue.ReleaseAllBuffers != 0 {
		logger.Debug("queue_released_all_buffers")
	}

	buffer, err := a.producer.RequestBuffer(slot)
	if err != nil {
		_ = a.producer.CancelBuffer(slot, fence.NoFence)
		return err
	}

	// Paint a moving test pattern so buffer contents are observable.
	px := buffer.Bytes()
	shade := byte(time.Now().UnixNano() >> 24)
	for i := range px {
		px[i] = shade
	}

	input := bufferqueue.QueueBufferInput{
		Timestamp:       time.Now().UnixNano(),
		IsAutoTimestamp: true,
		Crop:            buffer.Bounds(),
		ScalingMode:     bufferqueue.ScalingModeFreeze,
		Async:           async,
		Fence:           fence.NoFence,
	}
	out, err := a.producer.QueueBuffer(slot, input)
	if err != nil {
		_ = a.producer.CancelBuffer(slot, fence.NoFence)
		return err
	}
	logger.Debug("frame_queued", "slot", slot, "pending", out.NumPendingBuffers)
	return nil
}

// startConsumerLoop drains the mailbox: acquire, simulate work,
// release.
func (a *App) startConsumerLoop(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	hold := a.eff.Config.Consumer.HoldTime.Duration()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.frames:
			}

			// Drain everything pending; the mailbox coalesces signals.
			for {
				item, err := a.consumer.AcquireBuffer(0)
				if err != nil {
					if errors.Is(err, bufferqueue.ErrNoBufferAvailable) {
						break
					}
					if errors.Is(err, bufferqueue.ErrNoInit) {
						return
					}
					logger.Warn("acquire_failed", "error", err)
					break
				}

				if !fence.IsNoFence(item.Fence) {
					_ = item.Fence.Wait(time.Second)
				}
				if hold > 0 {
					time.Sleep(hold)
				}

				if err := a.consumer.ReleaseBuffer(item.Slot, item.FrameNumber, fence.NoFence); err != nil {
					logger.Warn("release_failed", "slot", item.Slot, "error", err)
				}
			}
		}
	}()
	return done
}

// logStats emits the periodic counters line.
func (a *App) logStats() {
	s := a.producer.Core().Stats()
	logger.Info("queue_stats",
		"queued", s.FramesQueued,
		"dropped", s.FramesDropped,
		"acquired", s.FramesAcquired,
		"released", s.FramesReleased,
		"pending", s.QueueLength,
		"alloc_bytes", humanize.Bytes(a.alloc.AllocBytes()),
	)
}
