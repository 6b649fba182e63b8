// Command eventpump runs producers and a dispatcher against one event queue
// and prints the queue statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aradilov/eventqueue"
)

const (
	typeTick    = 1
	typeReading = 2
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	producers := flag.Int("producers", 4, "number of producer goroutines")
	events := flag.Int("events", 10000, "events offered by each producer")
	flag.Parse()

	if err := run(*configPath, *producers, *events); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, producers, events int) error {
	cfg := eventqueue.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = eventqueue.LoadConfig(configPath); err != nil {
			return err
		}
	}
	logger := cfg.Logger(os.Stderr)

	q, err := eventqueue.New(cfg,
		eventqueue.WithLogger(logger),
		eventqueue.WithMetrics(eventqueue.NewMetricsRecorder()),
	)
	if err != nil {
		return err
	}

	var ticks, readings atomic.Int64
	d := eventqueue.NewDispatcher(q)
	if err := d.Register(typeTick, eventqueue.HandlerFuncs{
		Event: func(_ context.Context, _ uint8, _ uint32) error {
			ticks.Add(1)
			return nil
		},
	}); err != nil {
		return err
	}
	if err := d.Register(typeReading, eventqueue.HandlerFuncs{
		Extended: func(_ context.Context, _ uint8, r *eventqueue.Reader) error {
			if _, err := r.ReadUint16(); err != nil {
				return err
			}
			if _, err := r.ReadFloat64(); err != nil {
				return err
			}
			readings.Add(1)
			return nil
		},
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	start := time.Now()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(sensor uint16) {
			defer wg.Done()
			w := eventqueue.NewPayloadWriter(16)
			for i := 0; i < events; i++ {
				var err error
				if i%2 == 0 {
					err = q.OfferEvent(typeTick, uint32(i)&eventqueue.MaxData)
				} else {
					w.Reset()
					w.WriteUint16(sensor)
					w.WriteFloat64(float64(i) / 10)
					err = q.OfferExtendedEvent(typeReading, w.Bytes(), w.Len())
				}
				// keep retrying on overflow (bounded queue)
				for errors.Is(err, eventqueue.ErrQueueFull) {
					runtime.Gosched()
					if i%2 == 0 {
						err = q.OfferEvent(typeTick, uint32(i)&eventqueue.MaxData)
					} else {
						err = q.OfferExtendedEvent(typeReading, w.Bytes(), w.Len())
					}
				}
			}
		}(uint16(p))
	}
	wg.Wait()

	want := int64(producers * events)
	for ticks.Load()+readings.Load() < want {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	stats := q.Stats()
	logger.Info("event pump finished",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int64("ticks", ticks.Load()),
		slog.Int64("readings", readings.Load()),
		slog.Uint64("rejected_full", stats.RejectedFull),
		slog.Uint64("parks", stats.Parks),
		slog.Uint64("wakes", stats.Wakes),
		slog.Uint64("underruns", stats.Underruns),
	)
	return nil
}
