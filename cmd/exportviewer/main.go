// Export viewer tails the transcript topics written by the caption client
// and prints each event, optionally limited to one room.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"caption-stream-client/internal/config"
	"caption-stream-client/internal/models"
	"caption-stream-client/internal/observability/logging"
)

// event holds the fields shared by partial and final exports.
type event struct {
	EventType string `json:"eventType"`
	RoomID    string `json:"roomId"`
	Provider  string `json:"provider"`
	SegmentID string `json:"segmentId"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func consume(ctx context.Context, brokers []string, topic, room string, since time.Duration, out chan<- event) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from the start")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming transcript topic")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read failed")
			time.Sleep(time.Second)
			continue
		}

		var ev event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping undecodable event")
			continue
		}
		if room != "" && ev.RoomID != room {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	room := flag.String("room", "", "Only show events of this room")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	partials := flag.Bool("partials", false, "Show partial events")
	envFile := flag.String("env", "", "Path to .env file (default .env)")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{EnvFile: *envFile})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Observability.LogLevel, Format: cfg.Observability.LogFormat})
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topics := []string{cfg.Kafka.TopicFinal}
	if *partials {
		topics = append(topics, cfg.Kafka.TopicPartial)
	}

	out := make(chan event, 100)
	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			consume(ctx, cfg.Kafka.Brokers, topic, *room, *since, out)
		}(topic)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	for ev := range out {
		ts := time.UnixMilli(ev.Timestamp).Format("15:04:05")
		switch ev.EventType {
		case models.EventTypeFinal:
			fmt.Printf("%s %s/%s [%s] %s\n", ts, ev.RoomID, ev.Provider, ev.Speaker, ev.Text)
		case models.EventTypePartial:
			fmt.Printf("%s %s/%s ... %s\n", ts, ev.RoomID, ev.Provider, truncate(ev.Text, 60))
		}
	}
}
