package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/freight-matching/internal/models"
)

// The worker tails the booking-events topic and maintains the Redis
// rollups the dashboards read: per-owner earnings and global status
// counts.

var (
	eventsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_events_consumed_total",
		Help: "Total booking events consumed",
	})
	eventsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_events_invalid_total",
		Help: "Total invalid events received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_redis_updates_total",
		Help: "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(eventsConsumed, eventsInvalid, redisUpdates, redisErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	brokers := []string{}
	if brokersEnv != "" {
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "booking-events"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "freight-matching-worker"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rc := redis.NewClient(&redis.Options{Addr: redisAddr})
	radapter := &redisAdapter{c: rc}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			// readiness: check redis connectivity
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	log.Printf("worker listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down worker")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		eventsConsumed.Inc()

		var ev models.BookingEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.BookingID == "" {
			eventsInvalid.Inc()
			log.Printf("invalid event: %v", err)
			continue
		}

		if err := applyWithRetry(ctx, radapter, ev, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			log.Printf("redis update failed for booking=%s: %v", ev.BookingID, err)
			continue
		}
		redisUpdates.Inc()
	}
}

// RollupStore defines the small subset of redis operations we need for
// tests and production.
type RollupStore interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) HIncrBy(ctx context.Context, key, field string, incr int64) error {
	_, err := r.c.HIncrBy(ctx, key, field, incr).Result()
	return err
}

// applyWithRetry folds one event into the rollups with retry/backoff.
func applyWithRetry(ctx context.Context, rc RollupStore, ev models.BookingEvent, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = apply(ctx, rc, ev); lastErr == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return lastErr
}

func apply(ctx context.Context, rc RollupStore, ev models.BookingEvent) error {
	switch ev.Kind {
	case "booking_status":
		if err := rc.HIncrBy(ctx, "booking_status_counts", ev.To, 1); err != nil {
			return err
		}
	case "escrow_status":
		if err := rc.HIncrBy(ctx, "escrow_status_counts", ev.To, 1); err != nil {
			return err
		}
		if ev.To == string(models.EscrowReleased) && ev.OwnerID != "" {
			if err := rc.HIncrBy(ctx, "earnings:"+ev.OwnerID, "released_net", int64(ev.Amount)); err != nil {
				return err
			}
			if err := rc.HIncrBy(ctx, "earnings:"+ev.OwnerID, "trips_paid", 1); err != nil {
				return err
			}
		}
	}
	return nil
}
