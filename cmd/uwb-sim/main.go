// uwb-sim publishes synthetic UWB telemetry to an MQTT broker so the
// ingestion pipeline and prediction endpoints can be exercised without
// hardware. Each simulated tag drives a smooth curved path through the yard
// and emits position, ranging and status messages on the real topic layout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

var (
	brokerURL   = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topicPrefix = flag.String("prefix", "yard", "Topic prefix")
	tagCount    = flag.Int("tags", 3, "Number of simulated tags")
	interval    = flag.Duration("interval", time.Second, "Time between fixes per tag")
	yardSize    = flag.Float64("yard", 50, "Yard side length in meters")
)

// anchor positions mirror a typical four-corner install
var anchors = []struct {
	Name string
	X, Y float64
}{
	{"A1", 0, 0},
	{"A2", 50, 0},
	{"A3", 50, 50},
	{"A4", 0, 50},
}

type tagSim struct {
	addr    string
	x, y    float64
	heading float64
	speed   float64
	rng     *rand.Rand
}

func newTagSim(n int, yard float64) *tagSim {
	rng := rand.New(rand.NewSource(int64(n) + 1))
	return &tagSim{
		addr:    fmt.Sprintf("%016x", rng.Uint64()),
		x:       rng.Float64() * yard,
		y:       rng.Float64() * yard,
		heading: rng.Float64() * 2 * math.Pi,
		speed:   1.5 + rng.Float64()*2, // m/s, walking a bike around
		rng:     rng,
	}
}

// step advances the tag along its heading with a small random drift,
// bouncing off the yard boundary. Returns true when the tag hit the edge.
func (t *tagSim) step(dt, yard float64) bool {
	t.heading += (t.rng.Float64() - 0.5) * 0.2
	t.x += math.Cos(t.heading) * t.speed * dt
	t.y += math.Sin(t.heading) * t.speed * dt

	bounced := false
	if t.x < 0 || t.x > yard {
		t.heading = math.Pi - t.heading
		t.x = math.Max(0, math.Min(yard, t.x))
		bounced = true
	}
	if t.y < 0 || t.y > yard {
		t.heading = -t.heading
		t.y = math.Max(0, math.Min(yard, t.y))
		bounced = true
	}
	return bounced
}

func (t *tagSim) publish(client mqtt.Client, prefix string) {
	now := float64(time.Now().UnixNano()) / 1e9

	position, _ := json.Marshal(map[string]float64{
		"x":  t.x,
		"y":  t.y,
		"ts": now,
	})
	client.Publish(fmt.Sprintf("%s/uwb/%s/position", prefix, t.addr), 0, false, position)

	ranges := make(map[string]interface{}, len(anchors))
	for _, a := range anchors {
		d := math.Hypot(t.x-a.X, t.y-a.Y)
		ranges[a.Name] = map[string]float64{
			"distance": d + (t.rng.Float64()-0.5)*0.1, // ~10cm ranging noise
			"rssi":     -55 - d/2,
		}
	}
	ranging, _ := json.Marshal(map[string]interface{}{
		"ranges": ranges,
		"ts":     now,
	})
	client.Publish(fmt.Sprintf("%s/uwb/%s/ranging", prefix, t.addr), 0, false, ranging)
}

func (t *tagSim) run(ctx context.Context, client mqtt.Client, prefix string, tick time.Duration, yard float64) {
	status, _ := json.Marshal(map[string]interface{}{"online": true})
	client.Publish(fmt.Sprintf("%s/status/%s", prefix, t.addr), 0, false, status)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bounced := t.step(tick.Seconds(), yard)
			t.publish(client, prefix)
			if bounced {
				// edge contact doubles as a geofence breach for the pipeline
				event, _ := json.Marshal(map[string]interface{}{
					"reason": "geofence_breach",
					"x":      t.x,
					"y":      t.y,
				})
				client.Publish(fmt.Sprintf("%s/event/%s", prefix, t.addr), 0, false, event)
			}
			if t.rng.Intn(10) == 0 {
				motion, _ := json.Marshal(map[string]interface{}{
					"moving": true,
					"speed":  t.speed,
				})
				client.Publish(fmt.Sprintf("%s/motion/%s", prefix, t.addr), 0, false, motion)
			}
		}
	}
}

func main() {
	flag.Parse()

	opts := mqtt.NewClientOptions().
		AddBroker(*brokerURL).
		SetClientID("uwb-sim-" + uuid.NewString()[:8]).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		log.Fatalf("failed to connect to broker %s: %v", *brokerURL, token.Error())
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("simulating %d tags on %s at %s intervals", *tagCount, *brokerURL, *interval)

	var wg sync.WaitGroup
	for i := 0; i < *tagCount; i++ {
		sim := newTagSim(i, *yardSize)
		log.Printf("tag %s starting at (%.1f, %.1f)", sim.addr, sim.x, sim.y)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sim.run(ctx, client, *topicPrefix, *interval, *yardSize)
		}()
	}
	wg.Wait()
}
