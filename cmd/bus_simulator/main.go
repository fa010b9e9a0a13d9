// bus_simulator is a demo driver-role client that walks a bus along its route
// stops and reports locations over the same wire protocol real drivers use.
// Simulated movement lives here, outside the server, on purpose.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bus-tracker/internal/general/contracts"
	"bus-tracker/internal/general/logger"
	"bus-tracker/internal/tracker/client"
	"bus-tracker/internal/tracker/domain"
)

type stop struct {
	lat, lon float64
}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "tracker websocket endpoint")
	busID := flag.String("bus", "bus1", "vehicle identity to register as")
	token := flag.String("token", "", "optional JWT for servers with auth enabled")
	interval := flag.Duration("interval", 3*time.Second, "delay between location reports")
	route := flag.String("route", "15.3525,75.0820;15.3625,75.0920;15.3725,75.1020", "semicolon-separated lat,lon stops")
	flag.Parse()

	log := logger.New("bus-simulator")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stops, err := parseRoute(*route)
	if err != nil {
		log.Error(ctx, "route_parse_failed", "Invalid route flag", err, map[string]any{"route": *route})
		os.Exit(1)
	}

	ctrl := client.New(client.Config{URL: *url}, client.WSDialer{}, log)
	if err := ctrl.Register(domain.RoleDriver, *busID, *busID, *token); err != nil {
		log.Error(ctx, "register_failed", "Failed to stage registration", err, nil)
		os.Exit(1)
	}

	go drive(ctx, log, ctrl, *busID, stops, *interval)

	if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error(ctx, "simulator_stopped", "Connection lifecycle ended", err, nil)
		os.Exit(1)
	}
}

// drive interpolates between consecutive stops and reports each step.
func drive(ctx context.Context, log *logger.Logger, ctrl *client.Controller, busID string, stops []stop, interval time.Duration) {
	const stepsPerLeg = 20

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	leg, step := 0, 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if ctrl.State() != client.StateConnected {
			continue
		}

		from := stops[leg%len(stops)]
		to := stops[(leg+1)%len(stops)]
		frac := float64(step) / stepsPerLeg

		msg := contracts.LocationUpdate{
			Type: contracts.TypeLocationUpdate,
			Location: contracts.GeoPoint{
				Latitude:  from.lat + (to.lat-from.lat)*frac,
				Longitude: from.lon + (to.lon-from.lon)*frac,
			},
			SpeedKmh:  30 + rand.Float64()*20,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := ctrl.Send(msg); err != nil {
			log.Debug(ctx, "send_skipped", "Location report dropped while disconnected", nil)
			continue
		}

		step++
		if step > stepsPerLeg {
			step = 0
			leg++
			log.Info(ctx, "stop_reached", "Bus reached next stop", map[string]any{
				"bus_id": busID, "leg": leg % len(stops),
			})
		}
	}
}

func parseRoute(s string) ([]stop, error) {
	parts := strings.Split(s, ";")
	stops := make([]stop, 0, len(parts))
	for _, p := range parts {
		coords := strings.SplitN(strings.TrimSpace(p), ",", 2)
		if len(coords) != 2 {
			return nil, strconv.ErrSyntax
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			return nil, err
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop{lat: lat, lon: lon})
	}
	if len(stops) < 2 {
		return nil, strconv.ErrRange
	}
	return stops, nil
}
