package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/saga-it/qyburn/internal/events"
	"github.com/saga-it/qyburn/internal/models"
)

type demoActivity struct {
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Target string `json:"target"`
}

var demoActivities = []demoActivity{
	{Actor: models.BotActor, Action: models.ActionKBQuery, Target: "VPN Setup"},
	{Actor: "erik.svensson@saga.com", Action: models.ActionLicenseAssign, Target: "JetBrains"},
	{Actor: models.BotActor, Action: models.ActionGroupApprove, Target: "SG-VPN-Users"},
}

// streamEvents serves the live event feed as server-sent events. Each
// connection owns its heartbeat and demo timers, stopped when the client goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	rc := http.NewResponseController(w)
	// the stream outlives the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	feed, stop := s.bus.Channel(ctx, s.stream.ClientBuffer)
	defer stop()

	send := func(frame string) bool {
		if _, err := io.WriteString(w, frame); err != nil {
			log.Debug().Err(err).Msg("Stream client went away")
			return false
		}
		if err := rc.Flush(); err != nil {
			log.Warn().Err(err).Msg("Stream flush failed")
			return false
		}
		return true
	}

	if !send("event: connected\ndata: {}\n\n") {
		return
	}
	log.Info().Msg("Stream client connected")
	defer log.Info().Msg("Stream client disconnected")

	heartbeat := time.NewTicker(s.stream.Heartbeat)
	defer heartbeat.Stop()

	var demo <-chan time.Time
	if s.stream.DemoActivity > 0 {
		ticker := time.NewTicker(s.stream.DemoActivity)
		defer ticker.Stop()
		demo = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			if !send(": heartbeat\n\n") {
				return
			}

		case <-demo:
			// demo activity goes to this connection only, never the shared bus
			frame, err := formatEvent(randomActivity())
			if err != nil {
				log.Warn().Err(err).Msg("Skipping unencodable demo activity")
				continue
			}
			if !send(frame) {
				return
			}

		case evt := <-feed:
			frame, err := formatEvent(evt)
			if err != nil {
				log.Warn().Err(err).Str("event_type", string(evt.Type)).Msg("Skipping unencodable event")
				continue
			}
			if !send(frame) {
				return
			}
		}
	}
}

func randomActivity() events.Event {
	activity := demoActivities[rand.IntN(len(demoActivities))]
	return events.Event{Type: events.TypeActivity, Data: map[string]any{
		"actor":     activity.Actor,
		"action":    activity.Action,
		"target":    activity.Target,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}}
}

// formatEvent renders evt as a single server-sent event frame.
func formatEvent(evt events.Event) (string, error) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", evt.Type, data), nil
}
