package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		agent    = flag.String("agent", "", "agent profile from the server's agent catalog (optional)")
		from     = flag.String("from", "", "start x,y,z (default: random near origin)")
		to       = flag.String("to", "", "goal x,y,z (default: random near start)")
		maxSteps = flag.Int("max_steps", 0, "search budget (0 uses the server default)")
		count    = flag.Int("n", 1, "number of searches to run")
		every    = flag.Duration("poll", 50*time.Millisecond, "poll interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	start, err := parseVec(*from)
	if err != nil {
		logger.Fatalf("-from: %v", err)
	}
	goal, err := parseVec(*to)
	if err != nil {
		logger.Fatalf("-to: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var w protocol.WelcomeMsg
	if err := readTyped(conn, protocol.TypeWelcome, &w); err != nil {
		logger.Fatalf("WELCOME: %v", err)
	}
	logger.Printf("WELCOME session=%s seed=%d revision=%d heuristic=%s", w.SessionID, w.WorldParams.Seed, w.WorldParams.Revision, w.Pathfinding.Heuristic)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < *count; i++ {
		s, g := start, goal
		if s == nil {
			v := [3]int{r.Intn(33) - 16, w.WorldParams.Height / 3, r.Intn(33) - 16}
			s = &v
		}
		if g == nil {
			v := [3]int{s[0] + r.Intn(41) - 20, s[1], s[2] + r.Intn(41) - 20}
			g = &v
		}
		reqID := fmt.Sprintf("%s-%d", *name, i)
		if err := runSearch(conn, logger, stop, reqID, *s, *g, *agent, *maxSteps, *every); err != nil {
			logger.Printf("%s: %v", reqID, err)
			return
		}
	}
}

func runSearch(conn *websocket.Conn, logger *log.Logger, stop <-chan os.Signal, reqID string, start, goal [3]int, agent string, maxSteps int, every time.Duration) error {
	find := protocol.FindPathMsg{
		Type:            protocol.TypeFindPath,
		ProtocolVersion: protocol.Version,
		RequestID:       reqID,
		Start:           start,
		Goal:            goal,
		MaxSteps:        maxSteps,
		Agent:           agent,
	}
	if err := conn.WriteJSON(find); err != nil {
		return err
	}
	var acc protocol.PathAcceptedMsg
	if err := readTyped(conn, protocol.TypePathAccepted, &acc); err != nil {
		return err
	}
	began := time.Now()

	t := time.NewTicker(every)
	defer t.Stop()
	for n := 0; ; n++ {
		select {
		case <-stop:
			cancel := protocol.SearchRefMsg{Type: protocol.TypeCancelPath, ProtocolVersion: protocol.Version, RequestID: reqID, SearchID: acc.SearchID}
			if err := conn.WriteJSON(cancel); err != nil {
				return err
			}
			var st protocol.PathStatusMsg
			if err := readTyped(conn, protocol.TypePathStatus, &st); err != nil {
				return err
			}
			return fmt.Errorf("interrupted: %s %s", st.Status, st.Reason)
		case <-t.C:
		}

		poll := protocol.SearchRefMsg{Type: protocol.TypePollPath, ProtocolVersion: protocol.Version, RequestID: reqID, SearchID: acc.SearchID}
		if err := conn.WriteJSON(poll); err != nil {
			return err
		}
		var st protocol.PathStatusMsg
		if err := readTyped(conn, protocol.TypePathStatus, &st); err != nil {
			return err
		}
		if st.Status == protocol.StatusWorking {
			continue
		}
		logger.Printf("%s %v->%v %s %s steps=%d cost=%d waypoints=%d polls=%d in %s",
			acc.SearchID, start, goal, st.Status, st.Reason, st.Steps, st.Cost, len(st.Waypoints), n+1, time.Since(began).Round(time.Millisecond))
		return nil
	}
}

// readTyped reads the next message; an ERROR reply becomes a Go error.
func readTyped(conn *websocket.Conn, typ string, out any) error {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	if base.Type == protocol.TypeError {
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return err
		}
		return fmt.Errorf("%s: %s", e.Code, e.Message)
	}
	if base.Type != typ {
		return fmt.Errorf("expected %s, got %s", typ, base.Type)
	}
	return json.Unmarshal(msg, out)
}

func parseVec(s string) (*[3]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		v[i] = n
	}
	return &v, nil
}
