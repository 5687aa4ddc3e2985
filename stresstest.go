package drawrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// StressTestArgs gives the parameters for performing a stress test against another server.
type StressTestArgs struct {
	// The address of the other server, eg wss://otherserver.com/
	Address string

	// The number of clients which are drawing
	NumDrawers int

	// The number of clients which are merely watching
	NumWatchers int

	// The average number of milliseconds a drawer waits before each event.
	// Default: 1000
	DelayMS int

	// Clients connect at a random time within this many milliseconds.
	ConnectSpreadMS int

	// The event drawers emit: Draw (default) or StartDrawing.
	Event string

	// Show all steps
	Verbose bool
}

// StressTestStats summarizes a stress test run.
type StressTestStats struct {
	Connections int
	Received    int64

	// Screen-to-screen time over the most recent events
	Avg, Min, Max time.Duration
}

const maxPingTimes = 10000

type stressTestArgs struct {
	StressTestArgs

	mutex sync.Mutex
	// wrap-around buffer of ping times for avg / min / max calculations
	pingTimes     []int64
	nextPingIndex int
	lastShowTime  time.Time
	numConnected  int
	received      int64
}

// stressPoint is the payload drawers send. Receivers only read SentMS.
type stressPoint struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Color  string `json:"color"`
	SentMS int64  `json:"sentMS"`
}

func (args *stressTestArgs) recordPingTime(value int64) {
	args.mutex.Lock()
	defer args.mutex.Unlock()
	args.received++
	if len(args.pingTimes) < maxPingTimes {
		args.pingTimes = append(args.pingTimes, value)
	} else {
		args.pingTimes[args.nextPingIndex] = value

		args.nextPingIndex++
		if args.nextPingIndex == maxPingTimes {
			args.nextPingIndex = 0
		}
	}

	args.showStats()
}

func (args *stressTestArgs) recordConnection() {
	args.mutex.Lock()
	defer args.mutex.Unlock()
	args.numConnected++
	args.showStats()
}

// requires locked mutex
func (args *stressTestArgs) stats() StressTestStats {
	stats := StressTestStats{
		Connections: args.numConnected,
		Received:    args.received,
	}

	if len(args.pingTimes) > 0 {
		sum := args.pingTimes[0]
		min := args.pingTimes[0]
		max := args.pingTimes[0]

		for i := 1; i < len(args.pingTimes); i++ {
			v := args.pingTimes[i]
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		stats.Avg = time.Duration(float64(sum)/float64(len(args.pingTimes))) * time.Millisecond
		stats.Min = time.Duration(min) * time.Millisecond
		stats.Max = time.Duration(max) * time.Millisecond
	}

	return stats
}

func (args *stressTestArgs) showStats() {
	// requires locked mutex
	if time.Since(args.lastShowTime) < 100*time.Millisecond {
		return
	}
	args.lastShowTime = time.Now()
	stats := args.stats()

	str := fmt.Sprintf("Connections=%d received=%d Screen-to-screen time avg=%dms min=%dms max=%dms      ",
		stats.Connections,
		stats.Received,
		stats.Avg.Milliseconds(),
		stats.Min.Milliseconds(), stats.Max.Milliseconds())

	if args.Verbose {
		log.Print(str)
	} else {
		os.Stderr.Write([]byte(str + "\r"))
	}
}

// RunStressTest runs a stress test against another server. The test continues
// until ctx is done or a client fails, and returns the collected statistics.
func RunStressTest(ctx context.Context, argsIn StressTestArgs) (StressTestStats, error) {
	args := &stressTestArgs{StressTestArgs: argsIn}
	if args.DelayMS <= 0 {
		args.DelayMS = 1000
	}
	if args.Event == "" {
		args.Event = Draw
	}
	if !carriesPayload(args.Event) {
		return StressTestStats{}, fmt.Errorf("event %q carries no payload", args.Event)
	}

	u, err := url.Parse(args.Address)
	if err != nil {
		return StressTestStats{}, fmt.Errorf("parse address: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	id := 1
	for i := 0; i < args.NumWatchers; i++ {
		clientID := id
		g.Go(func() error {
			return args.runClient(ctx, u, clientID, false)
		})
		id++
	}

	for i := 0; i < args.NumDrawers; i++ {
		clientID := id
		g.Go(func() error {
			return args.runClient(ctx, u, clientID, true)
		})
		id++
	}

	err = g.Wait()

	args.mutex.Lock()
	defer args.mutex.Unlock()
	return args.stats(), err
}

func (args *stressTestArgs) connect(ctx context.Context, u *url.URL, clientID int) (*websocket.Conn, error) {
	// wait a random amount of time
	if args.ConnectSpreadMS > 0 {
		select {
		case <-time.After(time.Duration(rand.Intn(args.ConnectSpreadMS)) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if args.Verbose {
		log.Printf("Client %d connecting to %s...", clientID, u.String())
	}
	c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", clientID, err)
	}

	return c, nil
}

func (args *stressTestArgs) runClient(ctx context.Context, u *url.URL, clientID int, drawer bool) error {
	conn, err := args.connect(ctx, u, clientID)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer conn.Close()
	args.recordConnection()

	// unblock the read below once the test is over
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if drawer {
		go args.drawLoop(ctx, conn, clientID)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client %d: %w", clientID, err)
		}

		e, err := decodeEvent(frame)
		if err != nil {
			return fmt.Errorf("client %d: %w", clientID, err)
		}

		var point stressPoint
		if err := json.Unmarshal(e.Data, &point); err != nil {
			return fmt.Errorf("client %d: bad %s payload: %w", clientID, e.Name, err)
		}

		args.recordPingTime(time.Now().UnixMilli() - point.SentMS)
		if args.Verbose {
			log.Printf("Client %d received %s", clientID, e.Name)
		}
	}
}

func (args *stressTestArgs) drawLoop(ctx context.Context, conn *websocket.Conn, clientID int) {
	for {
		// delay random amount of time related to the input delay
		delay := time.Duration(rand.NormFloat64()*float64(args.DelayMS/2)+float64(args.DelayMS)) * time.Millisecond
		if delay < time.Millisecond {
			delay = time.Millisecond
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		data, _ := json.Marshal(stressPoint{
			X:      rand.Intn(1000),
			Y:      rand.Intn(1000),
			Color:  "#000",
			SentMS: time.Now().UnixMilli(),
		})

		if args.Verbose {
			log.Printf("Drawer %d sends %s", clientID, args.Event)
		}
		err := conn.WriteMessage(websocket.TextMessage, encodeEvent(event{Name: args.Event, Data: data}))
		if err != nil {
			return
		}
	}
}
