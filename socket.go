package drawrelay

import (
	"context"
	"log"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

// Bounds for the wait between attempts to (re)subscribe to the peer bus.
const (
	peerBusMinRetry = 100 * time.Millisecond
	peerBusMaxRetry = 5 * time.Second
)

// DefaultAllowedOrigin is the development address of the drawing client.
const DefaultAllowedOrigin = "http://localhost:5173"

// Options configure a Handler. The zero value relays both protocols, accepts
// every origin and serves no static files.
type Options struct {
	// Protocol selects the relayed event names. Empty means ProtocolBoth.
	Protocol Protocol

	// AllowedOrigin is the only Origin accepted for websocket upgrades and
	// the one announced in CORS headers. Empty accepts any origin.
	AllowedOrigin string

	// StaticDir is served for every request that is not a websocket upgrade.
	StaticDir string

	// MaxMessageSize limits incoming frames. Zero means 100 KiB.
	MaxMessageSize int

	// PeerBus, when set, shares relayed events with other instances.
	PeerBus PeerBus
}

// Handler is an HTTP handler that relays drawing events between the
// websocket clients connected to it.
type Handler struct {
	hub              *hub
	protocol         Protocol
	allowedOrigin    string
	maxSize          int
	static           http.Handler
	bus              PeerBus
	cancel           context.CancelFunc
	busDone          chan struct{}
	closed           atomic.Bool
	closeOnce        sync.Once
	allowCompression bool

	mutex          sync.Mutex
	secretUser     string
	secretPassword string
	webhookURL     string
	webhookDelay   time.Duration
}

// NewHandler returns a new relay Handler.
func NewHandler(opts Options) *Handler {
	if opts.Protocol == "" {
		opts.Protocol = ProtocolBoth
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = maxMessageSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	zh := &Handler{
		hub:              newHub(opts.PeerBus),
		protocol:         opts.Protocol,
		allowedOrigin:    opts.AllowedOrigin,
		maxSize:          opts.MaxMessageSize,
		bus:              opts.PeerBus,
		cancel:           cancel,
		allowCompression: true,
	}

	if opts.StaticDir != "" {
		zh.static = http.FileServer(http.Dir(opts.StaticDir))
	}

	if zh.bus != nil {
		zh.busDone = make(chan struct{})
		go zh.runPeerBus(ctx)
	}

	return zh
}

// runPeerBus keeps the peer bus subscribed until ctx is done. A bus that
// cannot reach its server, at startup or later, is retried with backoff.
func (zh *Handler) runPeerBus(ctx context.Context) {
	defer close(zh.busDone)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = peerBusMinRetry
	b.MaxInterval = peerBusMaxRetry

	for {
		err := zh.bus.Subscribe(ctx, zh.hub.deliver)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			b.Reset()
			log.Printf("Peer bus subscription ended; resubscribing")
		} else {
			log.Printf("Peer bus unavailable: %v", err)
		}

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// SetCompressionAllowed allows you to always disable socket compression.
// By default, socket compression is allowed.
func (zh *Handler) SetCompressionAllowed(allowed bool) {
	zh.allowCompression = allowed
}

// SetSecretUser sets the basic auth credentials sent with webhooks.
func (zh *Handler) SetSecretUser(username, password string) {
	zh.mutex.Lock()
	defer zh.mutex.Unlock()
	zh.secretUser = username
	zh.secretPassword = password
	zh.updateWebhook()
}

// SetWebhookURL sets a url to receive a boardEmpty event, delay after
// all users have left. A zero delay keeps the default of five minutes.
func (zh *Handler) SetWebhookURL(url string, delay time.Duration) {
	zh.mutex.Lock()
	defer zh.mutex.Unlock()
	zh.webhookURL = url
	zh.webhookDelay = delay
	zh.updateWebhook()
}

func (zh *Handler) updateWebhook() {
	zh.hub.setWebhook(zh.webhookURL, zh.secretUser, zh.secretPassword, zh.webhookDelay)
}

// ClientCount returns the number of clients currently connected.
func (zh *Handler) ClientCount() int {
	return zh.hub.clientCount()
}

// Close disconnects every client and stops the peer bus. The handler must
// not be used afterwards.
func (zh *Handler) Close() error {
	var err error
	zh.closeOnce.Do(func() {
		zh.closed.Store(true)
		zh.cancel()
		zh.hub.stop()
		if zh.bus != nil {
			err = zh.bus.Close()
			<-zh.busDone
		}
	})
	return err
}

func (zh *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if zh.allowedOrigin == "" || origin == "" {
		return true
	}
	if strings.EqualFold(origin, zh.allowedOrigin) {
		return true
	}
	log.Printf("Rejecting websocket from origin %s", origin)
	return false
}

// ServeHTTP ...
func (zh *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgradeHeader := r.Header.Get("Upgrade")
	compression := r.FormValue("compression")

	if !strings.Contains(strings.ToLower(upgradeHeader), "websocket") {
		RecoverErrors(CORS(zh.allowedOrigin, http.HandlerFunc(zh.serveStatic)))(w, r)
		return
	}

	if zh.closed.Load() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin:       zh.checkOrigin,
		EnableCompression: true,
	}

	// compression not supported on Windows Server 2016.
	if runtime.GOOS == "windows" || compression == "0" || !zh.allowCompression {
		upgrader.EnableCompression = false
	}

	// Upgrade initial GET request to a websocket
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	runClient(zh.hub, ws, zh.protocol, zh.maxSize)
}

func (zh *Handler) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		HTTPPanic(http.StatusMethodNotAllowed, "Method not allowed")
	}

	if zh.static == nil {
		w.Header().Set("Content-type", "text/plain")
		w.Write([]byte("Drawing relay server is running."))
		return
	}

	zh.static.ServeHTTP(w, r)
}
