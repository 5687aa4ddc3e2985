// Command drawrelay runs the drawing relay server. Configuration comes from
// drawrelay.yaml and the environment; PORT selects the listening port.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/smhanov/drawrelay"
)

func main() {
	cfg, err := drawrelay.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	server, err := drawrelay.NewServer(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.ListenAndServe(ctx); err != nil {
		log.Fatal(err)
	}
}
