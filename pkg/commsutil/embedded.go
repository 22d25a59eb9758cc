package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
)

const embeddedLogPrefix = "commsutil:embedded"

// StartEmbedded runs an in-process COMMS server on host:port, so a single binary can
// carry both channel ends without an external broker. Port -1 picks a random port.
func StartEmbedded(host string, port int) (*commsserver.Server, error) {
	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create server: %w", embeddedLogPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("%s - server on %s:%d not ready", embeddedLogPrefix, host, port)
	}

	slog.Info(fmt.Sprintf("%s - Embedded COMMS listening at %s", embeddedLogPrefix, ns.ClientURL()))
	return ns, nil
}
