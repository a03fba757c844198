package model

import (
	"net"
	"strconv"
	"time"
)

const DefaultPrinterPort = 9100

// Target identifies a printer endpoint for a single connection.
type Target struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Addr returns host:port, bracketing IPv6 literals. A zero port means 9100.
func (t Target) Addr() string {
	port := t.Port
	if port <= 0 {
		port = DefaultPrinterPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}
