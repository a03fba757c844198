package services

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/xprinter"
)

const (
	scanWorkers = 50
	scanTimeout = 500 * time.Millisecond
)

// Connector opens printer sessions. *xprinter.Client satisfies it.
type Connector interface {
	Connect(ctx context.Context, t model.Target) (*xprinter.Session, error)
}

// --- Discovery Logic ---

// DiscoverPrinters scans the /24 network of localIP for hosts accepting
// connections on port and returns them as disabled printers, sorted by address.
// Nothing is written to the found hosts.
func DiscoverPrinters(ctx context.Context, c Connector, localIP string, port int, logger *zap.Logger) ([]model.Printer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ip := net.ParseIP(localIP).To4()
	if ip == nil {
		return nil, fmt.Errorf("not an IPv4 address: %q", localIP)
	}
	if port <= 0 {
		port = model.DefaultPrinterPort
	}
	logger.Info("Scanning subnet", zap.String("subnet", fmt.Sprintf("%d.%d.%d.0/24", ip[0], ip[1], ip[2])), zap.Int("port", port))

	ipChan := make(chan string)
	foundChan := make(chan string, 256)
	var wg sync.WaitGroup

	for i := 0; i < scanWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for host := range ipChan {
				s, err := c.Connect(ctx, model.Target{Host: host, Port: port, Timeout: scanTimeout})
				if err != nil {
					continue
				}
				s.Close()
				foundChan <- host
			}
		}()
	}

	go func() {
		defer close(ipChan)
		for i := 1; i <= 254; i++ {
			select {
			case ipChan <- fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], i):
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(foundChan)
	}()

	var found []string
	for host := range foundChan {
		logger.Info("Found printer", zap.String("ip", host))
		found = append(found, host)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool {
		return net.ParseIP(found[i]).To4()[3] < net.ParseIP(found[j]).To4()[3]
	})
	printers := make([]model.Printer, 0, len(found))
	for _, host := range found {
		printers = append(printers, model.Printer{
			Name: "Printer " + host,
			IP:   host,
			Port: port,
		})
	}
	return printers, nil
}
