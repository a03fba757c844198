package utils

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
)

// --- Utility Functions ---

func DetectLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String(), nil
		}
	}
	return "", fmt.Errorf("no local IPv4 address found")
}

// --- Printers File ---

func LoadPrinters(printersFile string) ([]model.Printer, error) {
	if _, err := os.Stat(printersFile); os.IsNotExist(err) {
		return []model.Printer{}, nil
	}
	data, err := os.ReadFile(printersFile)
	if err != nil {
		return nil, err
	}
	var printers []model.Printer
	if err := json.Unmarshal(data, &printers); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", printersFile, err)
	}
	for i := range printers {
		normalizePrinter(&printers[i])
	}
	return printers, nil
}

// SavePrinters merges printers into the file, keeping existing entries and
// adding new ones keyed by IP.
func SavePrinters(printersFile string, printers []model.Printer) error {
	// Ensure config directory exists
	configDir := filepath.Dir(printersFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	existingPrinters, err := LoadPrinters(printersFile)
	if err != nil {
		return fmt.Errorf("failed to read existing printers file: %w", err)
	}

	existingPrintersMap := make(map[string]bool)
	for _, printer := range existingPrinters {
		existingPrintersMap[printer.IP] = true
	}

	for _, printer := range printers {
		if existingPrintersMap[printer.IP] {
			continue
		}
		normalizePrinter(&printer)
		existingPrinters = append(existingPrinters, printer)
		existingPrintersMap[printer.IP] = true
	}

	data, err := json.MarshalIndent(existingPrinters, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(printersFile, data, 0644)
}

func normalizePrinter(p *model.Printer) {
	if p.Port == 0 {
		p.Port = model.DefaultPrinterPort
	}
	if p.Width == 0 {
		p.Width = model.DefaultWidth // Default for 58mm media
	}
}
