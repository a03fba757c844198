package model

// --- Configuration Structures ---

type Config struct {
	Port         int    `json:"port"`
	APIPrefix    string `json:"apiPrefix"`
	ClientDir    string `json:"clientDir"`
	CORSOrigin   string `json:"corsOrigin,omitempty"`
	LogLevel     string `json:"logLevel"`
	LogDev       bool   `json:"logDev"`
	PrintersFile string `json:"printersFile"`
	AgentWSURL   string `json:"agentWsUrl,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	ChromePath   string `json:"chromePath,omitempty"`
	PrintWidth   int    `json:"printWidth"`
}

type Printer struct {
	Name        string `json:"name"`
	IP          string `json:"ip"`
	Port        int    `json:"port"`
	Description string `json:"description"`
	IsEnabled   bool   `json:"isEnabled"`
	Width       int    `json:"width,omitempty"`     // text columns, 32 for 58mm and 48 for 80mm
	AgentKey    string `json:"agent_key,omitempty"` // Assigned by server
}

// Target returns the TCP endpoint of the printer.
func (p Printer) Target() Target {
	return Target{Host: p.IP, Port: p.Port}
}
