// Command validate checks relay configuration files. With no arguments it
// validates every *.yaml file in the ../configs directory. It checks:
//   - YAML structure
//   - Everything the relay checks at startup (addresses, sizes, log settings)
//   - Settings that are legal but probably unintended, reported as warnings
//
// It exits with a non-zero status if any file is invalid.
package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/wricardo/posrelay/config"
)

// ValidationResult captures the outcome of validating a single file.
type ValidationResult struct {
	File     string
	Valid    bool
	Errors   []string
	Warnings []string
	Info     []string
}

// validateConfig loads and validates a single configuration file.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(filePath),
		Valid: true,
	}

	cfg, err := config.Load(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	if err := cfg.Validate(); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	result.Warnings = checkWarnings(cfg)

	result.Info = append(result.Info, fmt.Sprintf("TCP relay: %s", cfg.Server.Addr))
	result.Info = append(result.Info, fmt.Sprintf("Queue: %d records per client", cfg.Server.OutboundQueueSize))
	result.Info = append(result.Info, fmt.Sprintf("Max record: %d bytes", cfg.Server.MaxRecordSize))
	if cfg.Admin.Enabled {
		result.Info = append(result.Info, fmt.Sprintf("Admin API: http://%s/api", cfg.Admin.Addr))
	}
	if cfg.WebSocket.Enabled {
		result.Info = append(result.Info, fmt.Sprintf("WebSocket: ws://%s%s", cfg.Admin.Addr, cfg.WebSocket.Path))
	}
	if cfg.Ngrok.Enabled {
		result.Info = append(result.Info, "Ngrok: TCP tunnel enabled")
	}
	result.Info = append(result.Info, fmt.Sprintf("Log: %s (%s)", cfg.Log.Level, cfg.Log.Format))

	return result
}

// checkWarnings flags settings that pass validation but are rarely wanted.
func checkWarnings(cfg *config.Config) []string {
	var warnings []string

	if cfg.Server.WriteTimeout == 0 {
		warnings = append(warnings, "server.write_timeout is 0: a stalled client can hold its writer forever")
	}
	if cfg.Server.OutboundQueueSize < 8 {
		warnings = append(warnings, fmt.Sprintf("server.outbound_queue_size %d drops updates under any burst", cfg.Server.OutboundQueueSize))
	}
	if cfg.Admin.Enabled && !isLoopback(cfg.Admin.Addr) {
		warnings = append(warnings, fmt.Sprintf("admin.addr %s is reachable from other hosts and has no authentication", cfg.Admin.Addr))
	}

	return warnings
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// main validates the files named on the command line, or ../configs/*.yaml,
// printing a concise report.
func main() {
	files := os.Args[1:]
	if len(files) == 0 {
		var err error
		files, err = filepath.Glob(filepath.Join("..", "configs", "*.yaml"))
		if err != nil {
			fmt.Printf("Error finding config files: %v\n", err)
			os.Exit(1)
		}
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			green.Println("VALID")
			for _, info := range result.Info {
				fmt.Println("  " + info)
			}
			for _, warning := range result.Warnings {
				yellow.Println("  warning: " + warning)
			}
		} else {
			red.Println("INVALID")
			allValid = false
			for _, err := range result.Errors {
				red.Println("  " + err)
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		green.Println("All configurations are valid!")
	} else {
		red.Println("Some configurations have errors")
		os.Exit(1)
	}
}
