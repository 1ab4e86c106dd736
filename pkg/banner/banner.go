package banner

import (
	"fmt"

	"historydb/pkg/config"
)

const banner = `
██╗  ██╗██╗███████╗████████╗ ██████╗ ██████╗ ██╗   ██╗██████╗ ██████╗
██║  ██║██║██╔════╝╚══██╔══╝██╔═══██╗██╔══██╗╚██╗ ██╔╝██╔══██╗██╔══██╗
███████║██║███████╗   ██║   ██║   ██║██████╔╝ ╚████╔╝ ██║  ██║██████╔╝
██╔══██║██║╚════██║   ██║   ██║   ██║██╔══██╗  ╚██╔╝  ██║  ██║██╔══██╗
██║  ██║██║███████║   ██║   ╚██████╔╝██║  ██║   ██║   ██████╔╝██████╔╝
╚═╝  ╚═╝╚═╝╚══════╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝   ╚═╝   ╚═════╝ ╚═════╝
`

// Print writes the startup banner with the effective runtime settings.
func Print(cfg *config.Config, version string) {
	addr := cfg.Addr()
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", cfg.Server.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Versions cap: %d per message\n", cfg.History.MaxVersions)
	if cfg.Maintenance.Enabled {
		fmt.Printf("Maintenance:  enabled (cron=%s)\n", cfg.Maintenance.Cron)
	} else {
		fmt.Println("Maintenance:  disabled")
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/topics                      - Create a topic")
	fmt.Println("GET  /v1/topics/{id}/messages        - List messages with blocks")
	fmt.Println("POST /v1/topics/{id}/messages        - Append a message")
	fmt.Println("POST /v1/topics/{id}/fork            - Fork a topic at a branch point")
	fmt.Println("POST /v1/messages/{id}/versions      - Snapshot current content")
	fmt.Println("POST /v1/versions/{id}/switch        - Switch a message to a version")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/topics' -d '{\"name\": \"demo\"}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/topics/<id>/messages'\n", addr)

	fmt.Println("\n== Logs: =================================================")
}
