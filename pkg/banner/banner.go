package banner

import (
	"fmt"

	"bufferqueue/pkg/config"
)

const banner = `
██████╗ ██╗   ██╗███████╗███████╗███████╗██████╗  ██████╗
██╔══██╗██║   ██║██╔════╝██╔════╝██╔════╝██╔══██╗██╔═══██╗
██████╔╝██║   ██║█████╗  █████╗  █████╗  ██████╔╝██║   ██║
██╔══██╗██║   ██║██╔══╝  ██╔══╝  ██╔══╝  ██╔══██╗██║▄▄ ██║
██████╔╝╚██████╔╝██║     ██║     ███████╗██║  ██║╚██████╔╝
╚═════╝  ╚═════╝ ╚═╝     ╚═╝     ╚══════╝╚═╝  ╚═╝ ╚══▀▀═╝
`

// PrintWithEff prints the banner plus the effective runtime info.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Debug HTTP:  %s (%s)\n", eff.Addr, engineName(eff))
	fmt.Printf("Consumer:    %s\n", consumerName(eff))
	if version != "" {
		fmt.Printf("Version:     %s\n", version)
	}
	fmt.Printf("Config src:  %s\n", eff.Source)
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET /healthz - liveness probe")
	fmt.Println("GET /statz   - queue counters (JSON)")
	fmt.Println("GET /metrics - prometheus metrics")
}

func engineName(eff config.EffectiveConfigResult) string {
	if eff.Config != nil && eff.Config.Server.Engine != "" {
		return eff.Config.Server.Engine
	}
	return "nethttp"
}

func consumerName(eff config.EffectiveConfigResult) string {
	if eff.Config != nil && eff.Config.Queue.ConsumerName != "" {
		return eff.Config.Queue.ConsumerName
	}
	return "(default)"
}
