package main

import (
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/wsbridge/internal/client"
	"github.com/fenggwsx/wsbridge/internal/config"
)

func main() {
	cfg, err := config.ParseClientFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	model := client.NewApp(cfg)

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		log.Fatalf("client exited: %v", err)
	}
}
