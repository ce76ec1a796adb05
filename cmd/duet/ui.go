package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

var (
	primary = lipgloss.Color("#22d3ee")
	success = lipgloss.Color("#10B981")
	failure = lipgloss.Color("#EF4444")
	muted   = lipgloss.Color("#6B7280")

	boldStyle    = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(failure).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	spinnerStyle = lipgloss.NewStyle().Foreground(primary)

	roomBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(success).
			Padding(1, 2)
)

const (
	iconSuccess = "✅"
	iconError   = "❌"
	iconInfo    = "ℹ️"
)

func roomInfoView(roomID, server string) string {
	content := fmt.Sprintf("%s Room created\n\nRoom ID:  %s\nServer:   %s\n\n%s",
		iconSuccess,
		boldStyle.Foreground(primary).Render(roomID),
		mutedStyle.Render(server),
		mutedStyle.Render("The other participant runs: duet join "+roomID),
	)
	return roomBoxStyle.Render(content)
}

func printSuccess(msg string) {
	fmt.Printf("%s %s\n", successStyle.Render(iconSuccess), msg)
}

func printError(msg string) {
	fmt.Printf("%s %s\n", errorStyle.Render(iconError), errorStyle.Render(msg))
}

func printInfo(msg string) {
	fmt.Printf("%s %s\n", iconInfo, msg)
}

// runSpinner animates frames next to msg until the returned func is called.
func runSpinner(msg string, sp spinner.Spinner, interval time.Duration) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for i := 0; ; i++ {
			frame := spinnerStyle.Render(sp.Frames[i%len(sp.Frames)])
			fmt.Printf("\r%s %s", frame, msg)
			select {
			case <-done:
				fmt.Print("\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
}
