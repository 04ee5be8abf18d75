package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/advisor/internal/chatclient"
	"github.com/xiaot623/advisor/internal/domain"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
	advisorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
	errorPanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)
	errorTitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// markdown is nil when the terminal renderer cannot be built; output is
// then printed as plain text.
var markdown *glamour.TermRenderer

func init() {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err == nil {
		markdown = r
	}
}

func renderMarkdown(content string) string {
	if markdown == nil {
		return content
	}
	out, err := markdown.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func (r *repl) printReplies(msgs []domain.Message) {
	for _, msg := range msgs {
		if msg.Role == domain.RoleUser {
			fmt.Fprintf(r.out, "%s %s\n", userStyle.Render("You:"), msg.Content)
			if msg.Image != "" {
				fmt.Fprintln(r.out, mutedStyle.Render("  [image attached]"))
			}
			continue
		}

		fmt.Fprintln(r.out, advisorStyle.Render("Advisor:"))
		fmt.Fprintln(r.out, renderMarkdown(msg.Content))
		if msg.Image != "" {
			path, err := saveImage(msg)
			if err != nil {
				r.printError(fmt.Errorf("save image: %w", err))
				continue
			}
			fmt.Fprintln(r.out, mutedStyle.Render("  image saved to "+path))
		}
	}
}

func (r *repl) printError(err error) {
	title := "Error"
	body := err.Error()
	var hint string

	var relayErr *chatclient.RelayError
	if errors.As(err, &relayErr) {
		title = relayErr.Message
		body = relayErr.Details
		hint = relayErr.Solution
	}

	lines := []string{errorTitle.Render(title)}
	if body != "" {
		lines = append(lines, body)
	}
	if hint != "" {
		lines = append(lines, mutedStyle.Render(hint))
	}
	if r.session.CanRetry() {
		lines = append(lines, mutedStyle.Render("/retry to send again, /dismiss to clear"))
	}
	fmt.Fprintln(r.out, errorPanel.Render(strings.Join(lines, "\n")))
}

// saveImage writes a generated image to the working directory.
func saveImage(msg domain.Message) (string, error) {
	data, err := base64.StdEncoding.DecodeString(msg.Image)
	if err != nil {
		return "", err
	}
	ext := ".png"
	switch msg.MimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	path := fmt.Sprintf("advisor-%s%s", time.Now().Format("20060102-150405.000"), ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
