// Package main provides an interactive terminal client for the advisor relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/xiaot623/advisor/internal/chatclient"
	"github.com/xiaot623/advisor/internal/domain"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Relay base URL")
	model := flag.String("model", chatclient.DefaultProvider, "Provider to start with")
	style := flag.String("style", string(domain.DefaultResponseStyle), "Response style to start with")
	useWS := flag.Bool("ws", false, "Send chat requests over the WebSocket endpoint")
	flag.Parse()

	log.SetFlags(log.Ltime)

	base := strings.TrimSuffix(*addr, "/")
	httpTransport := chatclient.NewHTTPTransport(base, 0)

	var transport chatclient.Transport = httpTransport
	if *useWS {
		url := wsURL(base)
		fmt.Printf("Connecting to %s...\n", url)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		wsTransport, err := chatclient.DialWS(ctx, url)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		defer wsTransport.Close()
		transport = wsTransport
	}

	session := chatclient.NewSession(transport, *model, domain.ResponseStyle(*style))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	cat, err := httpTransport.Providers(ctx)
	cancel()
	if err != nil {
		log.Printf("WARN: could not load providers from %s: %v", base, err)
	} else {
		session.SetAllowedMIMETypes(cat.AllowedMIMETypes)
	}

	fmt.Printf("Advisor ready. Provider: %s, style: %s\n", session.Provider(), session.ResponseStyle())
	fmt.Println("Type a message and press Enter to send. /help lists commands.")
	fmt.Println()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	r := &repl{session: session, catalog: cat, relay: httpTransport, out: os.Stdout}
	for {
		input, err := line.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				return
			}
			log.Fatalf("Read error: %v", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if !r.command(input) {
				fmt.Println("Bye!")
				return
			}
			continue
		}
		r.send(input)
	}
}

// send submits one line; Ctrl+C cancels the request in flight.
func (r *repl) send(text string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	before := len(r.session.Transcript())
	fmt.Fprintln(r.out, mutedStyle.Render("Thinking..."))
	if err := r.session.Submit(ctx, text); err != nil {
		r.printError(err)
		return
	}
	r.printReplies(r.session.Transcript()[before+1:])
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/api/chat/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/api/chat/ws"
	}
	return base + "/api/chat/ws"
}
