package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/xiaot623/advisor/internal/chatclient"
	"github.com/xiaot623/advisor/internal/domain"
)

const helpText = `Commands:
  /models          list providers
  /model <id>      switch provider
  /style <style>   switch response style (detailed, concise, step-by-step)
  /attach <path>   stage an image or PDF for the next message
  /detach          drop the staged file
  /retry           re-send the last failed message
  /dismiss         clear the current error
  /history         print the conversation
  /quit            exit`

type repl struct {
	session *chatclient.Session
	catalog *chatclient.Catalog
	relay   *chatclient.HTTPTransport
	out     io.Writer
}

func (r *repl) prompt() string {
	p := r.session.Provider()
	if att := r.session.StagedAttachment(); att != nil {
		p += " +" + att.Name
	}
	if r.session.State() == chatclient.StateError {
		p += " !"
	}
	return p + "> "
}

// command runs a slash command and reports whether the REPL should continue.
func (r *repl) command(input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/models":
		r.listModels()
	case "/model":
		if arg == "" {
			fmt.Fprintf(r.out, "Provider: %s\n", r.session.Provider())
			return true
		}
		if r.catalog != nil && !r.knownProvider(arg) {
			r.printError(fmt.Errorf("unknown provider %q, see /models", arg))
			return true
		}
		r.session.SelectProvider(arg)
		fmt.Fprintf(r.out, "Provider set to %s\n", arg)
	case "/style":
		if arg == "" {
			fmt.Fprintf(r.out, "Style: %s\n", r.session.ResponseStyle())
			return true
		}
		style, err := domain.ParseResponseStyle(arg)
		if err != nil {
			r.printError(err)
			return true
		}
		r.session.SelectResponseStyle(style)
		fmt.Fprintf(r.out, "Style set to %s\n", style)
	case "/attach":
		if arg == "" {
			r.printError(errors.New("usage: /attach <path>"))
			return true
		}
		if err := r.session.StageFile(arg); err != nil {
			r.printError(err)
			return true
		}
		att := r.session.StagedAttachment()
		fmt.Fprintf(r.out, "Attached %s (%s, %d bytes)\n", att.Name, att.MimeType, len(att.Data))
	case "/detach":
		r.session.ClearAttachment()
		fmt.Fprintln(r.out, "Attachment removed")
	case "/retry":
		r.retry()
	case "/dismiss":
		r.session.DismissError()
	case "/history":
		r.printReplies(r.session.Transcript())
	default:
		r.printError(fmt.Errorf("unknown command %s, try /help", name))
	}
	return true
}

func (r *repl) retry() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	before := len(r.session.Transcript())
	if err := r.session.Retry(ctx); err != nil {
		r.printError(err)
		return
	}
	r.printReplies(r.session.Transcript()[before+1:])
}

func (r *repl) listModels() {
	if r.catalog == nil {
		ctx := context.Background()
		cat, err := r.relay.Providers(ctx)
		if err != nil {
			r.printError(err)
			return
		}
		r.catalog = cat
	}
	current := r.session.Provider()
	for _, p := range r.catalog.Providers {
		marker := "  "
		if p.Identifier == current {
			marker = "* "
		}
		caps := make([]string, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, string(c))
		}
		fmt.Fprintf(r.out, "%s%-32s %-12s %s\n", marker, p.Identifier, p.DisplayName, strings.Join(caps, ", "))
	}
}

func (r *repl) knownProvider(id string) bool {
	for _, p := range r.catalog.Providers {
		if p.Identifier == id {
			return true
		}
	}
	return false
}
