package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"gitlab.ozon.dev/qwestard/atabuy/internal/config"
	"gitlab.ozon.dev/qwestard/atabuy/internal/handler"
	"gitlab.ozon.dev/qwestard/atabuy/internal/kanban"
	"gitlab.ozon.dev/qwestard/atabuy/internal/orderstore"
	"gitlab.ozon.dev/qwestard/atabuy/internal/poll"
	"gitlab.ozon.dev/qwestard/atabuy/internal/tracking"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadConfig()

	var serverURL, token string
	var pollInterval, timeout time.Duration
	var pollAttempts int
	var verbose bool

	flagSet := pflag.NewFlagSet("orderctl", pflag.ContinueOnError)
	flagSet.StringVarP(&serverURL, "server", "s", "http://localhost"+cfg.Addr(), "order service base URL")
	flagSet.StringVarP(&token, "token", "t", cfg.AdminToken, "admin bearer token")
	flagSet.DurationVar(&pollInterval, "poll-interval", 2*time.Second, "interval between checks for 'wait'")
	flagSet.IntVar(&pollAttempts, "poll-attempts", 30, "maximum checks for 'wait'")
	flagSet.DurationVar(&timeout, "timeout", 15*time.Second, "per-request timeout")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if !verbose {
		log.SetOutput(io.Discard)
	}

	client := orderstore.New(serverURL, orderstore.StaticToken(token), orderstore.WithHTTPClient(&http.Client{Timeout: timeout}))
	notes := &kanban.RecordingNotifier{}
	board := kanban.NewController(client, notes)
	tracker := tracking.NewTracker(client, nil)
	h := handler.New(board, notes, tracker, poll.Config{Interval: pollInterval, MaxAttempts: pollAttempts}, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// one-shot mode: orderctl [flags] <command> [args...]
	if args := flagSet.Args(); len(args) > 0 {
		if needsBoard(args[0]) {
			if err := h.Execute(ctx, "load", nil); err != nil {
				return err
			}
		}
		err := h.Execute(ctx, args[0], args[1:])
		board.Wait()
		_ = h.Execute(ctx, "notes", nil)
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			board.Wait()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		err = h.Execute(ctx, parts[0], parts[1:])
		if errors.Is(err, handler.ErrExit) {
			board.Wait()
			fmt.Println("Çıxış.")
			return nil
		}
		if err != nil {
			fmt.Printf("Xəta: %v\n", err)
		}
		if ctx.Err() != nil {
			board.Wait()
			return nil
		}
	}
}

func needsBoard(cmd string) bool {
	switch cmd {
	case "board", "drag", "move":
		return true
	}
	return false
}
