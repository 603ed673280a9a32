// Command viewer is a terminal chat participant: it joins a room,
// renders the conversation and roster, and sends encrypted messages
// typed on stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"chat-relay/client"
	"chat-relay/moderation"
	"chat-relay/protocol"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	ServerURL string `envconfig:"CHAT_SERVER_URL" default:"ws://localhost:3000/ws"`
	Username  string `envconfig:"CHAT_USERNAME" required:"true"`
	Room      string `envconfig:"CHAT_ROOM" required:"true"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"WARN"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "viewer error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// Decrypted bodies bypass the server-side filter, so the viewer
	// masks blocked words locally before rendering.
	filter, err := moderation.NewFilter(moderation.DefaultWords(), '*')
	if err != nil {
		return exitRuntime, fmt.Errorf("building content filter: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, config.ServerURL, config.Username, config.Room, log)
	cancel()
	if err != nil {
		return exitRuntime, err
	}
	defer c.Close()

	color.Cyan.Printf("Joined room %q as %q\n", config.Room, config.Username)

	go renderLoop(ctx, c, filter)

	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = c.WaitReady(readyCtx)
	cancel()
	if err != nil {
		return exitRuntime, fmt.Errorf("encryption not established: %w", err)
	}
	color.Green.Println("Encryption active: messages are end-to-end encrypted")

	// Input loop: every non-empty line becomes an encrypted message.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c.SendText(sendCtx, line)
		cancel()
		if err != nil {
			color.Red.Printf("send failed: %v\n", err)
		}
	}
	return exitOK, nil
}

// renderLoop prints messages and roster updates as they arrive.
func renderLoop(ctx context.Context, c *client.Client, filter *moderation.Filter) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.Messages:
			printMessage(m, filter)
		case roster := <-c.Roster:
			printRoster(roster)
		}
	}
}

func printMessage(m client.Message, filter *moderation.Filter) {
	stamp := m.CreatedAt.Format("15:04:05")
	switch {
	case m.URL != "":
		color.Yellow.Printf("[%s] %s shared a location: %s\n", stamp, m.Username, m.URL)
	case strings.EqualFold(m.Username, "admin"):
		color.Gray.Printf("[%s] %s\n", stamp, m.Body)
	default:
		color.Green.Printf("[%s] %s: ", stamp, m.Username)
		fmt.Println(filter.Censor(m.Body))
	}
}

func printRoster(roster protocol.RoomData) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Room", "User"})
	for _, user := range roster.Users {
		table.Append([]string{roster.Room, user.Username})
	}
	table.Render()
}
