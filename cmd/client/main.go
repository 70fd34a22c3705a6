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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Parley/internal/adapters/api"
	"github.com/dkeye/Parley/internal/adapters/wsclient"
	"github.com/dkeye/Parley/internal/client"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
	"github.com/dkeye/Parley/internal/notify"
	"github.com/dkeye/Parley/internal/presence"
	"github.com/dkeye/Parley/internal/realtime"
	"github.com/dkeye/Parley/internal/typing"
)

const usage = `commands:
  /server <id>    join a server and list its members
  /channel <id>   switch to a channel and show its backlog
  /ping           measure round trip to the server
  /quit           sign out and exit
anything else is sent to the current channel`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	flags := pflag.NewFlagSet("parley", pflag.ExitOnError)
	config.ClientFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadClient(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(config.Level(cfg.LogLevel))

	tokens := core.StaticToken(cfg.Token)
	c := client.New(client.Config{
		Realtime: realtime.Config{
			URL:         cfg.ServerURL,
			BaseDelay:   cfg.Reconnect.BaseDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			PingTimeout: cfg.PingTimeout,
		},
		Debounce:     cfg.Typing.Debounce,
		RemoteExpiry: cfg.Typing.RemoteExpiry,
		PreviewLen:   cfg.Notify.PreviewLen,
		BacklogLimit: 50,
	}, wsclient.NewDialer(wsclient.Config{}),
		client.WithTokenProvider(tokens),
		client.WithHistory(api.New(api.Config{BaseURL: cfg.APIURL}, tokens)),
		client.WithNotificationSink(notify.SinkFunc(printNotification)),
	)
	subscribe(c)

	if err := c.Connect(ctx, domain.UserID(cfg.UserID), cfg.Token); err != nil {
		fmt.Printf("! connect failed: %v (retrying in background)\n", err)
	}
	defer c.Disconnect()

	fmt.Println(usage)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || !handleLine(ctx, c, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// handleLine runs one input line. It returns false on /quit.
func handleLine(ctx context.Context, c *client.Client, line string) bool {
	if line == "" {
		return true
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit":
		return false
	case "/server":
		if arg == "" {
			fmt.Println("! usage: /server <id>")
			return true
		}
		members, err := c.OpenServer(ctx, domain.ServerID(arg))
		if err != nil {
			fmt.Printf("! members: %v\n", err)
			return true
		}
		for _, m := range members {
			fmt.Printf("  %s (%s)\n", nameOf(m), m.Status)
		}
	case "/channel":
		if arg == "" {
			fmt.Println("! usage: /channel <id>")
			return true
		}
		backlog, err := c.OpenChannel(ctx, domain.ChannelID(arg))
		if err != nil {
			fmt.Printf("! backlog: %v\n", err)
			return true
		}
		fmt.Printf("-- #%s --\n", arg)
		for _, m := range backlog {
			printMessage(m)
		}
	case "/ping":
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		rtt, err := c.Ping(pctx)
		if err != nil {
			fmt.Printf("! ping: %v\n", err)
			return true
		}
		fmt.Printf("pong in %s\n", rtt.Round(time.Millisecond))
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Println(usage)
			return true
		}
		if c.Channel() == "" {
			fmt.Println("! pick a channel first: /channel <id>")
			return true
		}
		if !c.SendMessage(line) {
			fmt.Println("! not sent, you are offline")
		}
	}
	return true
}

func subscribe(c *client.Client) {
	c.On(events.TypeNewMessage, func(env events.Envelope) {
		if m, ok := env.Payload.(domain.Message); ok && m.ChannelID == c.Channel() {
			printMessage(m)
		}
	})
	c.On(events.TypePresenceNotice, func(env events.Envelope) {
		if n, ok := env.Payload.(presence.Notice); ok && !n.Self {
			fmt.Printf("* %s is %s\n", n.UserID, n.Status)
		}
	})
	c.On(events.TypeTypingChanged, func(env events.Envelope) {
		ch, ok := env.Payload.(typing.Changed)
		if !ok || ch.ChannelID != c.Channel() {
			return
		}
		if len(ch.Users) == 0 {
			return
		}
		names := make([]string, len(ch.Users))
		for i, u := range ch.Users {
			names[i] = string(u)
		}
		fmt.Printf("* %s typing...\n", strings.Join(names, ", "))
	})
	c.On(events.TypeConnectionReconnecting, func(env events.Envelope) {
		if p, ok := env.Payload.(events.ConnectionReconnecting); ok {
			fmt.Printf("! connection lost, retry %d in %s\n", p.Attempt, p.Delay)
		}
	})
	c.On(events.TypeConnectionEstablished, func(events.Envelope) {
		fmt.Println("* connected")
	})
	c.On(events.TypeConnectionFailed, func(env events.Envelope) {
		if p, ok := env.Payload.(events.ConnectionFailed); ok {
			fmt.Printf("! gave up after %d attempts: %v\n", p.Attempts, p.Err)
		}
	})
	c.On(events.TypeError, func(env events.Envelope) {
		if p, ok := env.Payload.(events.ServerError); ok {
			fmt.Printf("! server: %s %s\n", p.Code, p.Message)
		}
	})
}

func printMessage(m domain.Message) {
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.Author.Name(), m.Content)
}

func printNotification(n notify.Notification) {
	switch n.Kind {
	case notify.KindMessage:
		fmt.Printf(">> %s in #%s: %s\n", n.AuthorName, n.ChannelID, n.Preview)
	case notify.KindFriendRequest:
		fmt.Printf(">> friend request from %s\n", n.AuthorName)
	case notify.KindFriendAccepted:
		fmt.Printf(">> %s accepted your friend request\n", n.AuthorName)
	}
}

func nameOf(m core.MemberDTO) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Username
}
