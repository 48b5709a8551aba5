// Command ircdemo is a minimal, UI-less driver for the irc package: it
// dials a server, runs registration, and prints every Event it receives to
// stdout. It exists to exercise irc.Client/irc.Registry end to end the way
// the original module's UI front end does, without pulling in a terminal
// dependency.
package main

import (
	"bufio"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"git.sr.ht/~chat/ircore"
	"git.sr.ht/~chat/ircore/irc"
)

func main() {
	configPath := flag.String("config", "", "path to a server YAML config file")
	addr := flag.String("addr", "", "host:port to dial, overriding nothing in the config")
	insecure := flag.Bool("insecure", false, "skip TLS certificate verification")
	flag.Parse()

	if *configPath == "" || *addr == "" {
		fmt.Fprintln(os.Stderr, "usage: ircdemo -config <file.yaml> -addr <host:port>")
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalln(err)
	}
	defer logger.Sync()

	cfg, err := ircore.LoadConfigFile(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	conn, err := tls.Dial("tcp", *addr, &tls.Config{InsecureSkipVerify: *insecure})
	if err != nil {
		logger.Fatal("dial failed", zap.Error(err))
	}
	defer conn.Close()

	in, out := irc.ChanInOut(conn, logger)

	var auth irc.SASLClient
	switch {
	case cfg.SASL != nil && cfg.SASL.Mechanism == "plain":
		auth = &irc.SASLPlain{Username: cfg.SASL.Username, Password: cfg.SASL.Password}
	case cfg.SASL != nil && cfg.SASL.Mechanism == "external":
		auth = &irc.SASLExternal{}
	}

	client := irc.NewClient(out, cfg, auth, irc.ClientOptions{
		SourceURL:     "https://git.sr.ht/~chat/ircore",
		VersionString: "ircdemo",
		Logger:        logger,
	})

	registry := irc.NewRegistry()
	registry.SetLogger(logger)
	registry.SetReady("server", client)

	if err := client.Connect(); err != nil {
		logger.Fatal("connect failed", zap.Error(err))
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	stdin := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		for stdin.Scan() {
			lines <- stdin.Text()
		}
		close(lines)
	}()

	for {
		select {
		case msg, ok := <-in:
			if !ok {
				logger.Info("connection closed")
				return
			}
			events, err := registry.Receive("server", time.Now(), msg)
			if err != nil {
				logger.Warn("failed to handle message", zap.Error(err), zap.String("raw", msg.String()))
				continue
			}
			for _, ev := range events {
				printEvent(ev)
			}

		case now := <-ticker.C:
			registry.Tick(now)

		case line, ok := <-lines:
			if !ok {
				for _, name := range registry.Exit("ircdemo exiting") {
					logger.Info("left server", zap.String("server", name))
				}
				return
			}
			handleCommand(client, line)
		}
	}
}

// handleCommand parses a tiny slash-command language for driving the demo
// interactively: /join, /part, /msg, /quit. Anything else is ignored.
func handleCommand(client *irc.Client, line string) {
	if !strings.HasPrefix(line, "/") {
		return
	}
	fields := strings.SplitN(line[1:], " ", 2)
	cmd := strings.ToUpper(fields[0])
	rest := ""
	if len(fields) > 1 {
		rest = fields[1]
	}

	switch cmd {
	case "JOIN":
		client.Join(strings.Fields(rest))
	case "PART":
		for _, ch := range strings.Fields(rest) {
			client.Send(time.Now(), ch, irc.NewMessage("PART", ch))
		}
	case "MSG":
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) == 2 {
			client.SendQuery(time.Now(), parts[0], irc.NewMessage("PRIVMSG", parts[0], parts[1]))
		}
	case "QUIT":
		client.Quit(rest)
	}
}

func printEvent(ev irc.Event) {
	switch ev := ev.(type) {
	case irc.Single:
		fmt.Printf("[%s] %s\n", ev.SelfNick, ev.Message.String())
	case irc.WithTarget:
		fmt.Printf("[%s -> %s] %s\n", ev.SelfNick, ev.Target, ev.Message.String())
	case irc.JoinedChannel:
		fmt.Printf("* joined %s\n", ev.Name)
	case irc.Notification:
		fmt.Printf("! notification (%d): %s\n", ev.Kind, ev.Message.String())
	case irc.Broadcast:
		printBroadcast(ev)
	case irc.FileTransferRequest:
		fmt.Printf("* %s offers %s (%d bytes)\n", ev.Nick, ev.Request.Filename, ev.Request.Size)
	case irc.UpdateReadMarker:
		fmt.Printf("* read marker for %s: %s\n", ev.Target, ev.Marker)
	default:
		fmt.Printf("? unhandled event %T\n", ev)
	}
}

func printBroadcast(ev irc.Broadcast) {
	switch ev.Kind {
	case irc.BroadcastQuit:
		fmt.Printf("* %s quit (%s)\n", ev.User.Name, strings.Join(ev.Channels, ", "))
	case irc.BroadcastNickname:
		fmt.Printf("* %s is now known as %s\n", ev.FormerNick, ev.NewNick)
	case irc.BroadcastInvite:
		fmt.Printf("* %s invited %s to %s\n", ev.Inviter, ev.Invitee, ev.Channel)
	case irc.BroadcastChangeHost:
		fmt.Printf("* %s changed host to %s@%s\n", ev.User.Name, ev.NewUser, ev.NewHost)
	}
}
