/*
Package main is a terminal client for the DM Chat Server.

It signs in, prints presence and message events as they arrive, and with -to opens a
conversation and sends every line read from stdin to that user.
*/
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dmchat/internal/app/chat"
	"dmchat/internal/app/message"
	"dmchat/internal/client"
	"dmchat/internal/pkg/logx"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	email := flag.String("email", "", "account email")
	password := flag.String("password", os.Getenv("DMCHAT_PASSWORD"), "account password (or DMCHAT_PASSWORD)")
	name := flag.String("signup", "", "create the account with this full name before signing in")
	to := flag.String("to", "", "id of the user to chat with")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	logx.InitGlobalLogger(*debug)

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: chatcli -email you@example.com -password ... [-signup \"Full Name\"] [-to <user id>]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*server, nil)

	var err error
	if *name != "" {
		_, err = c.Signup(ctx, client.SignupRequest{FullName: *name, Email: *email, Password: *password, Bio: "chatcli"})
	} else {
		_, err = c.Login(ctx, *email, *password)
	}
	if err != nil {
		logx.Fatal(err, "Failed to sign in")
	}
	self := c.Self()
	fmt.Printf("signed in as %s (%s)\n", self.FullName, self.ID)

	inbox, err := c.NewInbox(ctx)
	if err != nil {
		logx.Fatal(err, "Failed to load roster")
	}
	defer inbox.Close()

	names := make(map[string]string)
	for _, u := range inbox.Users() {
		names[u.ID] = u.FullName
		fmt.Printf("  %-36s  %s  unseen=%d\n", u.ID, u.FullName, inbox.Unseen()[u.ID])
	}
	label := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	client.SubscribeTo(c, chat.EventOnlineUsers, func(ids []string) {
		online := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != self.ID {
				online = append(online, label(id))
			}
		}
		fmt.Printf("* online: %s\n", strings.Join(online, ", "))
	})
	client.SubscribeTo(c, chat.EventNewMessage, func(m message.Message) {
		fmt.Printf("%s: %s\n", label(m.SenderID), describe(m))
	})
	client.SubscribeTo(c, chat.EventMessageSeen, func(p chat.MessageRefPayload) {
		fmt.Printf("* seen %s\n", p.MessageID)
	})
	client.SubscribeTo(c, chat.EventBatchMessagesDelivered, func(p chat.BatchDeliveredPayload) {
		fmt.Printf("* %s received your messages\n", label(p.DeliveredBy))
	})
	client.SubscribeTo(c, chat.EventError, func(p chat.ErrorPayload) {
		fmt.Printf("! server error %d: %s\n", p.Code, p.Message)
	})

	if err := c.Connect(ctx); err != nil {
		logx.Fatal(err, "Failed to connect")
	}
	defer c.Close()

	if *to != "" {
		timeline, err := inbox.Open(ctx, *to)
		if err != nil {
			logx.Fatal(err, "Failed to open conversation")
		}
		for _, e := range timeline.Entries() {
			fmt.Printf("%s: %s\n", label(e.Message.SenderID), describe(e.Message))
		}
		go readLines(ctx, inbox)
	}

	select {
	case <-ctx.Done():
	case <-c.Done():
		fmt.Println("* disconnected")
	}
}

func readLines(ctx context.Context, inbox *client.Inbox) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if _, err := inbox.Send(ctx, text); err != nil {
			fmt.Printf("! not sent: %v\n", err)
		}
	}
}

func describe(m message.Message) string {
	var b strings.Builder
	b.WriteString(m.Text)
	if m.Attachment != nil {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "[%s %s]", m.Attachment.Kind, m.Attachment.URL)
	}
	switch m.State() {
	case message.StateSeen:
		b.WriteString(" (seen)")
	case message.StateDelivered:
		b.WriteString(" (delivered)")
	}
	return b.String()
}
