package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mindhaven/companion/internal/api"
	"github.com/mindhaven/companion/internal/auth"
	"github.com/mindhaven/companion/internal/chat"
	"github.com/mindhaven/companion/internal/config"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Client starting in DEBUG mode")
	}

	client := api.NewClient(config.AppConfig.BackendURL, time.Duration(config.AppConfig.HTTPTimeoutSeconds)*time.Second)
	tokenStore := auth.NewFileTokenStore(config.AppConfig.TokenFile)
	session := auth.NewSession(client, tokenStore)

	// Every outgoing authorized request reads the current token, and any
	// 401 response de-authenticates the session.
	client.SetTokenSource(session.Token)
	client.SetUnauthorizedHandler(session.HandleUnauthorized)

	session.Resume()

	app := &app{
		client:       client,
		session:      session,
		conversation: chat.NewConversation(client, session.Epoch),
	}
	app.run(context.Background())
}

type app struct {
	client       *api.Client
	session      *auth.Session
	conversation *chat.Conversation
	printed      int
}

func (a *app) run(ctx context.Context) {
	fmt.Println("Companion — type /help for commands.")

	if identity, ok := a.session.CurrentIdentity(); ok {
		fmt.Printf("Welcome back, %s.\n", identity.Username)
		a.startConversation(ctx)
	} else {
		fmt.Println("Not signed in. Use /login <username> <password> or /register <username> <password>.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := a.handleCommand(ctx, line); quit {
				return
			}
			continue
		}

		if _, ok := a.session.CurrentIdentity(); !ok {
			fmt.Println("Please /login first.")
			continue
		}

		a.conversation.Submit(ctx, line)
		a.printNewMessages()

		if _, ok := a.session.CurrentIdentity(); !ok {
			fmt.Println("Your session has expired. Please /login again.")
		}
	}
}

// handleCommand dispatches a slash command and reports whether to quit.
func (a *app) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println("Commands: /login <user> <pass>, /register <user> <pass>, /logout, /trends, /quit")

	case "/login":
		if len(fields) != 3 {
			fmt.Println("Usage: /login <username> <password>")
			return false
		}
		if err := a.session.Login(ctx, fields[1], fields[2]); err != nil {
			fmt.Printf("Login failed: %v\n", err)
			return false
		}
		identity, _ := a.session.CurrentIdentity()
		fmt.Printf("Signed in as %s.\n", identity.Username)
		a.startConversation(ctx)

	case "/register":
		if len(fields) != 3 {
			fmt.Println("Usage: /register <username> <password>")
			return false
		}
		if err := a.session.Register(ctx, fields[1], fields[2]); err != nil {
			if errors.Is(err, api.ErrUsernameTaken) {
				fmt.Println("That username is already taken.")
			} else {
				fmt.Printf("Registration failed: %v\n", err)
			}
			return false
		}
		fmt.Println("Account created. Use /login to sign in.")

	case "/logout":
		a.session.Logout()
		a.conversation.Reset()
		a.printed = 0
		fmt.Println("Signed out.")

	case "/trends":
		a.showTrends(ctx)

	default:
		fmt.Printf("Unknown command %s. Type /help.\n", fields[0])
	}
	return false
}

// startConversation resets the log for the new identity and loads history.
func (a *app) startConversation(ctx context.Context) {
	a.conversation.Reset()
	a.printed = 0
	a.conversation.LoadHistory(ctx)
	a.printNewMessages()
}

func (a *app) printNewMessages() {
	messages := a.conversation.Messages()
	for ; a.printed < len(messages); a.printed++ {
		printMessage(messages[a.printed])
	}
}

func printMessage(m chat.Message) {
	switch m.Role {
	case chat.RoleUser:
		fmt.Printf("you: %s\n", m.Text)
	case chat.RoleBot:
		fmt.Printf("bot: %s\n", m.Text)
		if m.Emotion != "" && m.Emotion != "neutral" {
			fmt.Printf("     [detected %s, %.0f%% confidence]\n", m.Emotion, m.Confidence*100)
		}
		if m.Recommendation != "" {
			fmt.Printf("     tip: %s\n", m.Recommendation)
		}
		if m.IsCrisis {
			fmt.Println("     !! If you are in immediate danger, please call a local emergency number.")
		}
	}
}

func (a *app) showTrends(ctx context.Context) {
	if _, ok := a.session.CurrentIdentity(); !ok {
		fmt.Println("Please /login first.")
		return
	}

	points, err := a.client.Trends(ctx)
	if err != nil {
		fmt.Printf("Could not load trends: %v\n", err)
		return
	}
	if len(points) == 0 {
		fmt.Println("No mood data yet. Chat a little first!")
		return
	}

	fmt.Println("Recent mood confidence:")
	for _, p := range points {
		bar := strings.Repeat("#", int(p.Confidence*20))
		fmt.Printf("  %s  %-10s %-20s %.2f\n", p.Timestamp.Format("Jan 02 15:04"), p.Emotion, bar, p.Confidence)
	}
}
