// Package main provides a terminal client for the messenger WebSocket server.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/messenger/internal/protocol"
)

// Client represents a WebSocket client.
type Client struct {
	conn   *websocket.Conn
	userID string
	peer   string
	out    io.Writer
	done   chan struct{}
}

// NewClient connects to addr presenting token as a bearer credential.
func NewClient(addr, token string, out io.Writer) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(addr, header)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		out:  out,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// WaitHelloAck waits for the server to confirm the handshake.
func (c *Client) WaitHelloAck() error {
	_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}

	switch base.Type {
	case protocol.TypeHelloAck:
		var ack protocol.HelloAckMessage
		if err := json.Unmarshal(data, &ack); err != nil {
			return fmt.Errorf("unmarshal hello_ack: %w", err)
		}
		c.userID = ack.UserID
		return nil
	case protocol.TypeError:
		var errMsg protocol.ErrorMessage
		_ = json.Unmarshal(data, &errMsg)
		return fmt.Errorf("handshake failed: %s - %s", errMsg.Code, errMsg.Message)
	default:
		return fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}
}

func (c *Client) send(v any) error {
	return c.conn.WriteJSON(v)
}

// SendMessage sends content to the current peer.
func (c *Client) SendMessage(content string) error {
	if c.peer == "" {
		return fmt.Errorf("no peer selected, use /to <user>")
	}
	msg := protocol.SendMessageRequest{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeSendMessage,
			RequestID: fmt.Sprintf("req_%d", time.Now().UnixNano()),
		},
		ReceiverID: c.peer,
		Content:    content,
	}
	return c.send(msg)
}

// Execute runs one line of user input. It reports false when the client should exit.
func (c *Client) Execute(input string) (bool, error) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit":
		return false, nil
	case "/to":
		if arg == "" {
			return true, fmt.Errorf("usage: /to <user>")
		}
		c.peer = arg
		fmt.Fprintf(c.out, "Chatting with %s\n", c.peer)
		return true, nil
	case "/online":
		return true, c.send(protocol.GetOnlineUsersRequest{BaseMessage: protocol.BaseMessage{Type: protocol.TypeGetOnlineUsers}})
	case "/read":
		if c.peer == "" {
			return true, fmt.Errorf("no peer selected, use /to <user>")
		}
		return true, c.send(protocol.MarkReadRequest{BaseMessage: protocol.BaseMessage{Type: protocol.TypeMarkRead}, SenderID: c.peer})
	case "/typing":
		if c.peer == "" {
			return true, fmt.Errorf("no peer selected, use /to <user>")
		}
		return true, c.send(protocol.TypingRequest{BaseMessage: protocol.BaseMessage{Type: protocol.TypeTyping}, ReceiverID: c.peer})
	default:
		return true, c.SendMessage(input)
	}
}

// ReadMessages reads and prints messages from the server.
func (c *Client) ReadMessages() {
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}
			c.print(data)
		}
	}
}

func (c *Client) print(data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		log.Printf("Unmarshal error: %v", err)
		return
	}

	switch base.Type {
	case protocol.TypeReceiveMessage:
		var ev protocol.MessageEvent
		if json.Unmarshal(data, &ev) == nil {
			from := ev.Message.SenderID
			if ev.Message.Sender != nil {
				from = ev.Message.Sender.DisplayName()
			}
			fmt.Fprintf(c.out, "\n[%s] %s\n", from, ev.Message.Content)
			return
		}
	case protocol.TypeUserOnline, protocol.TypeUserOffline, protocol.TypeUserTyping, protocol.TypeUserStopTyping:
		var ev protocol.UserEvent
		if json.Unmarshal(data, &ev) == nil {
			fmt.Fprintf(c.out, "\n* %s %s\n", ev.UserID, strings.TrimPrefix(base.Type, "user_"))
			return
		}
	case protocol.TypeError:
		var ev protocol.ErrorMessage
		if json.Unmarshal(data, &ev) == nil {
			fmt.Fprintf(c.out, "\n! %s: %s\n", ev.Code, ev.Message)
			return
		}
	}

	// Pretty print everything else
	var prettyJSON map[string]interface{}
	_ = json.Unmarshal(data, &prettyJSON)
	formatted, _ := json.MarshalIndent(prettyJSON, "", "  ")
	fmt.Fprintf(c.out, "\n[%s] Received:\n%s\n", base.Type, string(formatted))
}

func main() {
	var addr, token, peer string

	root := &cobra.Command{
		Use:          "messenger-cli",
		Short:        "Terminal chat client for the messenger server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("MESSENGER_TOKEN")
			}
			return run(addr, token, peer)
		},
	}
	root.Flags().StringVar(&addr, "addr", "ws://localhost:8080/ws", "WebSocket server address")
	root.Flags().StringVar(&token, "token", "", "access token (defaults to $MESSENGER_TOKEN)")
	root.Flags().StringVar(&peer, "to", "", "user to chat with")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(addr, token, peer string) error {
	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", addr)

	client, err := NewClient(addr, token, os.Stdout)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.WaitHelloAck(); err != nil {
		return err
	}
	client.peer = peer

	fmt.Printf("Signed in as %s\n", client.userID)
	fmt.Println("\nType a message and press Enter to send.")
	fmt.Println("Commands: /to <user>, /online, /read, /typing, /quit")

	// Start reading messages in background
	go client.ReadMessages()

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}
			keepGoing, err := client.Execute(input)
			if err != nil {
				log.Printf("Error: %v", err)
			}
			if !keepGoing {
				fmt.Println("Bye!")
				return nil
			}
		}
	}
}
