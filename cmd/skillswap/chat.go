package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/chat"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

const chatHelp = `Type a message and press Enter to send it.
  /history  reprint the conversation grouped by day
  /online   show whether the other member is online
  /quit     leave the chat`

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <user-id>",
		Short: "Chat with another member in real time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := a.session()
			if err != nil {
				return err
			}
			peer := args[0]

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reqCtx, cancel := a.requestContext(ctx)
			profile, err := client.ProfileByID(reqCtx, peer)
			cancel()
			if err != nil {
				return a.explain(err)
			}

			conn, err := a.dial(ctx, sess)
			if err != nil {
				return err
			}
			defer hangUp(conn)

			name := profile.Name
			if name == "" {
				name = peer
			}
			view := newChatView(a.out, sess.UserID, name)
			presence := chat.NewPresence(view.signal)
			presence.Track(peer)
			defer presence.Bind(conn)()

			logger := a.log.With().Str(logging.FieldPeerID, peer).Logger()
			conv := chat.NewConversation(sess.UserID, client, conn, chat.Options{
				TypingDebounce: a.cfg.TypingDebounce,
				OnChange:       view.signal,
				OnFailed:       view.failed,
				Logger:         &logger,
			})
			defer conv.Close()
			view.conv, view.presence = conv, presence

			rejected, unsub := rejections(conn, wire.EventSendMessage)
			defer unsub()

			loadCtx, cancel := a.requestContext(ctx)
			err = conv.Select(loadCtx, peer)
			cancel()
			if err != nil {
				return a.explain(err)
			}
			fmt.Fprintf(a.out, "Chatting with %s. /quit to leave, /help for commands.\n", view.peerName)
			view.history(time.Now())

			lines := make(chan string)
			go func() {
				defer close(lines)
				for {
					line, err := a.reader.ReadString('\n')
					if line = strings.TrimSpace(line); line != "" {
						select {
						case lines <- line:
						case <-ctx.Done():
							return
						}
					}
					if err != nil {
						return
					}
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-conn.Done():
					if err := conn.Err(); err != nil {
						return fmt.Errorf("connection lost: %w", err)
					}
					return nil
				case <-view.changed:
					view.render()
				case p := <-rejected:
					fmt.Fprintf(a.out, "! server rejected message: %s\n", p.Message)
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					switch line {
					case "/quit", "/exit":
						return nil
					case "/help":
						fmt.Fprintln(a.out, chatHelp)
					case "/history":
						view.history(time.Now())
					case "/online":
						view.status()
					default:
						sendCtx, cancel := a.requestContext(ctx)
						_, err := conv.Send(sendCtx, line)
						cancel()
						if err != nil && !errors.Is(err, chat.ErrEmptyMessage) {
							a.log.Debug().Err(err).Msg("send failed")
						}
						view.render()
					}
				}
			}
		},
	}
}

// chatView prints a conversation to a line-oriented terminal. Entries are
// printed once, when they are confirmed; presence and typing changes are
// printed as they flip.
type chatView struct {
	out      io.Writer
	me       string
	peerName string
	conv     *chat.Conversation
	presence *chat.Presence

	changed chan struct{}

	mu      sync.Mutex
	printed map[string]bool
	typing  bool
	online  bool
}

func newChatView(out io.Writer, me, peerName string) *chatView {
	return &chatView{
		out:      out,
		me:       me,
		peerName: peerName,
		changed:  make(chan struct{}, 1),
		printed:  make(map[string]bool),
	}
}

// signal schedules a render. It never blocks the caller.
func (v *chatView) signal() {
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

func (v *chatView) failed(e chat.Entry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "! not sent: %s\n", e.Text)
}

// render prints whatever changed since the last call.
func (v *chatView) render() {
	if v.conv == nil {
		return
	}
	entries := v.conv.Messages()
	typing := v.conv.RemoteTyping()
	online := v.presence != nil && v.presence.IsOnline(v.conv.Peer())

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range entries {
		if e.State != chat.Confirmed || v.printed[e.ID] {
			continue
		}
		v.printed[e.ID] = true
		v.line(e)
	}
	if online != v.online {
		v.online = online
		fmt.Fprintf(v.out, "* %s is %s\n", v.peerName, onlineWord(online))
	}
	if typing != v.typing {
		v.typing = typing
		if typing {
			fmt.Fprintf(v.out, "* %s is typing...\n", v.peerName)
		}
	}
}

// history prints the whole conversation grouped by day.
func (v *chatView) history(now time.Time) {
	if v.conv == nil {
		return
	}
	groups := v.conv.Groups(now, time.Local)

	v.mu.Lock()
	defer v.mu.Unlock()
	if len(groups) == 0 {
		fmt.Fprintln(v.out, "No messages yet")
	}
	for _, g := range groups {
		fmt.Fprintf(v.out, "-- %s --\n", g.Label)
		for _, e := range g.Messages {
			if e.State == chat.Confirmed {
				v.printed[e.ID] = true
			}
			v.line(e)
		}
	}
}

func (v *chatView) status() {
	online := v.presence != nil && v.conv != nil && v.presence.IsOnline(v.conv.Peer())
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "* %s is %s\n", v.peerName, onlineWord(online))
}

func (v *chatView) line(e chat.Entry) {
	who := v.peerName
	if e.Sender.Is(v.me) {
		who = "you"
	}
	when := "--:--"
	if !e.CreatedAt.IsZero() {
		when = e.CreatedAt.Local().Format("15:04")
	}
	mark := ""
	if e.IsTemp() {
		mark = " (sending)"
	} else if e.Read && e.Sender.Is(v.me) {
		mark = " (read)"
	}
	fmt.Fprintf(v.out, "[%s] %s: %s%s\n", when, who, e.Text, mark)
}

func onlineWord(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

