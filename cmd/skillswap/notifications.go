package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/chat"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/live"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/wire"
)

func newNotificationsCmd(a *app) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show your notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, client, err := a.session()
			if err != nil {
				return err
			}
			if !follow {
				ctx, cancel := a.requestContext(cmd.Context())
				defer cancel()
				items, err := client.Notifications(ctx, sess.UserID)
				if err != nil {
					return a.explain(err)
				}
				if len(items) == 0 {
					fmt.Fprintln(a.out, "No notifications")
				}
				for _, n := range items {
					printNotification(a.out, n)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			conn, err := a.dial(ctx, sess)
			if err != nil {
				return err
			}
			defer hangUp(conn)

			changed := make(chan struct{}, 1)
			feed := chat.NewFeed(sess.UserID, client, conn, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			defer feed.Stop()

			loadCtx, cancel := a.requestContext(ctx)
			err = feed.Start(loadCtx)
			cancel()
			if err != nil {
				return a.explain(err)
			}

			// The feed is newest first; print oldest first so new arrivals
			// land at the bottom of the terminal.
			seen := make(map[string]bool)
			flush := func() {
				items := feed.Items()
				for i := len(items) - 1; i >= 0; i-- {
					n := items[i]
					key := n.ID
					if key == "" {
						key = n.CreatedAt.String() + n.Message
					}
					if seen[key] {
						continue
					}
					seen[key] = true
					printNotification(a.out, n)
				}
			}
			flush()
			fmt.Fprintln(a.out, "Waiting for notifications, press Ctrl+C to stop")
			for {
				select {
				case <-changed:
					flush()
				case <-conn.Done():
					return conn.Err()
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep running and print notifications as they arrive")
	return cmd
}

func printNotification(w io.Writer, n wire.Notification) {
	when := "recently"
	if !n.CreatedAt.IsZero() {
		when = n.CreatedAt.Local().Format("Jan 2 15:04")
	}
	kind := n.Type
	if kind == "" {
		kind = "notice"
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", when, kind, n.Message)
}

func newNotifyCmd(a *app) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "notify <user-id> <message>",
		Short: "Send a notification to another member",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, client, err := a.session()
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			conn, err := a.dial(ctx, sess)
			if err != nil {
				return err
			}
			defer hangUp(conn)

			rejected, unsub := rejections(conn, wire.EventSendNotification)
			defer unsub()

			feed := chat.NewFeed(sess.UserID, client, conn, nil)
			if err := feed.Send(args[0], kind, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			if err := conn.Flush(ctx); err != nil {
				return err
			}
			// the server answers only on failure, so give it a moment
			if p, ok := waitErr(ctx, rejected, 300*time.Millisecond); ok {
				return fmt.Errorf("server rejected notification: %s", p.Message)
			}
			fmt.Fprintln(a.out, "Notification sent")
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "message", "notification type")
	return cmd
}

// rejections delivers the server's error events for event.
func rejections(sub live.Subscriber, event string) (<-chan wire.ErrorPayload, live.Unsubscribe) {
	ch := make(chan wire.ErrorPayload, 8)
	unsub := sub.Subscribe(wire.EventError, func(data []byte) {
		var p wire.ErrorPayload
		if err := json.Unmarshal(data, &p); err != nil || p.Event != event {
			return
		}
		select {
		case ch <- p:
		default:
		}
	})
	return ch, unsub
}

// waitErr returns the first rejection that arrives within d.
func waitErr(ctx context.Context, ch <-chan wire.ErrorPayload, d time.Duration) (wire.ErrorPayload, bool) {
	select {
	case p := <-ch:
		return p, true
	case <-time.After(d):
	case <-ctx.Done():
	}
	return wire.ErrorPayload{}, false
}
