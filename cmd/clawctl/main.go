// clawctl talks to a running RaspClaws controller.
//
//	clawctl status              controller, servo and session state
//	clawctl info                CPU temperature and usage, RAM usage
//	clawctl send <command...>   run one command over the command channel
//	clawctl watch [n]           print telemetry messages
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AGKireev/Adeept-RaspClaws/internal/config"
	"github.com/AGKireev/Adeept-RaspClaws/internal/httpc"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
)

const dialTimeout = 5 * time.Second

func main() {
	server := flag.String("server", config.ServerURL(), "Controller base URL (or set RASPCLAWS_URL)")
	user := flag.String("user", config.User(), "Command channel user")
	pass := flag.String("pass", config.Password(), "Command channel password")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch flag.Arg(0) {
	case "status":
		err = printJSON(ctx, *server+"/api/status")
	case "info":
		err = printJSON(ctx, *server+"/api/info")
	case "send":
		if flag.NArg() < 2 {
			log.Fatal("send: command required")
		}
		err = send(ctx, *server, *user, *pass, strings.Join(flag.Args()[1:], " "))
	case "watch":
		n := 0
		if flag.NArg() > 1 {
			if n, err = strconv.Atoi(flag.Arg(1)); err != nil {
				log.Fatalf("watch: %v", err)
			}
		}
		err = watch(ctx, *server, n)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("❌ %s: %v", flag.Arg(0), err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: clawctl [flags] status|info|send <command>|watch [n]")
	flag.PrintDefaults()
}

func printJSON(ctx context.Context, target string) error {
	var v map[string]interface{}
	if err := httpc.GetJSON(ctx, target, &v); err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// wsURL maps the controller's http(s) base URL to a websocket path.
func wsURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

func dial(ctx context.Context, base, path string) (*websocket.Conn, error) {
	target, err := wsURL(base, path)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}

// send authenticates on the command channel and runs one command. A
// command that starts with '{' is sent as a structured frame.
func send(ctx context.Context, base, user, pass, command string) error {
	conn, err := dial(ctx, base, "/ws")
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(user+":"+pass)); err != nil {
		return err
	}
	_, reply, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if string(reply) != protocol.AuthAccepted {
		return errors.New(strings.TrimSpace(string(reply)))
	}

	frame := []byte(command)
	if !strings.HasPrefix(strings.TrimSpace(command), "{") {
		if frame, err = json.Marshal(command); err != nil {
			return err
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	var resp protocol.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
	if resp.Status != protocol.StatusOK {
		return fmt.Errorf("%s rejected", resp.Title)
	}
	return nil
}

// watch prints telemetry messages until n have arrived (0 for no limit)
// or ctx is cancelled.
func watch(ctx context.Context, base string, n int) error {
	conn, err := dial(ctx, base, "/ws/telemetry")
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for i := 0; n == 0 || i < n; i++ {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		msg, err := protocol.ParseMessage(raw)
		if err != nil {
			fmt.Println(string(raw))
			continue
		}
		fmt.Printf("%s %s %s\n", time.UnixMilli(msg.Timestamp).Format(time.TimeOnly), msg.Type, msg.Data)
	}
	return nil
}
