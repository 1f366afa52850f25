// collabctl is a small terminal client for the collaboration server.
//
// Usage:
//
//	collabctl whoami
//	collabctl workspaces
//	collabctl create <name>
//	collabctl join <workspace> [instance]
//	collabctl push <workspace> <content>
//	collabctl state <document>
//	collabctl exec <tool> [params-json]
//	collabctl watch
//
// Configuration is taken from the environment:
//
//	COLLAB_TRANSPORT   "ssh" (default) or "nats"
//	COLLAB_SSH_HOST    default "localhost"
//	COLLAB_SSH_PORT    default 2222
//	COLLAB_SSH_USER    default $USER
//	COLLAB_SSH_KEY     private key path; SSH agent when unset
//	COLLAB_NATS_URL    NATS server URL
//	COLLAB_LOG         log level, default "warn"
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	collabnats "github.com/codewandler/collab-go/adapters/nats"
	collabssh "github.com/codewandler/collab-go/adapters/ssh"
	"github.com/codewandler/collab-go/core/rpc"
	"github.com/codewandler/collab-go/core/session"
	"github.com/codewandler/collab-go/internal/codec"
)

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func logLevel() slog.Level {
	switch strings.ToLower(getEnv("COLLAB_LOG", "warn")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func newDialer(log *slog.Logger) (rpc.Dialer, error) {
	switch getEnv("COLLAB_TRANSPORT", "ssh") {
	case "nats":
		return collabnats.Dialer(collabnats.TransportConfig{
			Connect: collabnats.ReuseConnection(collabnats.ConnectDefault()),
			Log:     log,
		}), nil
	case "ssh":
		cfg := collabssh.Config{
			Host: getEnv("COLLAB_SSH_HOST", ""),
			Port: getEnvInt("COLLAB_SSH_PORT", 0),
			User: getEnv("COLLAB_SSH_USER", ""),
			Log:  log,
		}
		if keyPath := getEnv("COLLAB_SSH_KEY", ""); keyPath != "" {
			auth, err := collabssh.AuthFromKeyFile(keyPath, "")
			if err != nil {
				return nil, err
			}
			cfg.Auth = []gossh.AuthMethod{auth}
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		hostKeys, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		cfg.HostKeyCallback = hostKeys
		return collabssh.NewDialer(cfg)
	default:
		return nil, fmt.Errorf("unknown transport %q", getEnv("COLLAB_TRANSPORT", ""))
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: collabctl <whoami|workspaces|create|join|push|state|exec|watch> [args]")
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log, os.Args[1], os.Args[2:]); err != nil {
		log.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, cmd string, args []string) error {
	dialer, err := newDialer(log)
	if err != nil {
		return err
	}

	h, err := session.Start(session.Options{
		Dialer:  dialer,
		Context: ctx,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	defer h.Stop()

	switch cmd {
	case "whoami":
		id, err := h.Whoami(ctx)
		if err != nil {
			return err
		}
		return print(id)

	case "workspaces":
		list, err := h.ListWorkspaces(ctx)
		if err != nil {
			return err
		}
		return print(list)

	case "create":
		if len(args) < 1 {
			return fmt.Errorf("create: missing workspace name")
		}
		ws, err := h.CreateWorkspace(ctx, args[0])
		if err != nil {
			return err
		}
		return print(ws)

	case "join":
		if len(args) < 1 {
			return fmt.Errorf("join: missing workspace")
		}
		instance := hostnameOr("cli")
		if len(args) > 1 {
			instance = args[1]
		}
		seat, err := h.JoinWorkspace(ctx, args[0], instance)
		if err != nil {
			return err
		}
		return print(seat.Info())

	case "push":
		if len(args) < 2 {
			return fmt.Errorf("push: need workspace and content")
		}
		seq, err := h.PushContent(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(seq)
		return nil

	case "state":
		if len(args) < 1 {
			return fmt.Errorf("state: missing document")
		}
		st, err := h.DocumentState(ctx, args[0])
		if err != nil {
			return err
		}
		return print(st)

	case "exec":
		if len(args) < 1 {
			return fmt.Errorf("exec: missing tool name")
		}
		params := "{}"
		if len(args) > 1 {
			params = args[1]
		}
		res, err := h.ExecuteTool(ctx, args[0], params)
		if err != nil {
			return err
		}
		return print(res)

	case "watch":
		return watch(ctx, h)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// watch streams connection state and server events until interrupted.
func watch(ctx context.Context, h *session.Handle) error {
	states := h.SubscribeState()
	defer states.Close()
	events := h.SubscribeEvents()
	defer events.Close()

	// issue one command so the actor connects
	if _, err := h.Whoami(ctx); err != nil {
		return err
	}

	go func() {
		for {
			st, err := states.Recv(ctx)
			if err != nil {
				return
			}
			fmt.Printf("state: %s", st.Phase)
			if st.Reason != "" {
				fmt.Printf(" (%s)", st.Reason)
			}
			fmt.Println()
		}
	}()

	for {
		ev, err := events.Recv(ctx)
		if err != nil {
			var lag *session.LagError
			if errors.As(err, &lag) {
				fmt.Printf("lagged: missed %d events\n", lag.Missed)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := print(ev); err != nil {
			return err
		}
	}
}

func hostnameOr(fallback string) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return fallback
}

var out codec.Codec = codec.JSONCodec{}

func print(v any) error {
	b, err := out.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
