package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/davrbek/chatline/internal/api"
	"github.com/davrbek/chatline/internal/bus"
	"github.com/davrbek/chatline/internal/daemon"
	"github.com/davrbek/chatline/internal/engine"
	"github.com/davrbek/chatline/internal/lock"
	"github.com/davrbek/chatline/internal/logging"
	"github.com/davrbek/chatline/internal/prefs"
	"github.com/davrbek/chatline/internal/profile"
	"github.com/davrbek/chatline/internal/status"
	"github.com/davrbek/chatline/internal/transport"
	"github.com/davrbek/chatline/internal/tui"
	"github.com/davrbek/chatline/internal/typing"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	userFlag := flag.String("user", "", "authenticated user id (or CHATLINE_USER_ID)")
	tokenFlag := flag.String("token", "", "bearer token (or CHATLINE_TOKEN)")
	flag.Parse()

	params, err := daemon.ResolveParams(*profileFlag, *userFlag, *tokenFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(params); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run builds the same component graph as the daemon, in-process, and hands
// it to the TUI.
func run(params daemon.Params) error {
	if err := profile.EnsureDir(params.Profile); err != nil {
		return err
	}
	logger, err := logging.NewFile(profile.LogPath(params.Profile), params.Profile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	lk, err := lock.Acquire(profile.Dir(params.Profile))
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release() }()

	db, err := prefs.Open(profile.PrefsDBPath(params.Profile))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		return err
	}
	deviceID, err := db.DeviceID()
	if err != nil {
		return err
	}

	b := bus.New()
	machine := status.NewMachine(b)
	t := transport.New(params.SocketURL, params.Token, machine, b, logger)
	client := api.New(params.MessageBaseURL, params.Token, deviceID, logger)
	eng := engine.New(params.UserID, client, t, b, logger)
	caster := typing.NewBroadcaster(t, logger)

	eng.BindTransport(t)
	go func() {
		if err := t.Connect(context.Background()); err != nil {
			logger.Error("connect failed", zap.Error(err))
		}
	}()
	defer func() {
		t.Disconnect()
		eng.Wait()
	}()

	return tui.NewApp(eng, b, caster, machine, params.Profile).Run()
}
