package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/davrbek/chatline/internal/daemon"
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

	app := fx.New(
		daemon.Module(params),
	)

	app.Run()
}
