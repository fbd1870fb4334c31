package daemon

import (
	"fmt"
	"os"

	"github.com/davrbek/chatline/internal/config"
	"github.com/davrbek/chatline/internal/profile"
)

// ResolveParams builds Params from command-line flags, the environment
// (CHATLINE_USER_ID, CHATLINE_TOKEN), and ~/.chatline/config.toml.
func ResolveParams(profileFlag, userFlag, tokenFlag string) (Params, error) {
	name := profile.Resolve(profileFlag)
	if err := profile.ValidateName(name); err != nil {
		return Params{}, err
	}

	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		return Params{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.MessageBaseURL == "" {
		return Params{}, fmt.Errorf("config: message_base_url is not set")
	}

	user := userFlag
	if user == "" {
		user = os.Getenv("CHATLINE_USER_ID")
	}
	token := tokenFlag
	if token == "" {
		token = os.Getenv("CHATLINE_TOKEN")
	}
	if user == "" {
		return Params{}, fmt.Errorf("user id required (--user or CHATLINE_USER_ID)")
	}
	if token == "" {
		return Params{}, fmt.Errorf("token required (--token or CHATLINE_TOKEN)")
	}

	return Params{
		Profile:        name,
		UserID:         user,
		Token:          token,
		MessageBaseURL: cfg.MessageBaseURL,
		SocketURL:      cfg.ResolveSocketURL(),
	}, nil
}
