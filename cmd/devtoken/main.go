// Command devtoken mints identity tokens signed with the server secret, for local setups
// without an identity provider.
package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/service/auth"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	secret = configVar[string]{
		envKey:       "SERVER_SECRET",
		flagKey:      "secret",
		defaultValue: "",
		usage:        "Secret the server verifies identity tokens with",
	}
	userId = configVar[string]{
		envKey:       "DEVTOKEN_USER_ID",
		flagKey:      "user-id",
		defaultValue: "",
		usage:        "User id carried by the token",
	}
	username = configVar[string]{
		envKey:       "DEVTOKEN_USERNAME",
		flagKey:      "username",
		defaultValue: "",
		usage:        "Username carried by the token",
	}
	email = configVar[string]{
		envKey:       "DEVTOKEN_EMAIL",
		flagKey:      "email",
		defaultValue: "",
		usage:        "Optional email carried by the token",
	}
	anonymous = configVar[bool]{
		envKey:       "DEVTOKEN_ANONYMOUS",
		flagKey:      "anonymous",
		defaultValue: false,
		usage:        "Mark the identity as anonymous",
	}
	ttl = configVar[time.Duration]{
		envKey:       "DEVTOKEN_TTL",
		flagKey:      "ttl",
		defaultValue: 24 * time.Hour,
		usage:        "Token lifetime",
	}
)

func bind[T any](v configVar[T]) {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func mintToken(secret string, identity domain.Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if identity.Id == "" || identity.Username == "" {
		return "", errors.New("user id and username are required")
	}

	return auth.NewVerifier(secret).Issue(identity, ttl)
}

func main() {
	pflag.String(secret.flagKey, secret.defaultValue, secret.usage)
	pflag.String(userId.flagKey, userId.defaultValue, userId.usage)
	pflag.String(username.flagKey, username.defaultValue, username.usage)
	pflag.String(email.flagKey, email.defaultValue, email.usage)
	pflag.Bool(anonymous.flagKey, anonymous.defaultValue, anonymous.usage)
	pflag.Duration(ttl.flagKey, ttl.defaultValue, ttl.usage)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	bind(secret)
	bind(userId)
	bind(username)
	bind(email)
	bind(anonymous)
	bind(ttl)

	token, err := mintToken(viper.GetString(secret.flagKey), domain.Identity{
		Id:          viper.GetString(userId.flagKey),
		Username:    viper.GetString(username.flagKey),
		Email:       viper.GetString(email.flagKey),
		IsAnonymous: viper.GetBool(anonymous.flagKey),
	}, viper.GetDuration(ttl.flagKey))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(token)
}
