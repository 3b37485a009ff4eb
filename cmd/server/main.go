package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/scenesync/server/internal/app"
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
		usage:        "Secret used to verify identity tokens",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
		usage:        "Server port",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 50,
		usage:        "Largest capacity a room may be configured with",
	}
	defaultCapacity = configVar[int]{
		envKey:       "SERVER_DEFAULT_CAPACITY",
		flagKey:      "default-capacity",
		defaultValue: 10,
		usage:        "Capacity of rooms created without one",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
	redisTimeout = configVar[time.Duration]{
		envKey:       "REDIS_TIMEOUT",
		flagKey:      "redis-timeout",
		defaultValue: 3 * time.Second,
		usage:        "Redis dial, read and write timeout",
	}
	chatDBPath = configVar[string]{
		envKey:       "SERVER_CHAT_DB_PATH",
		flagKey:      "chat-db-path",
		defaultValue: "/var/lib/scenesync/chat.db",
		usage:        "Path of the chat history database",
	}
	uploadDir = configVar[string]{
		envKey:       "SERVER_UPLOAD_DIR",
		flagKey:      "upload-dir",
		defaultValue: "/var/lib/scenesync/uploads",
		usage:        "Directory uploaded videos are stored in",
	}
	uploadMaxSize = configVar[int64]{
		envKey:       "SERVER_UPLOAD_MAX_SIZE",
		flagKey:      "upload-max-size",
		defaultValue: 2 << 30,
		usage:        "Maximum size of an uploaded video in bytes",
	}
	uploadPublicPath = configVar[string]{
		envKey:       "SERVER_UPLOAD_PUBLIC_PATH",
		flagKey:      "upload-public-path",
		defaultValue: "/uploads/videos",
		usage:        "URL path uploaded videos are served under",
	}
	wsRate = configVar[float64]{
		envKey:       "SERVER_WS_RATE",
		flagKey:      "ws-rate",
		defaultValue: 20,
		usage:        "Websocket messages per second allowed per connection, 0 disables the limit",
	}
	wsBurst = configVar[int]{
		envKey:       "SERVER_WS_BURST",
		flagKey:      "ws-burst",
		defaultValue: 40,
		usage:        "Websocket message burst allowed per connection",
	}
	inactiveRoomTTL = configVar[time.Duration]{
		envKey:       "SERVER_INACTIVE_ROOM_TTL",
		flagKey:      "inactive-room-ttl",
		defaultValue: 14 * 24 * time.Hour,
		usage:        "How long deactivated rooms are kept",
	}
	resolveVideoMetadata = configVar[bool]{
		envKey:       "SERVER_RESOLVE_VIDEO_METADATA",
		flagKey:      "resolve-video-metadata",
		defaultValue: true,
		usage:        "Look up YouTube titles when a video is set without one",
	}
)

func bind[T any](v configVar[T]) {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	pflag.String(secret.flagKey, secret.defaultValue, secret.usage)
	pflag.Int(port.flagKey, port.defaultValue, port.usage)
	pflag.String(host.flagKey, host.defaultValue, host.usage)
	pflag.String(logLevel.flagKey, logLevel.defaultValue, logLevel.usage)
	pflag.Int(membersLimit.flagKey, membersLimit.defaultValue, membersLimit.usage)
	pflag.Int(defaultCapacity.flagKey, defaultCapacity.defaultValue, defaultCapacity.usage)
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, redisPort.usage)
	pflag.String(redisHost.flagKey, redisHost.defaultValue, redisHost.usage)
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, redisPassword.usage)
	pflag.Duration(redisTimeout.flagKey, redisTimeout.defaultValue, redisTimeout.usage)
	pflag.String(chatDBPath.flagKey, chatDBPath.defaultValue, chatDBPath.usage)
	pflag.String(uploadDir.flagKey, uploadDir.defaultValue, uploadDir.usage)
	pflag.Int64(uploadMaxSize.flagKey, uploadMaxSize.defaultValue, uploadMaxSize.usage)
	pflag.String(uploadPublicPath.flagKey, uploadPublicPath.defaultValue, uploadPublicPath.usage)
	pflag.Float64(wsRate.flagKey, wsRate.defaultValue, wsRate.usage)
	pflag.Int(wsBurst.flagKey, wsBurst.defaultValue, wsBurst.usage)
	pflag.Duration(inactiveRoomTTL.flagKey, inactiveRoomTTL.defaultValue, inactiveRoomTTL.usage)
	pflag.Bool(resolveVideoMetadata.flagKey, resolveVideoMetadata.defaultValue, resolveVideoMetadata.usage)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	bind(secret)
	bind(port)
	bind(host)
	bind(logLevel)
	bind(membersLimit)
	bind(defaultCapacity)
	bind(redisPort)
	bind(redisHost)
	bind(redisPassword)
	bind(redisTimeout)
	bind(chatDBPath)
	bind(uploadDir)
	bind(uploadMaxSize)
	bind(uploadPublicPath)
	bind(wsRate)
	bind(wsBurst)
	bind(inactiveRoomTTL)
	bind(resolveVideoMetadata)

	config := &app.AppConfig{
		Secret:               viper.GetString(secret.flagKey),
		Host:                 viper.GetString(host.flagKey),
		Port:                 viper.GetInt(port.flagKey),
		LogLevel:             viper.GetString(logLevel.flagKey),
		MembersLimit:         viper.GetInt(membersLimit.flagKey),
		DefaultCapacity:      viper.GetInt(defaultCapacity.flagKey),
		RedisPort:            viper.GetInt(redisPort.flagKey),
		RedisHost:            viper.GetString(redisHost.flagKey),
		RedisPassword:        viper.GetString(redisPassword.flagKey),
		RedisTimeout:         viper.GetDuration(redisTimeout.flagKey),
		ChatDBPath:           viper.GetString(chatDBPath.flagKey),
		UploadDir:            viper.GetString(uploadDir.flagKey),
		UploadMaxSize:        viper.GetInt64(uploadMaxSize.flagKey),
		UploadPublicPath:     viper.GetString(uploadPublicPath.flagKey),
		WSRate:               viper.GetFloat64(wsRate.flagKey),
		WSBurst:              viper.GetInt(wsBurst.flagKey),
		InactiveRoomTTL:      viper.GetDuration(inactiveRoomTTL.flagKey),
		ResolveVideoMetadata: viper.GetBool(resolveVideoMetadata.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
