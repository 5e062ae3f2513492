package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/xeptore/tdl/config"
	"github.com/xeptore/tdl/constants"
	"github.com/xeptore/tdl/log"
	"github.com/xeptore/tdl/ptr"
	"github.com/xeptore/tdl/ratelimit"
	"github.com/xeptore/tdl/store"
	"github.com/xeptore/tdl/tidal"
	"github.com/xeptore/tdl/tidal/api"
	"github.com/xeptore/tdl/tidal/auth"
	"github.com/xeptore/tdl/tidal/metadata"
	"github.com/xeptore/tdl/tidal/mux"
	"github.com/xeptore/tdl/tidal/types"
)

func main() {
	logger := log.NewDefault()

	//nolint:exhaustruct
	app := &cli.Command{
		Name:    "tdl",
		Version: constants.Version,
		Metadata: map[string]any{
			"compiled_at": constants.CompileTime,
		},
		Suggest:                    true,
		Usage:                      "Tidal track and album downloader",
		EnableShellCompletion:      true,
		ShellCompletionCommandName: "shell-completion",
		AllowExtFlags:              false,
		Flags: []cli.Flag{
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:     "config",
				Usage:    "Config file path",
				Required: false,
			},
		},
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:      "track",
				Usage:     "Download a single track",
				ArgsUsage: "<id|link>",
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.Uint16Flag{
						Name:  "number",
						Usage: "Track number to write into the track tags",
					},
				},
				Action: trackRun,
			},
			//nolint:exhaustruct
			{
				Name:      "album",
				Usage:     "Download every track of an album",
				ArgsUsage: "<id|link>",
				Action:    albumRun,
			},
			//nolint:exhaustruct
			{
				Name:      "fetch",
				Usage:     "Download tracks and albums by their links",
				ArgsUsage: "<link>...",
				Action:    fetchRun,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			os.Exit(1)
		}

		var exitCode exitCodeError
		if errors.As(err, &exitCode) {
			os.Exit(int(exitCode))
		}

		logger.Error().Err(err).Msg("Application exited with error")
		os.Exit(10)
	}
}

type exitCodeError int

func (e exitCodeError) Error() string {
	return "error with exit code: " + strconv.Itoa(int(e))
}

func invalidInput(err error) error {
	logger := log.NewDefault()
	logger.Error().Err(err).Msg("Invalid input")
	return exitCodeError(1)
}

func trackRun(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return invalidInput(errors.New("expected exactly one track id or link"))
	}

	link, err := tidal.ParseArg(cmd.Args().First(), types.LinkKindTrack)
	if nil != err {
		return invalidInput(err)
	}

	var number *uint16
	if cmd.IsSet("number") {
		n := cmd.Uint16("number")
		if n == 0 {
			return invalidInput(errors.New("track number must be positive"))
		}
		number = ptr.Of(n)
	}

	return run(ctx, cmd, func(ctx context.Context, logger zerolog.Logger, client *tidal.Client) ([]types.FiledTrack, error) {
		track, err := client.FetchTrack(ctx, logger, link.ID, number)
		if nil != err {
			return nil, err
		}
		return []types.FiledTrack{*track}, nil
	})
}

func albumRun(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return invalidInput(errors.New("expected exactly one album id or link"))
	}

	link, err := tidal.ParseArg(cmd.Args().First(), types.LinkKindAlbum)
	if nil != err {
		return invalidInput(err)
	}

	return run(ctx, cmd, func(ctx context.Context, logger zerolog.Logger, client *tidal.Client) ([]types.FiledTrack, error) {
		return client.FetchAlbum(ctx, logger, link.ID)
	})
}

func fetchRun(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return invalidInput(errors.New("expected at least one link"))
	}

	links := make([]types.Link, 0, cmd.Args().Len())
	for _, arg := range cmd.Args().Slice() {
		link, err := tidal.ParseLink(arg)
		if nil != err {
			return invalidInput(fmt.Errorf("%s: %w", arg, err))
		}
		links = append(links, link)
	}

	return run(ctx, cmd, func(ctx context.Context, logger zerolog.Logger, client *tidal.Client) ([]types.FiledTrack, error) {
		var filed []types.FiledTrack
		for _, link := range links {
			l := logger.With().Str("link_kind", link.Kind.String()).Str("link_id", link.ID).Logger()
			tracks, err := client.Fetch(ctx, l, link)
			filed = append(filed, tracks...)
			if nil != err {
				return filed, err
			}
		}
		return filed, nil
	})
}

type fetchFunc func(ctx context.Context, logger zerolog.Logger, client *tidal.Client) ([]types.FiledTrack, error)

func run(ctx context.Context, cmd *cli.Command, fetch fetchFunc) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.NewDefault()

	if err := godotenv.Load(); nil != err {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env file: %v", err)
		}
		logger.Debug().Msg(".env file was not found")
	} else {
		logger.Debug().Msg(".env file was loaded")
	}

	conf, err := config.Load(cmd.String("config"))
	if nil != err {
		return fmt.Errorf("load config: %v", err)
	}

	logger = log.FromConfig(conf.Log)

	logger.Debug().Dict("config", conf.ToDict()).Msg("Config loaded")

	if conf.Tidal.Credentials.StreamingToken == "" {
		token, err := promptStreamingToken()
		if nil != err {
			if errors.Is(err, syscall.ENOTTY) {
				logger.Error().Msgf("No TTY detected. Please set the %s environment variable.", config.EnvStreamingToken)
				return exitCodeError(1)
			}

			return fmt.Errorf("prompt for streaming token: %v", err)
		}
		conf.Tidal.Credentials.StreamingToken = token
	}

	httpClient, err := api.NewHTTPClient(conf.Tidal.Proxy)
	if nil != err {
		return fmt.Errorf("create http client: %v", err)
	}

	authCtx, cancel := context.WithTimeout(ctx, time.Duration(conf.Tidal.Timeouts.Auth)*time.Second)
	defer cancel()

	session, err := auth.Authenticate(
		authCtx,
		logger,
		httpClient,
		conf.Tidal.AuthURL,
		conf.Tidal.Credentials.APIClientID,
		conf.Tidal.Credentials.APIClientSecret,
		conf.Tidal.Credentials.StreamingToken,
	)
	if nil != err {
		if errors.Is(err, auth.ErrUnauthorized) {
			logger.Error().Msg("Tidal rejected the API client credentials.")
			return exitCodeError(2)
		}

		return fmt.Errorf("authenticate: %w", err)
	}
	logger.Debug().Dict("session", session.ToDict()).Msg("Authenticated")

	s, err := store.Open(conf.Store.Dir, conf.Store.Overwrite)
	if nil != err {
		return fmt.Errorf("open store: %v", err)
	}

	var (
		limiter   = ratelimit.New(conf.Tidal.RateLimit.RequestsPerSecond, conf.Tidal.RateLimit.Burst)
		apiClient = api.NewClient(httpClient, session, limiter, conf.Tidal)
		client    = tidal.NewClient(metadata.NewResolver(apiClient), apiClient, mux.New(conf.Muxer), s, conf.Store)
	)

	filed, err := fetch(ctx, logger, client)
	if len(filed) > 0 {
		printSummary(os.Stdout, filed)
	}
	if nil != err {
		if errors.Is(err, auth.ErrUnauthorized) {
			logger.Error().Err(err).Msg("Tidal rejected the session credentials. Please renew the streaming token.")
			return exitCodeError(2)
		}

		return err
	}
	logger.Info().Int("tracks", len(filed)).Msg("Done")

	return nil
}
