package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/tokenward/internal/apiclient"
)

func requestCommand() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "send an authenticated request to the application API",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "JSON request body",
			},
			&cli.StringSliceFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "query parameter as key=value (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "request header as key=value (repeatable)",
			},
		},
		Action: requestAction,
	}
}

func requestAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected METHOD and PATH, got %d arguments", cmd.Args().Len())
	}
	method := strings.ToUpper(cmd.Args().Get(0))
	path := cmd.Args().Get(1)

	opts, err := requestOptions(cmd)
	if err != nil {
		return err
	}

	a, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := a.API.Do(ctx, method, path, opts...)
	if err != nil {
		var reqErr *apiclient.RequestError
		switch {
		case errors.Is(err, apiclient.ErrUnauthorized):
			return errors.New("session expired, log in again")
		case errors.As(err, &reqErr):
			return fmt.Errorf("%d: %s", reqErr.StatusCode, reqErr.Message)
		default:
			return err
		}
	}

	out := cmd.Root().Writer
	if resp.JSON != nil {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Body, "", "  "); err == nil {
			pretty.WriteByte('\n')
			_, err = pretty.WriteTo(out)
			return err
		}
	}
	_, err = out.Write(resp.Body)
	return err
}

func requestOptions(cmd *cli.Command) ([]apiclient.RequestOption, error) {
	var opts []apiclient.RequestOption

	for _, kv := range cmd.StringSlice("query") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid query parameter %q, want key=value", kv)
		}
		opts = append(opts, apiclient.WithQuery(key, value))
	}
	for _, kv := range cmd.StringSlice("header") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, want key=value", kv)
		}
		opts = append(opts, apiclient.WithHeader(key, value))
	}

	if data := cmd.String("data"); data != "" {
		if !json.Valid([]byte(data)) {
			return nil, errors.New("request body is not valid JSON")
		}
		opts = append(opts, apiclient.WithRawBody("application/json", []byte(data)))
	}
	return opts, nil
}
