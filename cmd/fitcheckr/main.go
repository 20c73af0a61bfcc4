package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fitcheckr/fitcheckr/ingest"
	"github.com/fitcheckr/fitcheckr/models"
	"github.com/fitcheckr/fitcheckr/orchestrator"
	"github.com/fitcheckr/fitcheckr/tryonclient"
	"github.com/fitcheckr/fitcheckr/utils"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "fitcheckr",
		Usage: "virtual try-on and subscriber tooling for a fitcheckr server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", Usage: "base URL of the fitcheckr API", EnvVars: []string{"FITCHECKR_SERVER"}},
			&cli.StringFlag{Name: "secret", Usage: "admin secret", EnvVars: []string{"ADMIN_SECRET"}},
			&cli.StringFlag{Name: "token", Usage: "admin bearer token, used instead of --secret", EnvVars: []string{"FITCHECKR_ADMIN_TOKEN"}},
			&cli.BoolFlag{Name: "debug", Usage: "log API calls"},
		},
		Commands: []*cli.Command{
			tryOnCommand(),
			subscribeCommand(),
			subscribersCommand(),
			adminTokenCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) zerolog.Logger {
	env := "production"
	if c.Bool("debug") {
		env = "development"
	}
	return utils.NewLogger(env).Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func newClient(c *cli.Context) (*tryonclient.Client, error) {
	logger := newLogger(c)
	return tryonclient.New(tryonclient.Options{
		BaseURL:     c.String("server"),
		Logger:      &logger,
		AdminSecret: c.String("secret"),
		AdminToken:  c.String("token"),
	})
}

func tryOnCommand() *cli.Command {
	return &cli.Command{
		Name:  "tryon",
		Usage: "composite a clothing item onto a person photo",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "person photo: file path or image URL"},
			&cli.StringFlag{Name: "article", Required: true, Usage: "clothing item: file path, image URL or product page URL"},
			&cli.StringFlag{Name: "out", Usage: "where to write the result (default tryon.<ext>)"},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "give up after this long"},
			&cli.StringSliceFlag{Name: "render", Usage: "browsers to try for script-heavy product pages: chrome, selenium"},
			&cli.StringFlag{Name: "chromedriver", Value: "/usr/local/bin/chromedriver", Usage: "chromedriver binary for --render selenium"},
		},
		Action: func(c *cli.Context) error {
			client, err := newClient(c)
			if err != nil {
				return err
			}
			logger := newLogger(c)
			renderers, err := pageRenderers(c.StringSlice("render"), c.String("chromedriver"))
			if err != nil {
				return err
			}
			in := ingest.NewIngestor(nil, renderers...)
			session := &orchestrator.Session{}

			if err := session.User.Load(loadImage(c.Context, in, c.String("user"), false)); err != nil {
				return cli.Exit(describe("person photo", err), 2)
			}
			if err := session.Article.Load(loadImage(c.Context, in, c.String("article"), true)); err != nil {
				return cli.Exit(describe("clothing item", err), 2)
			}

			ctrl := orchestrator.New(client, session, orchestrator.Options{
				Timeout: c.Duration("timeout"),
				Logger:  &logger,
				OnChange: func(st orchestrator.State) {
					if p, ok := st.(orchestrator.Processing); ok {
						fmt.Fprintln(os.Stderr, p.Status)
					}
				},
			})

			st, _ := ctrl.Run(c.Context)
			switch st := st.(type) {
			case orchestrator.Complete:
				return writeResult(c.String("out"), st.Result)
			case orchestrator.Idle:
				if st.Notice == "" {
					return cli.Exit("canceled", 130)
				}
				msg := st.Notice
				if st.Technical != "" && c.Bool("debug") {
					msg += "\n" + st.Technical
				}
				return cli.Exit(msg, 1)
			default:
				return cli.Exit("unexpected state "+orchestrator.Name(st), 1)
			}
		},
	}
}

func pageRenderers(names []string, chromeDriver string) ([]ingest.PageRenderer, error) {
	var renderers []ingest.PageRenderer
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "chrome", "chromedp":
			renderers = append(renderers, ingest.ChromeRenderer{})
		case "selenium":
			renderers = append(renderers, ingest.NewSeleniumRenderer(chromeDriver, 4444, 4))
		default:
			return nil, fmt.Errorf("unknown renderer %q", name)
		}
	}
	return renderers, nil
}

func loadImage(ctx context.Context, in *ingest.Ingestor, source string, productPage bool) (*ingest.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if productPage {
			return in.AcceptProductPage(ctx, source)
		}
		return in.AcceptRemoteURL(ctx, source)
	}
	return in.AcceptPath(source)
}

func describe(what string, err error) string {
	switch e := err.(type) {
	case *ingest.ValidationError:
		return fmt.Sprintf("%s: %s", what, e.Message())
	case *ingest.FetchError:
		return fmt.Sprintf("%s: %s", what, e.Message())
	default:
		return fmt.Sprintf("%s: %v", what, err)
	}
}

func writeResult(out string, result models.TryOnResult) error {
	if result.Status != models.TryOnSuccess {
		return cli.Exit("No image produced: "+result.Message, 3)
	}
	data, err := base64.StdEncoding.DecodeString(result.ImagePayload)
	if err != nil {
		return fmt.Errorf("server returned an unreadable image: %w", err)
	}
	if out == "" {
		out = "tryon." + extensionFor(result.MimeType)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Printf("Saved %s (%d bytes)\n", out, len(data))
	if result.Message != "" && result.Message != models.DefaultSuccessMessage {
		fmt.Println(result.Message)
	}
	return nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "add an email address to the mailing list",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
		},
		Action: func(c *cli.Context) error {
			client, err := newClient(c)
			if err != nil {
				return err
			}
			resp, err := client.Subscribe(c.Context, c.String("email"))
			if err != nil {
				return err
			}
			fmt.Printf("%s (total subscribers: %d)\n", resp.Message, resp.TotalSubscribers)
			return nil
		},
	}
}

func subscribersCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribers",
		Usage: "list or export subscribers (requires --secret or --token)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "csv", Usage: "write the CSV export to stdout"},
		},
		Action: func(c *cli.Context) error {
			client, err := newClient(c)
			if err != nil {
				return err
			}
			if c.Bool("csv") {
				return client.Export(c.Context, os.Stdout)
			}
			resp, err := client.Subscribers(c.Context)
			if err != nil {
				return err
			}
			for _, email := range resp.Emails {
				fmt.Println(email)
			}
			fmt.Fprintf(os.Stderr, "%d subscribers (%s)\n", resp.TotalSubscribers, resp.StorageType)
			return nil
		},
	}
}

func adminTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin-token",
		Usage: "issue a bearer token for the admin endpoints, signed with --secret",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "ttl", Value: time.Hour},
		},
		Action: func(c *cli.Context) error {
			token, err := utils.GenerateAdminToken(c.String("secret"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
