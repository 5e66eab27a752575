package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	skap "github.com/lucannez64/skapauto-firefox-sub000"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/fakeserver"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/metrics"
)

var formatFlag = &cli.StringFlag{
	Name:    "format",
	Aliases: []string{"f"},
	Value:   "text",
	Usage:   "Output format: 'text' or 'json'",
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a new account file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Required: true,
				Usage:    "Account email",
			},
			&cli.BoolFlag{
				Name:  "no-id",
				Usage: "Do not assign a user id; the email identifies the account",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing account file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runKeygen(cmd.Root().Writer, cfg.AccountFile, cmd.String("email"), !cmd.Bool("no-id"), cmd.Bool("force"))
		},
	}
}

func runKeygen(w io.Writer, path, email string, withID, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}

	var id *uuid.UUID
	if withID {
		u := uuid.New()
		id = &u
	}
	acct, err := skap.GenerateAccount(email, id)
	if err != nil {
		return err
	}
	defer acct.Wipe()

	if err := acct.WriteFile(path); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s\n", path)
	fmt.Fprintf(w, "id:          %s\n", acct.ID())
	fmt.Fprintf(w, "fingerprint: %s\n", acct.Fingerprint())
	return nil
}

type accountInfo struct {
	Email               string `json:"email"`
	ID                  string `json:"id"`
	HasUserID           bool   `json:"has_user_id"`
	Fingerprint         string `json:"fingerprint"`
	KEMPublicKeySize    int    `json:"kem_public_key_size"`
	SignaturePublicSize int    `json:"signature_public_key_size"`
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Show the identity stored in an account file",
		Flags: []cli.Flag{formatFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := skap.New(skap.WithLogger(newLogger(cmd, cfg)))
			if err != nil {
				return err
			}
			defer client.Close()

			acct, err := client.LoadAccountFile(cfg.AccountFile)
			if err != nil {
				return err
			}
			defer acct.Wipe()

			id := acct.Identity()
			info := accountInfo{
				Email:               acct.Email(),
				ID:                  acct.ID(),
				HasUserID:           id.UserID != nil,
				Fingerprint:         acct.Fingerprint(),
				KEMPublicKeySize:    len(id.KEMPublicKey),
				SignaturePublicSize: len(id.SignaturePublicKey),
			}

			w := cmd.Root().Writer
			if cmd.String("format") == "json" {
				return writeJSON(w, info)
			}
			fmt.Fprintf(w, "email:       %s\n", info.Email)
			fmt.Fprintf(w, "id:          %s\n", info.ID)
			fmt.Fprintf(w, "fingerprint: %s\n", info.Fingerprint)
			fmt.Fprintf(w, "kem pk:      %d bytes\n", info.KEMPublicKeySize)
			fmt.Fprintf(w, "sig pk:      %d bytes\n", info.SignaturePublicSize)
			return nil
		},
	}
}

// withAccount loads the configured account into a new client and runs fn.
func withAccount(cmd *cli.Command, fn func(client *skap.Client, acct *skap.Account) error, opts ...skap.Option) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := newClient(cmd, cfg, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	acct, err := client.LoadAccountFile(cfg.AccountFile)
	if err != nil {
		return err
	}
	defer acct.Wipe()
	return fn(client, acct)
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Authenticate the account and cache the session token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withAccount(cmd, func(client *skap.Client, acct *skap.Account) error {
				result := client.Authenticate(ctx, acct)
				if !result.OK() {
					return result.Err
				}
				if err := client.RememberAccount(acct); err != nil {
					return err
				}
				fmt.Fprintf(cmd.Root().Writer, "%s: %s\n", acct.Email(), result.State)
				return nil
			})
		},
	}
}

type listOutput struct {
	Owned   []skap.OwnedCredential  `json:"owned"`
	Shared  []skap.SharedCredential `json:"shared"`
	Shares  []skap.ShareInfo        `json:"shares"`
	Skipped int                     `json:"skipped"`
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List and decrypt every credential visible to the account",
		Flags: []cli.Flag{
			formatFlag,
			&cli.BoolFlag{
				Name:  "show-passwords",
				Usage: "Print passwords in text output",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withAccount(cmd, func(client *skap.Client, acct *skap.Account) error {
				list, err := client.FetchAllCredentials(ctx, acct)
				if err != nil {
					return err
				}

				w := cmd.Root().Writer
				if cmd.String("format") == "json" {
					return writeJSON(w, listOutput{
						Owned:   list.Owned,
						Shared:  list.Shared,
						Shares:  list.Shares,
						Skipped: list.Skipped,
					})
				}
				return printList(w, list, cmd.Bool("show-passwords"))
			})
		},
	}
}

func printList(w io.Writer, list *skap.CredentialList, showPasswords bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tUSERNAME\tURL\tPASSWORD")
	password := func(c *skap.Credential) string {
		if showPasswords {
			return c.Password
		}
		return "********"
	}
	for _, rec := range list.Owned {
		fmt.Fprintf(tw, "%s\t-\t%s\t%s\t%s\n", rec.ID, rec.Credential.Username, deref(rec.Credential.URL), password(&rec.Credential))
	}
	for _, rec := range list.Shared {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Owner, rec.Credential.Username, deref(rec.Credential.URL), password(&rec.Credential))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	pending := 0
	for _, s := range list.Shares {
		if s.Status == skap.SharePending {
			pending++
		}
	}
	if pending > 0 {
		fmt.Fprintf(w, "%d pending share(s)\n", pending)
	}
	if list.Skipped > 0 {
		fmt.Fprintf(w, "%d record(s) could not be decrypted\n", list.Skipped)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func optional(cmd *cli.Command, name string) *string {
	if !cmd.IsSet(name) {
		return nil
	}
	return skap.Opt(cmd.String(name))
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Encrypt and store a new credential",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Usage: "Username"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password; read from stdin when omitted"},
			&cli.StringFlag{Name: "url", Usage: "Site URL"},
			&cli.StringFlag{Name: "app-id", Usage: "Application id"},
			&cli.StringFlag{Name: "description", Usage: "Free-form description"},
			&cli.StringFlag{Name: "otp", Usage: "OTP secret or otpauth URI"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			password := cmd.String("password")
			if !cmd.IsSet("password") {
				p, err := readLine(cmd.Root().Reader)
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = p
			}
			cred := &skap.Credential{
				Password:    password,
				Username:    cmd.String("username"),
				URL:         optional(cmd, "url"),
				AppID:       optional(cmd, "app-id"),
				Description: optional(cmd, "description"),
				OTP:         optional(cmd, "otp"),
			}
			return withAccount(cmd, func(client *skap.Client, acct *skap.Account) error {
				if err := client.StoreCredential(ctx, acct, cred); err != nil {
					return err
				}
				fmt.Fprintf(cmd.Root().Writer, "stored credential for %s\n", cred.Username)
				return nil
			})
		},
	}
}

func readLine(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return "", err
	}
	line := string(data)
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

func cacheWipeCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache-wipe",
		Usage: "Wipe the local cache key, making every cached value unreadable",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Lock(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, "cache wiped")
			return nil
		},
	}
}

var errWatchDone = errors.New("watch done")

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print credentials shared with the account as they are offered",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Value: 2 * time.Second,
				Usage: "First wait between polls; grows while nothing arrives",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Exit after the first share",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withAccount(cmd, func(client *skap.Client, acct *skap.Account) error {
				w := cmd.Root().Writer
				err := client.WatchShares(ctx, acct, func(_ context.Context, s skap.ShareInfo) error {
					fmt.Fprintf(w, "share %s from %s\n", s.ID, s.Owner)
					if cmd.Bool("once") {
						return errWatchDone
					}
					return nil
				})
				if errors.Is(err, errWatchDone) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}, skap.WithWatchInterval(cmd.Duration("interval"), 0))
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run an in-memory credential service for local testing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides SKAP_SERVE_ADDR)",
			},
			&cli.StringSliceFlag{
				Name:    "register",
				Aliases: []string{"r"},
				Usage:   "Account file whose public keys are registered at startup (repeatable)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr := cfg.ServeAddr
			if cmd.IsSet("addr") {
				addr = cmd.String("addr")
			}
			logger := newLogger(cmd, cfg)

			opts := []fakeserver.Option{fakeserver.WithLogger(logger)}
			if cfg.MetricsEnabled {
				provider, err := metrics.NewProvider()
				if err != nil {
					return err
				}
				defer func() { _ = provider.Shutdown(context.Background()) }()

				recorder, err := metrics.New(provider.MeterProvider(), cfg.MetricsNamespace)
				if err != nil {
					return err
				}
				opts = append(opts, fakeserver.WithRecorder(recorder), fakeserver.WithMetricsHandler(provider.Handler()))
			}
			srv := fakeserver.New(opts...)

			if err := registerAccounts(cmd, srv, cmd.StringSlice("register")); err != nil {
				return err
			}
			return srv.ListenAndServe(ctx, addr)
		},
	}
}

func registerAccounts(cmd *cli.Command, srv *fakeserver.Server, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	client, err := skap.New()
	if err != nil {
		return err
	}
	defer client.Close()

	for _, path := range paths {
		acct, err := client.LoadAccountFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		id := acct.Identity()
		srv.Register(acct.ID(), id.SignaturePublicKey, id.KEMPublicKey)
		acct.Wipe()
		fmt.Fprintf(cmd.Root().Writer, "registered %s (%s)\n", acct.Email(), acct.ID())
	}
	return nil
}

