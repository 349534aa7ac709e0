package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/huddle-sports/huddle/pkg/backend"
	"github.com/huddle-sports/huddle/pkg/config"
	"github.com/huddle-sports/huddle/pkg/events"
	"github.com/huddle-sports/huddle/pkg/pages"
	"github.com/huddle-sports/huddle/pkg/secrets"
	"github.com/huddle-sports/huddle/pkg/session"
)

type options struct {
	Config  string   `short:"f" long:"config" env:"HUDDLE_CONFIG" description:"settings file, yaml or toml"`
	EnvFile []string `long:"env-file" env:"HUDDLE_ENV_FILE" env-delim:"," default:".env" description:"env files with backend settings"`
	URL     string   `long:"url" description:"backend url, overrides settings [$SUPABASE_URL]"`
	AnonKey string   `long:"anon-key" description:"backend anon key, overrides settings [$SUPABASE_ANON_KEY]"`

	SecretsProvider SecretsProvider `group:"secrets" namespace:"secrets" env-namespace:"HUDDLE_SECRETS"`

	Status struct{} `command:"status" description:"show backend configuration and session state"`

	Login struct {
		Email    string `short:"e" long:"email" description:"user email"`
		Password string `short:"p" long:"password" env:"HUDDLE_PASSWORD" description:"user password, asked if not set"`
		Provider string `long:"provider" description:"oauth provider, prints the authorization url"`
		Redirect string `long:"redirect" description:"oauth redirect url"`
	} `command:"login" description:"sign in with email and password or an oauth provider"`

	Logout struct{} `command:"logout" description:"sign out and remove the local session"`
	WhoAmI struct{} `command:"whoami" description:"show the signed-in user"`

	Events struct {
		List struct {
			Sport string `short:"s" long:"sport" description:"filter by sport"`
			Limit int    `short:"n" long:"limit" default:"20" description:"max events to show"`
		} `command:"list" description:"list upcoming events"`

		Create struct {
			Title       string        `short:"t" long:"title" required:"true" description:"event title"`
			Sport       string        `short:"s" long:"sport" required:"true" description:"sport"`
			Location    string        `short:"l" long:"location" required:"true" description:"location"`
			Description string        `short:"d" long:"description" description:"event description"`
			Start       string        `long:"start" required:"true" description:"start time, RFC3339 or \"2006-01-02 15:04\" local"`
			Duration    time.Duration `long:"duration" default:"90m" description:"event duration"`
			Capacity    int           `short:"c" long:"capacity" default:"10" description:"max participants"`
			SkillLevel  string        `long:"skill" description:"skill level"`
		} `command:"create" description:"host a new event"`

		Import struct {
			Concurrent     int `short:"c" long:"concurrent" default:"4" description:"concurrent uploads"`
			PositionalArgs struct {
				File string `positional-arg-name:"file" description:"yaml file with a list of events"`
			} `positional-args:"yes" required:"yes"`
		} `command:"import" description:"create events from a yaml file"`

		Show   eventCmd `command:"show" description:"show an event with its participants"`
		Join   eventCmd `command:"join" description:"join an event"`
		Leave  eventCmd `command:"leave" description:"leave an event"`
		Cancel eventCmd `command:"cancel" description:"cancel a hosted event"`
	} `command:"events" description:"manage events"`

	Dbg bool `long:"dbg" description:"debug mode"`
}

type eventCmd struct {
	PositionalArgs struct {
		ID string `positional-arg-name:"id" description:"event id"`
	} `positional-args:"yes" required:"yes"`
}

// SecretsProvider defines secrets provider options, for all supported providers
type SecretsProvider struct {
	Provider string `long:"provider" env:"PROVIDER" description:"secret provider type" choice:"none" choice:"env" choice:"internal" choice:"vault" choice:"aws" choice:"ansible" default:"none"`

	Key       string `long:"key" env:"KEY" description:"secure key for internal secrets provider"`
	Conn      string `long:"conn" env:"CONN" description:"connection string for internal secrets provider" default:"huddle-secrets.db"`
	EnvPrefix string `long:"env-prefix" env:"ENV_PREFIX" description:"variables prefix for env secrets provider" default:"HUDDLE_SECRET_"`

	Vault struct {
		Token string `long:"token" env:"TOKEN" description:"vault token"`
		Path  string `long:"path"  env:"PATH" description:"vault path"`
		URL   string `long:"url" env:"URL" description:"vault url"`
	} `group:"vault" namespace:"vault" env-namespace:"VAULT"`

	Aws struct {
		Region    string `long:"region" env:"REGION" description:"aws region"`
		AccessKey string `long:"access-key" env:"ACCESS_KEY" description:"aws access key"`
		SecretKey string `long:"secret-key" env:"SECRET_KEY" description:"aws secret key"`
	} `group:"aws" namespace:"aws" env-namespace:"AWS"`

	Ansible struct {
		File   string `long:"file" env:"FILE" description:"ansible vault file"`
		Secret string `long:"secret" env:"SECRET" description:"ansible vault password"`
	} `group:"ansible" namespace:"ansible" env-namespace:"ANSIBLE"`
}

const defaultSessionDir = "~/.config/huddle"

var revision = "latest"

var exitFunc = os.Exit

var stderr io.Writer = os.Stderr

func main() {
	fmt.Printf("huddle %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
		return
	}
	setupLog(opts.Dbg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &cli{opts: opts, out: os.Stdout, readPassword: readPassword}
	if err := app.run(ctx, p); err != nil {
		if opts.Dbg {
			log.Printf("[ERROR] %v", err)
		}
		fmt.Printf("failed, %v\n", err)
		exitFunc(1)
	}
}

// cli runs the selected command, dependencies are made once in setup
type cli struct {
	opts         options
	out          io.Writer
	readPassword func() (string, error)

	settings *config.Settings
	client   backend.Interface
	events   *events.Service
}

func (c *cli) run(ctx context.Context, p *flags.Parser) error {
	if p.Active == nil {
		return errors.New("no command, see --help")
	}
	if err := c.setup(); err != nil {
		return err
	}

	leaf := p.Active
	for leaf.Active != nil {
		leaf = leaf.Active
	}
	active := func(path ...string) bool {
		cmd := p.Command
		for _, name := range path {
			if cmd = cmd.Find(name); cmd == nil {
				return false
			}
		}
		return cmd == leaf
	}

	switch {
	case active("status"):
		return c.status(ctx)
	case active("login"):
		return c.login(ctx)
	case active("logout"):
		return c.logout(ctx)
	case active("whoami"):
		return c.whoami(ctx)
	case active("events", "list"):
		return c.listEvents(ctx)
	case active("events", "create"):
		return c.createEvent(ctx)
	case active("events", "import"):
		return c.importEvents(ctx)
	case active("events", "show"):
		return c.showEvent(ctx, c.opts.Events.Show.PositionalArgs.ID)
	case active("events", "join"):
		return c.done(c.events.Join(ctx, c.opts.Events.Join.PositionalArgs.ID), "joined")
	case active("events", "leave"):
		return c.done(c.events.Leave(ctx, c.opts.Events.Leave.PositionalArgs.ID), "left")
	case active("events", "cancel"):
		return c.done(c.events.Cancel(ctx, c.opts.Events.Cancel.PositionalArgs.ID), "cancelled")
	}
	return fmt.Errorf("unknown command %q", leaf.Name)
}

// setup loads settings and makes the backend client with its session store
func (c *cli) setup() error {
	sp, err := makeSecretsProvider(c.opts.SecretsProvider)
	if err != nil {
		return fmt.Errorf("can't make secrets provider: %w", err)
	}

	cfgFile, err := expandPath(c.opts.Config)
	if err != nil {
		return fmt.Errorf("can't expand config path %q: %w", c.opts.Config, err)
	}
	c.settings, err = config.Loader{File: cfgFile, DotEnv: c.opts.EnvFile, Secrets: sp}.Load()
	if err != nil {
		return fmt.Errorf("can't load settings: %w", err)
	}
	if c.opts.URL != "" {
		c.settings.URL = c.opts.URL
	}
	if c.opts.AnonKey != "" {
		c.settings.AnonKey = c.opts.AnonKey
	}
	setupLog(c.opts.Dbg, c.settings.AnonKey, c.settings.Session.Key, c.settings.Session.RedisPassword) // mask secrets in logs

	params := c.settings.SessionParams()
	if params.Type == "file" && params.Dir == "" {
		if params.Dir, err = expandPath(defaultSessionDir); err != nil {
			return fmt.Errorf("can't expand session dir: %w", err)
		}
	}
	store, err := session.New(params)
	if err != nil {
		return fmt.Errorf("can't make session store: %w", err)
	}

	c.client = backend.New(c.settings.Backend(store))
	c.events = events.NewService(c.client)
	return nil
}

func (c *cli) status(ctx context.Context) error {
	if !c.client.Configured() {
		fmt.Fprintln(c.out, color.New(color.FgHiRed).Sprint("backend: not configured, set SUPABASE_URL and SUPABASE_ANON_KEY"))
	} else {
		fmt.Fprintf(c.out, "backend: %s\n", c.settings.URL)
	}
	fmt.Fprintf(c.out, "session store: %s\n", c.settings.Session.Type)

	sess, err := c.client.Auth().GetSession(ctx)
	if err != nil {
		return fmt.Errorf("can't get session: %w", err)
	}
	if sess == nil || sess.User == nil {
		fmt.Fprintln(c.out, "session: anonymous")
		return nil
	}
	fmt.Fprintf(c.out, "session: signed in as %s, expires %s\n", sess.User.Email,
		time.Unix(sess.ExpiresAt, 0).Format(time.RFC3339))
	return nil
}

func (c *cli) login(ctx context.Context) error {
	page := &pages.Login{Client: c.client, RedirectTo: c.opts.Login.Redirect}
	if c.opts.Login.Provider != "" {
		return c.show(page.Social(ctx, c.opts.Login.Provider))
	}
	if c.opts.Login.Email == "" {
		return errors.New("email or oauth provider is required")
	}

	password := c.opts.Login.Password
	if password == "" {
		var err error
		if password, err = c.readPassword(); err != nil {
			return fmt.Errorf("can't read password: %w", err)
		}
	}
	return c.show(page.Submit(ctx, c.opts.Login.Email, password))
}

func (c *cli) logout(ctx context.Context) error {
	if err := c.client.Auth().SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "signed out")
	return nil
}

func (c *cli) whoami(ctx context.Context) error {
	usr, err := c.client.Auth().GetUser(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrSessionMissing) {
			fmt.Fprintln(c.out, "anonymous")
			return nil
		}
		return err
	}
	if usr == nil {
		fmt.Fprintln(c.out, "anonymous")
		return nil
	}
	fmt.Fprintf(c.out, "%s (%s)\n", usr.Email, usr.ID)
	return nil
}

func (c *cli) listEvents(ctx context.Context) error {
	list, err := c.events.ListUpcoming(ctx, events.ListFilter{Sport: c.opts.Events.List.Sport, Limit: c.opts.Events.List.Limit})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "no upcoming events")
		return nil
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTS\tSPORT\tTITLE\tLOCATION\tCAPACITY")
	for _, e := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", e.ID, e.StartsAt.Local().Format("Mon Jan 2 15:04"),
			e.Sport, e.Title, e.Location, e.Capacity)
	}
	return w.Flush()
}

func (c *cli) showEvent(ctx context.Context, id string) error {
	e, err := c.events.Get(ctx, id)
	if err != nil {
		return err
	}
	participants, err := c.events.Participants(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s [%s] %s\n", e.Title, e.Status, e.Sport)
	fmt.Fprintf(c.out, "%s, %s - %s\n", e.Location, e.StartsAt.Local().Format("Mon Jan 2 15:04"),
		e.EndsAt.Local().Format("15:04"))
	fmt.Fprintf(c.out, "participants: %d/%d\n", len(participants), e.Capacity)
	return nil
}

// done reports a successful event action
func (c *cli) done(err error, action string) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, action)
	return nil
}

func (c *cli) createEvent(ctx context.Context) error {
	page := &pages.CreateEvent{Client: c.client, Events: c.events}
	if out := page.Mount(ctx); !out.Render {
		return c.show(out)
	}

	opts := c.opts.Events.Create
	start, err := parseTime(opts.Start)
	if err != nil {
		return err
	}
	e := events.Event{Title: opts.Title, Sport: opts.Sport, Location: opts.Location, Description: opts.Description,
		StartsAt: start, EndsAt: start.Add(opts.Duration), Capacity: opts.Capacity, SkillLevel: opts.SkillLevel}
	return c.show(page.Submit(ctx, e))
}

func (c *cli) importEvents(ctx context.Context) error {
	fname, err := expandPath(c.opts.Events.Import.PositionalArgs.File)
	if err != nil {
		return fmt.Errorf("can't expand path: %w", err)
	}
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return fmt.Errorf("can't read %s: %w", fname, err)
	}
	var list []events.Event
	if err := yaml.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("can't parse %s: %w", fname, err)
	}
	log.Printf("[INFO] importing %d events from %s", len(list), fname)

	st := time.Now()
	created := make([]*events.Event, len(list)) // each goroutine writes its own slot
	wg := syncs.NewErrSizedGroup(c.opts.Events.Import.Concurrent, syncs.Context(ctx), syncs.Preemptive)
	for i := range list {
		e := list[i]
		wg.Go(func() error {
			res, err := c.events.Create(ctx, e)
			if err != nil {
				return fmt.Errorf("event %q: %w", e.Title, err)
			}
			created[i] = res
			return nil
		})
	}
	err = wg.Wait()
	for _, e := range created {
		if e != nil {
			fmt.Fprintf(c.out, "created %s %q\n", e.ID, e.Title)
		}
	}
	if err != nil {
		return fmt.Errorf("can't import all events: %w", err)
	}
	log.Printf("[INFO] imported %d events in %v", len(list), time.Since(st).Truncate(100*time.Millisecond))
	return nil
}

// show prints the controller outcome, destructive notices are returned as errors
func (c *cli) show(out pages.Outcome) error {
	if out.Notice != nil && out.Notice.Variant == pages.VariantDestructive {
		return fmt.Errorf("%s: %s", strings.ToLower(out.Notice.Title), out.Notice.Description)
	}
	if out.Notice != nil {
		fmt.Fprintf(c.out, "%s %s\n", color.New(color.FgGreen).Sprint(out.Notice.Title), out.Notice.Description)
	}
	if out.Redirect != "" {
		fmt.Fprintf(c.out, "-> %s\n", out.Redirect)
	}
	return nil
}

func makeSecretsProvider(sopts SecretsProvider) (secrets.Provider, error) {
	return secrets.New(secrets.Params{
		Provider:      sopts.Provider,
		Key:           sopts.Key,
		Conn:          sopts.Conn,
		EnvPrefix:     sopts.EnvPrefix,
		VaultURL:      sopts.Vault.URL,
		VaultPath:     sopts.Vault.Path,
		VaultToken:    sopts.Vault.Token,
		AwsRegion:     sopts.Aws.Region,
		AwsAccessKey:  sopts.Aws.AccessKey,
		AwsSecretKey:  sopts.Aws.SecretKey,
		AnsibleFile:   sopts.Ansible.File,
		AnsibleSecret: sopts.Ansible.Secret,
	})
}

// parseTime accepts RFC3339 or "2006-01-02 15:04" in local time
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("can't parse time %q, use RFC3339 or \"2006-01-02 15:04\"", s)
	}
	return t, nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd()) // nolint gosec
	if !term.IsTerminal(fd) {
		return "", errors.New("password is not set and stdin is not a terminal")
	}
	fmt.Print("password: ")
	pwd, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		usr, err := user.Current()
		if err != nil {
			return "", err
		}
		return filepath.Join(usr.HomeDir, path[1:]), nil
	}
	return path, nil
}

// warnWriter passes only WARN and ERROR lines, the rest is dropped
type warnWriter struct {
	wr io.Writer
}

func (w warnWriter) Write(p []byte) (int, error) {
	if !bytes.Contains(p, []byte("[WARN]")) && !bytes.Contains(p, []byte("[ERROR]")) {
		return len(p), nil
	}
	if _, err := w.wr.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func setupLog(dbg bool, secretVals ...string) {
	// warnings and errors go to stderr, the rest is discarded
	logOpts := []lgr.Option{lgr.Out(warnWriter{wr: stderr}), lgr.Err(io.Discard), lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	var masked []string
	for _, v := range secretVals {
		if v != "" {
			masked = append(masked, v)
		}
	}
	if len(masked) > 0 {
		logOpts = append(logOpts, lgr.Secret(masked...))
	}

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
