package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/huddle-sports/huddle/pkg/secrets"
)

type options struct {
	Key  string `short:"k" long:"key" env:"HUDDLE_SECRETS_KEY" required:"true" description:"key to use for encryption/decryption"`
	Conn string `short:"c" long:"conn" env:"HUDDLE_SECRETS_CONN" default:"huddle-secrets.db" description:"secrets database, sqlite file, postgres or mysql url"`
	Dbg  bool   `long:"dbg" description:"debug mode"`

	SetCmd struct {
		PositionalArgs struct {
			Key   string `positional-arg-name:"key" description:"secret name, e.g. supabase_url"`
			Value string `positional-arg-name:"value" description:"secret value"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"set" description:"store a secret"`

	GetCmd struct {
		PositionalArgs struct {
			Key string `positional-arg-name:"key" description:"secret name"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"get" description:"show a secret"`

	DeleteCmd struct {
		PositionalArgs struct {
			Key string `positional-arg-name:"key" description:"secret name"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"del" description:"remove a secret"`

	ListCmd struct {
		PositionalArgs struct {
			KeyPrefix string `positional-arg-name:"key-prefix" default:"*" description:"name prefix, all secrets by default"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"list" description:"list secret names"`
}

const keysPerLine = 4

var revision = "latest"

var exitFunc = os.Exit

func main() {
	fmt.Printf("huddle secrets %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
		return
	}
	setupLog(opts.Dbg)

	if err := run(p, opts, os.Stdout); err != nil {
		log.Printf("[WARN] %v", err)
		exitFunc(1)
	}
}

// run executes the active command against the internal secrets store
func run(p *flags.Parser, opts options, out io.Writer) error {
	if p.Active == nil {
		return fmt.Errorf("no command, see --help")
	}
	sp, err := secrets.NewInternalProvider(opts.Conn, []byte(opts.Key))
	if err != nil {
		return fmt.Errorf("can't create secrets provider: %w", err)
	}
	defer sp.Close() // nolint

	switch p.Active {
	case p.Command.Find("set"):
		key, val := opts.SetCmd.PositionalArgs.Key, opts.SetCmd.PositionalArgs.Value
		log.Printf("[INFO] set command, key=%s", key)
		if strings.TrimSpace(val) == "" {
			return fmt.Errorf("can't set empty secret for key %q", key)
		}
		if err := sp.Set(key, val); err != nil {
			return fmt.Errorf("can't set secret for key %q: %w", key, err)
		}

	case p.Command.Find("get"):
		key := opts.GetCmd.PositionalArgs.Key
		log.Printf("[INFO] get command, key=%s", key)
		val, err := sp.Get(key)
		if err != nil {
			return fmt.Errorf("can't get secret for key %q: %w", key, err)
		}
		fmt.Fprintln(out, val)

	case p.Command.Find("del"):
		key := opts.DeleteCmd.PositionalArgs.Key
		log.Printf("[INFO] del command, key=%s", key)
		if err := sp.Delete(key); err != nil {
			return fmt.Errorf("can't delete secret: %w", err)
		}
		log.Printf("[INFO] key=%s deleted", key)

	case p.Command.Find("list"):
		log.Printf("[INFO] list command, key-prefix=%q", opts.ListCmd.PositionalArgs.KeyPrefix)
		keys, err := sp.List(opts.ListCmd.PositionalArgs.KeyPrefix)
		if err != nil {
			return fmt.Errorf("can't list secrets: %w", err)
		}
		printKeys(out, keys)
	}
	return nil
}

// printKeys prints tab separated keys, keysPerLine in a row
func printKeys(out io.Writer, keys []string) {
	for i, k := range keys {
		if i%keysPerLine == 0 && i != 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s\t", k)
	}
	fmt.Fprintln(out)
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
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

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
