package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"
	"github.com/stratauth/otpauth"
	"github.com/stratauth/otpauth/internal/providers/pinpoint"
	"github.com/stratauth/otpauth/internal/providers/smtp"
	"github.com/stratauth/otpauth/internal/providers/webhook"
	"github.com/stratauth/otpauth/internal/store"
	"github.com/stratauth/otpauth/internal/store/memory"
	"github.com/stratauth/otpauth/internal/store/mongo"
	"github.com/stratauth/otpauth/internal/store/redis"
	"github.com/stratauth/otpauth/pkg/models"
	"github.com/zerodha/logf"
)

type constants struct {
	// Request parameter field names.
	FieldUsername string
	FieldOTP      string
	FieldOTPID    string
}

func initConfig() {
	// Register --help handler.
	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}
	f.StringSlice("config", []string{"config.toml"},
		"Path to one or more TOML config files to load in order")
	f.Bool("version", false, "Show build version")
	f.Parse(os.Args[1:])

	// Display version.
	if ok, _ := f.GetBool("version"); ok {
		fmt.Println(buildString)
		os.Exit(0)
	}

	// Read the config files.
	cFiles, _ := f.GetStringSlice("config")
	for _, f := range cFiles {
		log.Printf("reading config: %s", f)
		if err := ko.Load(file.Provider(f), toml.Parser()); err != nil {
			log.Printf("error reading config: %v", err)
		}
	}
	// Load environment variables and merge into the loaded config.
	if err := ko.Load(env.Provider("OTPAUTH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "OTPAUTH_")), "__", ".", -1)
	}), nil); err != nil {
		log.Printf("error loading env config: %v", err)
	}

	ko.Load(posflag.Provider(f, ".", ko), nil)
}

func initLogger(debug bool) logf.Logger {
	opt := logf.Opts{EnableCaller: true}
	if debug {
		opt.Level = logf.DebugLevel
		opt.EnableColor = true
	}
	return logf.New(opt)
}

// initStore initializes the configured storage backend, falling back
// to the in-process store when none is configured.
func initStore(lo logf.Logger) store.Store {
	switch t := ko.String("store.type"); t {
	case "redis":
		var c redis.Conf
		if err := ko.UnmarshalWithConf("store.redis", &c, koanf.UnmarshalConf{Tag: "json"}); err != nil {
			lo.Fatal("error unmarshalling redis config", "error", err)
		}
		lo.Info("using redis store", "host", c.Host, "port", c.Port)
		return redis.New(c)

	case "mongo":
		var c mongo.Conf
		if err := ko.UnmarshalWithConf("store.mongo", &c, koanf.UnmarshalConf{Tag: "json"}); err != nil {
			lo.Fatal("error unmarshalling mongo config", "error", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		s, err := mongo.New(ctx, c)
		if err != nil {
			lo.Fatal("error connecting to mongo", "error", err)
		}
		lo.Info("using mongo store", "database", c.Database)
		return s

	case "", "memory":
		var c memory.Conf
		ko.UnmarshalWithConf("store.memory", &c, koanf.UnmarshalConf{Tag: "json"})
		lo.Info("no external store configured, using in-memory store")
		return memory.New(c)

	default:
		lo.Fatal("unknown store.type in config", "type", t)
		return nil
	}
}

// initProvider initializes the delivery provider selected in the config.
func initProvider(lo logf.Logger) models.Provider {
	id := ko.String("app.provider")

	var (
		p   models.Provider
		err error
	)
	switch id {
	case "", "smtp":
		var c smtp.Config
		ko.UnmarshalWithConf("provider.smtp", &c, koanf.UnmarshalConf{Tag: "json"})
		p, err = smtp.New(c)
	case "webhook":
		var c webhook.Config
		ko.UnmarshalWithConf("provider.webhook", &c, koanf.UnmarshalConf{Tag: "json"})
		p, err = webhook.New(c)
	case "pinpoint":
		var c pinpoint.Config
		ko.UnmarshalWithConf("provider.pinpoint", &c, koanf.UnmarshalConf{Tag: "json"})
		p, err = pinpoint.NewSMS(c)
	default:
		lo.Fatal("unknown app.provider in config", "provider", id)
	}
	if err != nil {
		lo.Fatal("error initializing provider", "provider", id, "error", err)
	}

	lo.Info("loaded provider", "provider", p.ID(), "channel", p.ChannelName())
	return p
}

// initSender builds the strategy's delivery Sender from the provider
// and its optional subject/body message templates.
func initSender(lo logf.Logger, p models.Provider) otpauth.Sender {
	var (
		tplFile      = ko.String(fmt.Sprintf("provider.%s.template", p.ID()))
		subj         = ko.String(fmt.Sprintf("provider.%s.subject", p.ID()))
		tpl, subjTpl *template.Template
		err          error
	)
	// Optional template and subject file.
	if tplFile != "" {
		tpl, err = template.New(filepath.Base(tplFile)).Funcs(sprig.TxtFuncMap()).ParseFiles(tplFile)
		if err != nil {
			lo.Fatal("error parsing message template", "file", tplFile, "error", err)
		}
	}
	if subj != "" {
		subjTpl, err = template.New("subject").Funcs(sprig.TxtFuncMap()).Parse(subj)
		if err != nil {
			lo.Fatal("error parsing subject template", "error", err)
		}
	}

	return &providerSender{
		p:        p,
		subject:  subjTpl,
		body:     tpl,
		lifetime: time.Duration(ko.Int("otp.lifetime")) * time.Minute,
		lo:       lo,
	}
}

// initResolver builds the principal resolver: a webhook against the
// application when a URL is configured, otherwise the static
// accept-all resolver meant for development setups.
func initResolver(lo logf.Logger) otpauth.Resolver {
	url := ko.String("resolver.url")
	if url == "" {
		lo.Info("no resolver.url configured, accepting all verified principals")
		return staticResolver{}
	}

	timeout := ko.Duration("resolver.timeout")
	if timeout.Seconds() < 1 {
		timeout = time.Second * 5
	}

	return newWebhookResolver(url,
		ko.String("resolver.username"), ko.String("resolver.password"), timeout)
}

// initKeyMode parses the challenge-identity shape from the config.
func initKeyMode(lo logf.Logger) otpauth.KeyMode {
	switch m := ko.String("otp.key_mode"); m {
	case "", "username":
		return otpauth.KeyByUsername
	case "challenge":
		return otpauth.KeyByChallenge
	default:
		lo.Fatal("unknown otp.key_mode in config", "key_mode", m)
		return otpauth.KeyByUsername
	}
}
