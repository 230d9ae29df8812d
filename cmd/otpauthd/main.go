package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/knadh/koanf/v2"
	"github.com/stratauth/otpauth"
	"github.com/stratauth/otpauth/internal/store"
	"github.com/zerodha/logf"
)

// App is the global app context that groups the necessary controls
// (strategy, store, config etc.) to be injected into the HTTP handlers.
type App struct {
	strategy  *otpauth.Strategy
	store     store.Store
	lo        logf.Logger
	constants constants
}

var (
	ko = koanf.New(".")

	// Version of the build injected at build time.
	buildString = "unknown"
)

func main() {
	initConfig()
	lo := initLogger(ko.Bool("app.debug"))

	st := initStore(lo)
	prov := initProvider(lo)
	if l := ko.Int("otp.length"); l > prov.MaxOTPLen() {
		lo.Fatal("otp.length exceeds the provider's maximum",
			"length", l, "max", prov.MaxOTPLen(), "provider", prov.ID())
	}
	sender := initSender(lo, prov)
	resolver := initResolver(lo)

	strategy, err := otpauth.New(otpauth.Config{
		Alphabet: ko.String("otp.alphabet"),
		Length:   ko.Int("otp.length"),
		Lifetime: time.Duration(ko.Int("otp.lifetime")) * time.Minute,
		KeyMode:  initKeyMode(lo),
	}, st, sender, resolver)
	if err != nil {
		lo.Fatal("error initializing strategy", "error", err)
	}

	app := &App{
		strategy: strategy,
		store:    st,
		lo:       lo,
		constants: constants{
			FieldUsername: defString(ko.String("app.field_username"), "username"),
			FieldOTP:      defString(ko.String("app.field_otp"), "otp"),
			FieldOTPID:    defString(ko.String("app.field_otp_id"), "otpId"),
		},
	}

	// Register handles.
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("otpauthd"))
	})
	r.Get("/api/health", wrap(app, handleHealthCheck))
	r.Post("/api/auth", wrap(app, handleAuthenticate))

	// HTTP Server.
	timeout := ko.Duration("app.server_timeout")
	if timeout.Seconds() < 1 {
		timeout = time.Second * 5
	}

	srv := &http.Server{
		Addr:         ko.String("app.address"),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		Handler:      r,
	}

	lo.Info("starting server", "address", srv.Addr, "provider", prov.ID())
	if err := srv.ListenAndServe(); err != nil {
		lo.Fatal("couldn't start server", "error", err)
	}
}

// defString returns s, or def when s is empty.
func defString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
