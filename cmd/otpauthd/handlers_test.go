package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"text/template"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-chi/chi/v5"
	"github.com/stratauth/otpauth"
	"github.com/stratauth/otpauth/internal/store"
	"github.com/stratauth/otpauth/internal/store/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dummyProvider  = "dummyprovider"
	dummyPrincipal = "alice"
)

// dummyProv is an in-memory Provider that records the last pushed
// message.
type dummyProv struct {
	mu       sync.Mutex
	lastBody string
}

func (d *dummyProv) ID() string {
	return dummyProvider
}

func (d *dummyProv) ChannelName() string {
	return "dummychannel"
}

func (d *dummyProv) ValidateAddress(to string) error {
	if to != dummyPrincipal {
		return errors.New("invalid dummy to address")
	}
	return nil
}

func (d *dummyProv) Push(to, subject string, m []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastBody = string(m)
	return nil
}

func (d *dummyProv) MaxOTPLen() int {
	return 6
}

func (d *dummyProv) MaxBodyLen() int {
	return 100 * 1024
}

// lastCode extracts the OTP from the last rendered "test <code>" body.
func (d *dummyProv) lastCode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.TrimPrefix(d.lastBody, "test ")
}

var (
	srv    *httptest.Server
	rdis   *miniredis.Miniredis
	rStore *redis.Redis
	prov   = &dummyProv{}
)

func init() {
	// Dummy Redis.
	rd, err := miniredis.Run()
	if err != nil {
		log.Println(err)
	}
	rdis = rd
	port, _ := strconv.Atoi(rd.Port())
	rStore = redis.New(redis.Conf{
		Host: rd.Host(),
		Port: port,
	})

	// Message templates.
	subjTpl, _ := template.New("subject").Parse("OTP for {{ .To }}")
	bodyTpl, _ := template.New("body").Parse("test {{ .OTP }}")

	lo := initLogger(true)
	sender := &providerSender{
		p:        prov,
		subject:  subjTpl,
		body:     bodyTpl,
		lifetime: 15 * time.Minute,
		lo:       lo,
	}

	strategy, err := otpauth.New(otpauth.Config{}, rStore, sender, staticResolver{})
	if err != nil {
		log.Fatal(err)
	}

	// Dummy app.
	app := &App{
		strategy: strategy,
		store:    rStore,
		lo:       lo,
		constants: constants{
			FieldUsername: "username",
			FieldOTP:      "otp",
			FieldOTPID:    "otpId",
		},
	}

	r := chi.NewRouter()
	r.Get("/api/health", wrap(app, handleHealthCheck))
	r.Post("/api/auth", wrap(app, handleAuthenticate))
	srv = httptest.NewServer(r)
}

func TestHealthCheck(t *testing.T) {
	var out httpResp
	r := testRequest(t, http.MethodGet, "/api/health", nil, &out)
	assert.Equal(t, http.StatusOK, r.StatusCode, "non 200 response")
}

func TestAuthFlow(t *testing.T) {
	rdis.FlushDB()
	var (
		ctx  = context.Background()
		data = map[string]interface{}{}
		out  = httpResp{Data: &data}
		p    = url.Values{}
	)

	// Issue an OTP with just the username.
	p.Set("username", dummyPrincipal)
	r := testRequest(t, http.MethodPost, "/api/auth", p, &out)
	assert.Equal(t, http.StatusOK, r.StatusCode, "otp issuance failed")
	assert.Equal(t, "OTP sent", data["message"], "unexpected issue message")

	// The delivered code matches what's in the store.
	code := prov.lastCode()
	rec, err := rStore.Get(ctx, dummyPrincipal)
	require.NoError(t, err, "no record stored on issue")
	assert.Equal(t, rec.Code, code, "delivered code doesn't match stored code")

	// A wrong code fails and burns the record.
	p.Set("otp", "xxxxxx")
	r = testRequest(t, http.MethodPost, "/api/auth", p, &out)
	assert.Equal(t, http.StatusUnauthorized, r.StatusCode, "wrong code didn't fail")

	_, err = rStore.Get(ctx, dummyPrincipal)
	assert.Equal(t, store.ErrNotExist, err, "record survived a failed attempt")

	// The burnt code is now worthless even though it was correct.
	p.Set("otp", code)
	r = testRequest(t, http.MethodPost, "/api/auth", p, &out)
	assert.Equal(t, http.StatusUnauthorized, r.StatusCode, "consumed code was accepted")

	// Re-issue and verify with the right code.
	p.Del("otp")
	r = testRequest(t, http.MethodPost, "/api/auth", p, &out)
	require.Equal(t, http.StatusOK, r.StatusCode, "otp re-issuance failed")

	p.Set("otp", prov.lastCode())
	r = testRequest(t, http.MethodPost, "/api/auth", p, &out)
	assert.Equal(t, http.StatusOK, r.StatusCode, "correct code didn't succeed")

	user, ok := data["user"].(map[string]interface{})
	require.True(t, ok, "no user in success response")
	assert.Equal(t, dummyPrincipal, user["principal"], "resolved user doesn't match")
}

func TestAuthMissingParams(t *testing.T) {
	rdis.FlushDB()
	var out httpResp

	// No parameters at all.
	r := testRequest(t, http.MethodPost, "/api/auth", url.Values{}, &out)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode, "empty request didn't 400")

	// A code without a principal.
	p := url.Values{}
	p.Set("otp", "123456")
	r = testRequest(t, http.MethodPost, "/api/auth", p, &out)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode, "code without username didn't 400")

	// Nothing was written to the store.
	assert.Empty(t, rdis.Keys(), "parameter errors touched the store")
}

func testRequest(t *testing.T, method, path string, p url.Values, out interface{}) *http.Response {
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(p.Encode()))
	if err != nil {
		t.Fatal(err)
		return nil
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	// HTTP client.
	c := &http.Client{}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
		return nil
	}
	defer resp.Body.Close()

	if err := json.Unmarshal(respBody, out); err != nil {
		t.Fatal(err)
	}

	return resp
}
