package auth_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/CampusConnect/CC-Backend/internal/auth"
	"github.com/CampusConnect/CC-Backend/internal/db"
	"github.com/CampusConnect/CC-Backend/internal/middleware"
	"github.com/CampusConnect/CC-Backend/internal/posts"
)

// dbAvailable tracks whether the database connection was established.
var dbAvailable bool

// testServer is the shared httptest server for all integration tests.
var testServer *httptest.Server

var (
	gormDB   *gorm.DB
	testRdb  *miniredis.Miniredis
	testMail *recordingMailer
	secret   = []byte("integration-test-secret")
)

// recordingMailer captures outgoing mail instead of dialing SMTP.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (m *recordingMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("simulated mail failure")
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) lastTo(to string) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

func TestMain(m *testing.M) {
	// Load .env.local relative to the repo root (two directories up from
	// internal/auth/).
	_ = godotenv.Load("../../.env.local")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		// No database available — skip all integration tests gracefully.
		os.Exit(m.Run())
	}

	var err error
	gormDB, err = db.Connect(databaseURL)
	if err != nil {
		fmt.Println("db connect failed:", err)
		os.Exit(1)
	}
	dbAvailable = true

	if err := auth.Init(gormDB); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := posts.Init(gormDB); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	testRdb, err = miniredis.Run()
	if err != nil {
		fmt.Println("miniredis run failed:", err)
		os.Exit(1)
	}
	defer testRdb.Close()

	rdb := redis.NewClient(&redis.Options{Addr: testRdb.Addr()})
	testMail = &recordingMailer{}

	authService := auth.NewService(gormDB, auth.NewPinStore(rdb), testMail, secret)
	postService := posts.NewService(gormDB, nil)
	verifier := auth.TokenInfo{Secret: secret}

	// Mount routes on a chi router matching production setup in main.go.
	// The limiter is opened wide so tests never trip it.
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Route("/api/v1", func(r chi.Router) {
		authService.RegisterRoutes(r, middleware.RateLimit(100000))
		postService.RegisterRoutes(r, verifier)
	})

	testServer = httptest.NewServer(r)
	defer testServer.Close()

	os.Exit(m.Run())
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Token   string          `json:"token"`
}

func postJSON(t *testing.T, path, token string, payload interface{}) (*http.Response, envelope) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, testServer.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return resp, env
}

func getWithToken(t *testing.T, path, token string) (*http.Response, envelope) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, testServer.URL+path, nil)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return resp, env
}

// registerPayload builds a unique valid registration body and schedules
// cleanup of the row it creates.
func registerPayload(t *testing.T) map[string]string {
	t.Helper()
	if !dbAvailable {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}

	suffix := uuid.New().String()[:8]
	email := fmt.Sprintf("it_%s@test.local", suffix)
	t.Cleanup(func() {
		gormDB.Exec("DELETE FROM app_auth.users WHERE email = ?", email)
	})

	return map[string]string{
		"name":         "Test Student " + suffix,
		"std_code":     "STD" + suffix,
		"gender":       "FEMALE",
		"email":        email,
		"phone_number": "08" + suffix,
		"password":     "TestPass123!",
	}
}

var pinPattern = regexp.MustCompile(`\d{6}`)

// pinFromMail extracts the PIN mailed to an address.
func pinFromMail(t *testing.T, to string) string {
	t.Helper()
	mail, ok := testMail.lastTo(to)
	if !ok {
		t.Fatalf("no mail recorded for %s", to)
	}
	pin := pinPattern.FindString(mail.Body)
	if pin == "" {
		t.Fatalf("no pin found in mail body: %q", mail.Body)
	}
	return pin
}

// TestRegister_Success verifies 201, a usable token, a mailed PIN, and that
// neither the plaintext password nor its hash escapes in the response.
func TestRegister_Success(t *testing.T) {
	payload := registerPayload(t)

	resp, env := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, env.Message)
	}
	if env.Token == "" {
		t.Error("expected token in response")
	}
	if strings.Contains(string(env.Data), payload["password"]) {
		t.Error("plaintext password leaked in response")
	}
	var view map[string]interface{}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decoding account view: %v", err)
	}
	for _, field := range []string{"password", "hashed_password", "HashedPassword"} {
		if _, ok := view[field]; ok {
			t.Errorf("field %q present in account view", field)
		}
	}

	// Stored hash must verify against the original password and must not
	// equal it.
	var stored struct{ HashedPassword string }
	if err := gormDB.Table("app_auth.users").Where("email = ?", payload["email"]).
		Take(&stored).Error; err != nil {
		t.Fatalf("loading stored user: %v", err)
	}
	if stored.HashedPassword == payload["password"] {
		t.Error("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.HashedPassword), []byte(payload["password"])); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}

	if _, ok := testMail.lastTo(payload["email"]); !ok {
		t.Error("no verification mail recorded")
	}
}

// TestRegister_MissingFields verifies a 400 naming the absent fields.
func TestRegister_MissingFields(t *testing.T) {
	payload := registerPayload(t)
	delete(payload, "name")
	delete(payload, "password")

	resp, env := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(env.Message, "name") || !strings.Contains(env.Message, "password") {
		t.Errorf("expected missing fields named, got: %q", env.Message)
	}
}

// TestRegister_DuplicateEmail verifies the second registration conflicts and
// only one record exists.
func TestRegister_DuplicateEmail(t *testing.T) {
	payload := registerPayload(t)

	resp, _ := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", resp.StatusCode)
	}

	// Different std_code/phone so only the email collides.
	payload["std_code"] = payload["std_code"] + "x"
	payload["phone_number"] = payload["phone_number"] + "9"
	resp, env := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second register: expected 409, got %d", resp.StatusCode)
	}
	if !strings.Contains(env.Message, "email") {
		t.Errorf("expected conflict message to name email, got: %q", env.Message)
	}

	var count int64
	gormDB.Table("app_auth.users").Where("email = ?", payload["email"]).Count(&count)
	if count != 1 {
		t.Errorf("expected exactly 1 record, got %d", count)
	}
}

// TestLogin_IndistinguishableFailures verifies unknown-email and
// wrong-password answer with byte-identical bodies.
func TestLogin_IndistinguishableFailures(t *testing.T) {
	payload := registerPayload(t)
	if resp, _ := postJSON(t, "/api/v1/register", "", payload); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: %d", resp.StatusCode)
	}

	read := func(body map[string]string) (int, string) {
		raw, _ := json.Marshal(body)
		resp, err := http.Post(testServer.URL+"/api/v1/login", "application/json", bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("http error: %v", err)
		}
		defer resp.Body.Close()
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode, buf.String()
	}

	wrongPassCode, wrongPassBody := read(map[string]string{
		"email": payload["email"], "password": "not-the-password",
	})
	unknownCode, unknownBody := read(map[string]string{
		"email": "nobody_" + payload["email"], "password": "whatever",
	})

	if wrongPassCode != http.StatusUnauthorized || unknownCode != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrongPassCode, unknownCode)
	}
	if wrongPassBody != unknownBody {
		t.Errorf("bodies differ:\n%q\n%q", wrongPassBody, unknownBody)
	}
}

// TestLogin_RoundTrip verifies register → login succeeds and the token
// decodes to the registered role.
func TestLogin_RoundTrip(t *testing.T) {
	payload := registerPayload(t)
	if resp, _ := postJSON(t, "/api/v1/register", "", payload); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed")
	}

	resp, env := postJSON(t, "/api/v1/login", "", map[string]string{
		"email": payload["email"], "password": payload["password"],
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if env.Token == "" {
		t.Fatal("expected token")
	}

	claims, err := auth.ParseToken(env.Token, secret)
	if err != nil {
		t.Fatalf("decoding token: %v", err)
	}
	if claims.Role != auth.RoleUser {
		t.Errorf("expected role USER, got %q", claims.Role)
	}
}

// TestVerifyEmailFlow walks the whole PIN lifecycle: mismatch keeps the PIN,
// a match consumes it, replay fails as expired.
func TestVerifyEmailFlow(t *testing.T) {
	payload := registerPayload(t)
	resp, env := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed")
	}
	token := env.Token
	pin := pinFromMail(t, payload["email"])

	wrong := "000000"
	if wrong == pin {
		wrong = "000001"
	}

	// Mismatch: business failure, account stays unverified, PIN survives.
	resp, env = postJSON(t, "/api/v1/verif-email", token, map[string]string{"pin": wrong})
	if resp.StatusCode != http.StatusOK || env.Status {
		t.Fatalf("expected 200 status:false for mismatch, got %d %v", resp.StatusCode, env.Status)
	}
	if !strings.Contains(env.Message, "PIN does not match!") {
		t.Errorf("unexpected mismatch message: %q", env.Message)
	}

	// Correct PIN: verified.
	resp, env = postJSON(t, "/api/v1/verif-email", token, map[string]string{"pin": pin})
	if resp.StatusCode != http.StatusOK || !env.Status {
		t.Fatalf("expected verification success, got %d %s", resp.StatusCode, env.Message)
	}

	var row struct{ EmailVerified bool }
	if err := gormDB.Table("app_auth.users").Where("email = ?", payload["email"]).
		Take(&row).Error; err != nil {
		t.Fatalf("loading user: %v", err)
	}
	if !row.EmailVerified {
		t.Error("email_verified not set after successful verify")
	}

	// Replay: the PIN was consumed, so the same code now reads as expired.
	resp, env = postJSON(t, "/api/v1/verif-email", token, map[string]string{"pin": pin})
	if resp.StatusCode != http.StatusOK || env.Status {
		t.Fatalf("expected replay to fail softly, got %d %v", resp.StatusCode, env.Status)
	}
	if !strings.Contains(env.Message, "PIN has expired!") {
		t.Errorf("expected expiry message on replay, got: %q", env.Message)
	}
}

// TestVerifyEmail_TTLExpiry verifies an unredeemed PIN reads as expired, not
// mismatched, once the TTL passes.
func TestVerifyEmail_TTLExpiry(t *testing.T) {
	payload := registerPayload(t)
	resp, env := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed")
	}
	token := env.Token
	pin := pinFromMail(t, payload["email"])

	testRdb.FastForward(auth.PinTTL + time.Second)

	resp, env = postJSON(t, "/api/v1/verif-email", token, map[string]string{"pin": pin})
	if resp.StatusCode != http.StatusOK || env.Status {
		t.Fatalf("expected soft failure, got %d %v", resp.StatusCode, env.Status)
	}
	if !strings.Contains(env.Message, "PIN has expired!") {
		t.Errorf("expected expired, got: %q", env.Message)
	}
}

// TestResendPin verifies send-verif replaces the old PIN.
func TestResendPin(t *testing.T) {
	payload := registerPayload(t)
	resp, env := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed")
	}
	token := env.Token
	firstPin := pinFromMail(t, payload["email"])

	resp, env = getWithToken(t, "/api/v1/send-verif", token)
	if resp.StatusCode != http.StatusOK || !env.Status {
		t.Fatalf("resend failed: %d %s", resp.StatusCode, env.Message)
	}
	secondPin := pinFromMail(t, payload["email"])

	if firstPin != secondPin {
		// The old PIN must be dead after the overwrite.
		if _, env := postJSON(t, "/api/v1/verif-email", token, map[string]string{"pin": firstPin}); env.Status {
			t.Error("stale PIN accepted after resend")
		}
	}

	resp, env = postJSON(t, "/api/v1/verif-email", token, map[string]string{"pin": secondPin})
	if resp.StatusCode != http.StatusOK || !env.Status {
		t.Errorf("fresh PIN rejected: %d %s", resp.StatusCode, env.Message)
	}
}

// TestWhoami verifies the redacted view comes back for the token's subject.
func TestWhoami(t *testing.T) {
	payload := registerPayload(t)
	resp, env := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed")
	}

	resp, env = getWithToken(t, "/api/v1/whoami", env.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(env.Data), payload["email"]) {
		t.Error("expected own email in whoami data")
	}
	if strings.Contains(string(env.Data), "hashed_password") {
		t.Error("hash leaked in whoami data")
	}
}

// TestCreateAdmin_RequiresAdminRole verifies a USER token is rejected before
// any account is created.
func TestCreateAdmin_RequiresAdminRole(t *testing.T) {
	payload := registerPayload(t)
	resp, env := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed")
	}
	userToken := env.Token

	target := registerPayload(t)
	resp, env = postJSON(t, "/api/v1/create-admin", userToken, target)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if !strings.Contains(env.Message, "only admin can access!") {
		t.Errorf("unexpected message: %q", env.Message)
	}

	var count int64
	gormDB.Table("app_auth.users").Where("email = ?", target["email"]).Count(&count)
	if count != 0 {
		t.Errorf("account created despite failed role gate")
	}
}

// TestRegisterEvent_RequiresVerifiedEmail verifies event signup is blocked
// until the email is proven, then works exactly once.
func TestRegisterEvent_RequiresVerifiedEmail(t *testing.T) {
	payload := registerPayload(t)
	resp, env := postJSON(t, "/api/v1/register", "", payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed")
	}
	token := env.Token
	pin := pinFromMail(t, payload["email"])

	// Seed an event directly; CreatePost is admin-gated and not under test
	// here.
	event := posts.Post{Title: "Orientation " + uuid.NewString()[:8], Content: "welcome", IsEvent: true}
	if err := gormDB.Create(&event).Error; err != nil {
		t.Fatalf("seeding event: %v", err)
	}
	t.Cleanup(func() {
		gormDB.Exec("DELETE FROM campus.participants WHERE post_id = ?", event.ID)
		gormDB.Exec("DELETE FROM campus.posts WHERE id = ?", event.ID)
	})

	body := map[string]uint{"event_id": event.ID}

	resp, env = postJSON(t, "/api/v1/event/register", token, body)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(env.Message, "Email not verified!") {
		t.Fatalf("expected verification gate, got %d %q", resp.StatusCode, env.Message)
	}

	if _, env = postJSON(t, "/api/v1/verif-email", token, map[string]string{"pin": pin}); !env.Status {
		t.Fatalf("verify failed: %s", env.Message)
	}

	resp, env = postJSON(t, "/api/v1/event/register", token, body)
	if resp.StatusCode != http.StatusOK || !env.Status {
		t.Fatalf("expected signup to succeed, got %d %s", resp.StatusCode, env.Message)
	}

	resp, env = postJSON(t, "/api/v1/event/register", token, body)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(env.Message, "already registered") {
		t.Errorf("expected duplicate rejection, got %d %q", resp.StatusCode, env.Message)
	}
}
