package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/CampusConnect/CC-Backend/internal/httputil"
	"github.com/CampusConnect/CC-Backend/internal/mailer"
	"github.com/CampusConnect/CC-Backend/internal/utils"
)

const bcryptCost = 10

// Service bundles the collaborators the auth handlers need. Everything is
// injected at startup; there are no package-level clients.
type Service struct {
	DB     *gorm.DB
	Pins   *PinStore
	Mail   mailer.Mailer
	Secret []byte
}

func NewService(db *gorm.DB, pins *PinStore, mail mailer.Mailer, secret []byte) *Service {
	return &Service{DB: db, Pins: pins, Mail: mail, Secret: secret}
}

type registerRequest struct {
	Name        string `json:"name"`
	StdCode     string `json:"std_code"`
	Gender      string `json:"gender"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.StdCode, validation.Required),
		validation.Field(&r.Gender, validation.Required, validation.In("MALE", "FEMALE")),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.PhoneNumber, validation.Required),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Role, validation.In(RoleUser, RoleAdmin)),
	)
}

// conflictField maps a Postgres unique violation to the colliding column.
// Returns ok=false when err is not a unique violation at all.
func conflictField(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return "email", true
	case strings.Contains(pgErr.ConstraintName, "phone"):
		return "phone_number", true
	case strings.Contains(pgErr.ConstraintName, "std_code"):
		return "std_code", true
	}
	return "", true
}

// RegisterHandler creates a regular account.
func (s *Service) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	s.register(w, r, "")
}

// CreateAdminHandler is the admin-gated variant that forces the ADMIN role
// regardless of the request body.
func (s *Service) CreateAdminHandler(w http.ResponseWriter, r *http.Request) {
	s.register(w, r, RoleAdmin)
}

func (s *Service) register(w http.ResponseWriter, r *http.Request, forcedRole string) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if forcedRole != "" {
		req.Role = forcedRole
	}
	if err := req.Validate(); err != nil {
		httputil.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := User{
		ID:             uuid.NewString(),
		Name:           norm.NFC.String(req.Name),
		StdCode:        req.StdCode,
		Gender:         req.Gender,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		HashedPassword: string(hashed),
		Role:           RoleUser,
	}
	if req.Role != "" {
		user.Role = req.Role
	}

	if err := s.DB.Create(&user).Error; err != nil {
		if field, ok := conflictField(err); ok {
			if field == "" {
				httputil.Fail(w, http.StatusConflict, "credential that you input has already been used!")
				return
			}
			httputil.Fail(w, http.StatusConflict, fmt.Sprintf("%s has already been used!", field))
			return
		}
		httputil.Fail(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	// The account exists from here on: a PIN or mail failure is reported but
	// never rolls the record back. /send-verif recovers either case.
	if err := s.issuePin(r, &user); err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "Error sending email")
		return
	}

	token, err := GenerateToken(user.ID, user.Role, s.Secret)
	if err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	httputil.OKWithToken(w, http.StatusCreated,
		fmt.Sprintf("Successfully registered user with email %s and sending pin code!", user.Email),
		token, user)
}

// issuePin stores a fresh PIN for the user (overwriting any live one) and
// mails it. The overwrite happens before the send, so a mail failure leaves
// a valid PIN behind.
func (s *Service) issuePin(r *http.Request, user *User) error {
	pin, err := GeneratePin()
	if err != nil {
		return err
	}
	if err := s.Pins.Set(r.Context(), user.ID, pin); err != nil {
		return err
	}
	return s.Mail.Send(user.Email, "Verify your email address!",
		fmt.Sprintf("Your PIN is %s. It will expire in 2 minutes.", pin))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginHandler exchanges credentials for a session token. Unknown email and
// wrong password answer with the exact same body so callers cannot probe
// which addresses have accounts.
func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		httputil.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	var user User
	if err := s.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		httputil.Fail(w, http.StatusUnauthorized, "invalid email or password!")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		httputil.Fail(w, http.StatusUnauthorized, "invalid email or password!")
		return
	}

	token, err := GenerateToken(user.ID, user.Role, s.Secret)
	if err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	httputil.OKWithToken(w, http.StatusOK, "OK", token, nil)
}

type verifyRequest struct {
	Pin string `json:"pin"`
}

// VerifyEmailHandler redeems a PIN. Expiry and mismatch are business
// outcomes (200 with status:false), not errors: the client is told whether
// to request a new PIN or simply retype it.
func (s *Service) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		userID, _ = utils.GetUserIDFromContext(r.Context())
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pin == "" {
		httputil.Fail(w, http.StatusBadRequest, "pin is required!")
		return
	}

	var user User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "user not found!")
		return
	}

	stored, err := s.Pins.Get(r.Context(), userID)
	if errors.Is(err, ErrPinNotFound) {
		httputil.Fail(w, http.StatusOK, "PIN has expired!")
		return
	}
	if err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to read pin")
		return
	}

	if stored != req.Pin {
		// Keep the stored PIN so the user can retry until the TTL runs out.
		httputil.Fail(w, http.StatusOK, "PIN does not match!")
		return
	}

	if err := s.DB.Model(&user).Update("email_verified", true).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	// Single-use: a verified PIN must never match again.
	if err := s.Pins.Delete(r.Context(), userID); err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to consume pin")
		return
	}

	httputil.OK(w, http.StatusOK, "OK",
		fmt.Sprintf("Successfully verified email for user with email %s!", user.Email))
}

// ResendPinHandler issues a fresh PIN for the caller, replacing any live one
// and restarting the TTL.
func (s *Service) ResendPinHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.Fail(w, http.StatusUnauthorized, "This user is not logged in!")
		return
	}

	var user User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "user not found!")
		return
	}

	if err := s.issuePin(r, &user); err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "Error sending email")
		return
	}

	httputil.OK(w, http.StatusOK, "OK",
		fmt.Sprintf("Successfully resend pin code for user with email %s!", user.Email))
}

// WhoamiHandler returns the caller's current account view.
func (s *Service) WhoamiHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.Fail(w, http.StatusUnauthorized, "This user is not logged in!")
		return
	}

	var user User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "user not found!")
		return
	}

	httputil.OK(w, http.StatusOK, "OK", user)
}
