package users

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/CampusConnect/CC-Backend/internal/auth"
	"github.com/CampusConnect/CC-Backend/internal/httputil"
	"github.com/CampusConnect/CC-Backend/internal/imagestore"
	"github.com/CampusConnect/CC-Backend/internal/utils"
)

const bcryptCost = 10

// Service holds the admin user-management handlers. Images may be nil, in
// which case profile pictures are ignored.
type Service struct {
	DB     *gorm.DB
	Images *imagestore.Client
}

func NewService(db *gorm.DB, images *imagestore.Client) *Service {
	return &Service{DB: db, Images: images}
}

// userForm is the update/create payload. Accepted as JSON or as multipart
// form fields alongside an optional profile_image file.
type userForm struct {
	Name        string `json:"name"`
	StdCode     string `json:"std_code"`
	Gender      string `json:"gender"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// parseUserForm reads the payload either way and returns any uploaded image.
func parseUserForm(r *http.Request) (form userForm, image []byte, imageName string, err error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err = r.ParseMultipartForm(8 << 20); err != nil {
			return
		}
		form = userForm{
			Name:        r.FormValue("name"),
			StdCode:     r.FormValue("std_code"),
			Gender:      r.FormValue("gender"),
			Email:       r.FormValue("email"),
			PhoneNumber: r.FormValue("phone_number"),
			Password:    r.FormValue("password"),
			Role:        r.FormValue("role"),
		}
		file, header, ferr := r.FormFile("profile_image")
		if ferr == nil {
			defer file.Close()
			image, err = io.ReadAll(file)
			if err != nil {
				return
			}
			imageName = fmt.Sprintf("%d%s", time.Now().UnixMilli(), path.Ext(header.Filename))
		}
		return
	}

	err = json.NewDecoder(r.Body).Decode(&form)
	return
}

// GetUsersHandler lists every account, redacted.
func (s *Service) GetUsersHandler(w http.ResponseWriter, r *http.Request) {
	var users []auth.User
	if err := s.DB.Find(&users).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	httputil.OK(w, http.StatusOK, "OK", users)
}

// GetUserHandler returns one account, redacted.
func (s *Service) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	var user auth.User
	if err := s.DB.First(&user, "id = ?", chi.URLParam(r, "id")).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "User not found!")
		return
	}
	httputil.OK(w, http.StatusOK, "OK", user)
}

// UpdateUserHandler updates profile fields. Admins may update anyone,
// everyone else only themselves. Changing the email clears the verified
// flag; the new address has to be proven again.
func (s *Service) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	var user auth.User
	if err := s.DB.First(&user, "id = ?", chi.URLParam(r, "id")).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "User not found!")
		return
	}

	callerID, _ := utils.GetUserIDFromContext(r.Context())
	callerRole, _ := utils.GetRoleFromContext(r.Context())
	if callerRole != auth.RoleAdmin && callerID != user.ID {
		httputil.Fail(w, http.StatusUnauthorized, "You are not authorized to update this user!")
		return
	}

	form, image, imageName, err := parseUserForm(r)
	if err != nil {
		httputil.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updates := map[string]interface{}{}
	if form.Name != "" {
		updates["name"] = form.Name
	}
	if form.StdCode != "" {
		updates["std_code"] = form.StdCode
	}
	if form.Gender != "" {
		updates["gender"] = form.Gender
	}
	if form.PhoneNumber != "" {
		updates["phone_number"] = form.PhoneNumber
	}
	if form.Email != "" && form.Email != user.Email {
		updates["email"] = form.Email
		updates["email_verified"] = false
	}
	if form.Password != "" {
		hashed, herr := bcrypt.GenerateFromPassword([]byte(form.Password), bcryptCost)
		if herr != nil {
			httputil.Fail(w, http.StatusInternalServerError, "failed to hash password")
			return
		}
		updates["hashed_password"] = string(hashed)
	}

	if image != nil && s.Images != nil {
		if user.ProfileImage != "" {
			s.removeImage(r, user.ProfileImage)
		}
		result, uerr := s.Images.Upload(r.Context(), imageName, image)
		if uerr != nil {
			httputil.Fail(w, http.StatusInternalServerError, "failed to upload profile image")
			return
		}
		updates["profile_image"] = result.URL
	}

	if err := s.DB.Model(&user).Updates(updates).Error; err != nil {
		httputil.Fail(w, http.StatusConflict, "std_code/email/phone_number that you input, is already in database!")
		return
	}

	httputil.OK(w, http.StatusOK,
		fmt.Sprintf("Successfully updated user with name %s!", user.Name), user)
}

// removeImage deletes the file behind a hosted URL, best-effort.
func (s *Service) removeImage(r *http.Request, imageURL string) {
	name := imageURL[strings.LastIndex(imageURL, "/")+1:]
	fileID, err := s.Images.FileIDByName(r.Context(), name)
	if err != nil {
		log.Printf("[imagestore] lookup %s: %v", name, err)
		return
	}
	if err := s.Images.Delete(r.Context(), fileID); err != nil {
		log.Printf("[imagestore] delete %s: %v", fileID, err)
	}
}

// DeleteUserHandler removes an account and its stored profile image.
func (s *Service) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	var user auth.User
	if err := s.DB.First(&user, "id = ?", chi.URLParam(r, "id")).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "User not found!")
		return
	}

	if user.ProfileImage != "" && s.Images != nil {
		s.removeImage(r, user.ProfileImage)
	}

	if err := s.DB.Delete(&user).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	httputil.OK(w, http.StatusOK,
		fmt.Sprintf("Successfully deleted user with name %s!", user.Name), nil)
}

func (f userForm) validateCreate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required),
		validation.Field(&f.Gender, validation.Required, validation.In("MALE", "FEMALE")),
		validation.Field(&f.Email, validation.Required),
		validation.Field(&f.PhoneNumber, validation.Required),
		validation.Field(&f.Password, validation.Required),
		validation.Field(&f.Role, validation.In(auth.RoleUser, auth.RoleAdmin)),
	)
}

// CreateUserHandler lets an admin create an account directly, already
// trusted, optionally with a profile image.
func (s *Service) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	form, image, imageName, err := parseUserForm(r)
	if err != nil {
		httputil.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := form.validateCreate(); err != nil {
		httputil.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcryptCost)
	if err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := auth.User{
		ID:             uuid.NewString(),
		Name:           form.Name,
		StdCode:        form.StdCode,
		Gender:         form.Gender,
		Email:          form.Email,
		PhoneNumber:    form.PhoneNumber,
		HashedPassword: string(hashed),
		Role:           auth.RoleUser,
	}
	if form.Role != "" {
		user.Role = form.Role
	}

	if image != nil && s.Images != nil {
		result, uerr := s.Images.Upload(r.Context(), imageName, image)
		if uerr != nil {
			httputil.Fail(w, http.StatusInternalServerError, "failed to upload profile image")
			return
		}
		user.ProfileImage = result.URL
	}

	if err := s.DB.Create(&user).Error; err != nil {
		httputil.Fail(w, http.StatusConflict, "std_code/email/phone_number that you input, is already in database!")
		return
	}

	httputil.OK(w, http.StatusCreated,
		fmt.Sprintf("Successfully registered user with email %s!", user.Email), user)
}

type deviceTokenRequest struct {
	Token string `json:"token"`
}

// RegisterDeviceHandler records a push device token on the caller's account.
// Duplicate registrations are ignored.
func (s *Service) RegisterDeviceHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	var req deviceTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httputil.Fail(w, http.StatusBadRequest, "token is required!")
		return
	}

	var user auth.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "User not found!")
		return
	}

	for _, existing := range user.DeviceTokens {
		if existing == req.Token {
			httputil.OK(w, http.StatusOK, "OK", nil)
			return
		}
	}

	user.DeviceTokens = append(user.DeviceTokens, req.Token)
	if err := s.DB.Model(&user).Update("device_tokens", user.DeviceTokens).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to save device token")
		return
	}

	httputil.OK(w, http.StatusOK, "OK", nil)
}
