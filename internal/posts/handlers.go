package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CampusConnect/CC-Backend/internal/auth"
	"github.com/CampusConnect/CC-Backend/internal/httputil"
	"github.com/CampusConnect/CC-Backend/internal/push"
	"github.com/CampusConnect/CC-Backend/internal/utils"
)

// Service holds the post/event handlers. Push may be nil, in which case new
// events are published without notifications.
type Service struct {
	DB   *gorm.DB
	Push *push.Client
}

func NewService(db *gorm.DB, pushClient *push.Client) *Service {
	return &Service{DB: db, Push: pushClient}
}

// GetPostsHandler lists every post and event.
func (s *Service) GetPostsHandler(w http.ResponseWriter, r *http.Request) {
	var posts []Post
	if err := s.DB.Find(&posts).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	httputil.OK(w, http.StatusOK, "OK", posts)
}

// participantView is the roster entry shown on an event detail.
type participantView struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	StdCode     string `json:"std_code"`
	PhoneNumber string `json:"phone_number"`
}

type postDetail struct {
	Post
	Participants []participantView `json:"participants"`
}

// GetPostHandler returns one post with its participant roster.
func (s *Service) GetPostHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Fail(w, http.StatusBadRequest, "invalid post id")
		return
	}

	var post Post
	if err := s.DB.First(&post, "id = ?", id).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "Post not found!")
		return
	}

	participants := []participantView{}
	err = s.DB.Table("campus.participants AS p").
		Select("u.id AS user_id, u.name, u.std_code, u.phone_number").
		Joins("JOIN app_auth.users u ON u.id = p.user_id").
		Where("p.post_id = ?", id).
		Scan(&participants).Error
	if err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to load participants")
		return
	}

	httputil.OK(w, http.StatusOK, "OK", postDetail{Post: post, Participants: participants})
}

type postForm struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Organizer string     `json:"organizer"`
	EventDate *time.Time `json:"eventDate"`
	Picture   string     `json:"picture"`
	IsEvent   bool       `json:"is_event"`
}

func (f postForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Title, validation.Required),
		validation.Field(&f.Content, validation.Required),
	)
}

// CreatePostHandler creates a post; a new event additionally fans out a push
// notification to every registered device, in the background so the HTTP
// response never waits on the gateway.
func (s *Service) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	var form postForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		httputil.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := form.Validate(); err != nil {
		httputil.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	post := Post{
		Title:     form.Title,
		Content:   form.Content,
		Organizer: form.Organizer,
		EventDate: form.EventDate,
		Picture:   form.Picture,
		IsEvent:   form.IsEvent,
	}
	if err := s.DB.Create(&post).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to create post")
		return
	}

	if post.IsEvent && s.Push != nil {
		go s.notifyNewEvent(post)
	}

	httputil.OK(w, http.StatusCreated, "Post created!",
		fmt.Sprintf("Successfully added post with title %s", post.Title))
}

// notifyNewEvent pushes the announcement to every device token on file.
// Best-effort: failures are logged, never surfaced to the creating admin.
func (s *Service) notifyNewEvent(post Post) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var users []auth.User
	if err := s.DB.WithContext(ctx).Find(&users).Error; err != nil {
		log.Printf("[push] loading recipients: %v", err)
		return
	}

	var tokens []string
	for _, u := range users {
		tokens = append(tokens, u.DeviceTokens...)
	}
	if len(tokens) == 0 {
		return
	}

	if err := s.Push.Send(ctx, tokens, "New event: "+post.Title, post.Content); err != nil {
		log.Printf("[push] event %d: %v", post.ID, err)
	}
}

// UpdatePostHandler replaces the editable fields of a post.
func (s *Service) UpdatePostHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Fail(w, http.StatusBadRequest, "invalid post id")
		return
	}

	var post Post
	if err := s.DB.First(&post, "id = ?", id).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "Post not found!")
		return
	}

	var form postForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		httputil.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updates := map[string]interface{}{}
	if form.Title != "" {
		updates["title"] = form.Title
	}
	if form.Content != "" {
		updates["content"] = form.Content
	}
	if form.Organizer != "" {
		updates["organizer"] = form.Organizer
	}
	if form.EventDate != nil {
		updates["event_date"] = form.EventDate
	}
	if form.Picture != "" {
		updates["picture"] = form.Picture
	}

	if err := s.DB.Model(&post).Updates(updates).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to update post")
		return
	}

	httputil.OK(w, http.StatusOK,
		fmt.Sprintf("Successfully updated post with title %s!", post.Title), post)
}

// DeletePostHandler removes a post and its participant rows.
func (s *Service) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Fail(w, http.StatusBadRequest, "invalid post id")
		return
	}

	var post Post
	if err := s.DB.First(&post, "id = ?", id).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "Post not found!")
		return
	}

	if err := s.DB.Where("post_id = ?", post.ID).Delete(&Participant{}).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to delete participants")
		return
	}
	if err := s.DB.Delete(&post).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to delete post")
		return
	}

	httputil.OK(w, http.StatusOK,
		fmt.Sprintf("Successfully deleted post with title %s!", post.Title), nil)
}

type registerEventRequest struct {
	EventID uint `json:"event_id"`
}

// RegisterEventHandler signs the caller up for an event. Only verified
// accounts may register, and only once per event.
func (s *Service) RegisterEventHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	var req registerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == 0 {
		httputil.Fail(w, http.StatusBadRequest, "event_id is required!")
		return
	}

	var user auth.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "User Not Found!")
		return
	}

	if !user.EmailVerified {
		httputil.Fail(w, http.StatusBadRequest, "Email not verified!")
		return
	}

	var post Post
	if err := s.DB.First(&post, "id = ? AND is_event = true", req.EventID).Error; err != nil {
		httputil.Fail(w, http.StatusNotFound, "Event not found!")
		return
	}

	var existing Participant
	err := s.DB.First(&existing, "user_id = ? AND post_id = ?", userID, req.EventID).Error
	if err == nil {
		httputil.Fail(w, http.StatusBadRequest, "You already registered this event!")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		httputil.Fail(w, http.StatusInternalServerError, "failed to check registration")
		return
	}

	participant := Participant{
		ID:     uuid.NewString(),
		UserID: userID,
		PostID: req.EventID,
	}
	if err := s.DB.Create(&participant).Error; err != nil {
		httputil.Fail(w, http.StatusInternalServerError, "failed to register for event")
		return
	}

	httputil.OK(w, http.StatusOK, "OK", participant)
}
