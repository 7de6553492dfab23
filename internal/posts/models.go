package posts

import "time"

// Post is an announcement; when IsEvent is set it is an event people can
// register for.
type Post struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Title     string     `gorm:"not null" json:"title"`
	Content   string     `json:"content"`
	Organizer string     `json:"organizer"`
	EventDate *time.Time `json:"eventDate"`
	Picture   string     `json:"picture"`
	IsEvent   bool       `gorm:"default:false" json:"is_event"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
}

// Participant links one account to one event, at most once.
type Participant struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"uniqueIndex:idx_participants_user_post" json:"user_id"`
	PostID    uint      `gorm:"uniqueIndex:idx_participants_user_post" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Post) TableName() string        { return "campus.posts" }
func (Participant) TableName() string { return "campus.participants" }
