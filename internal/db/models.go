package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the authorization level of a user inside its library.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue"
	LoanRejected LoanStatus = "rejected"
	LoanLost     LoanStatus = "lost"
)

// LoanStatuses lists every status in lifecycle order.
var LoanStatuses = []LoanStatus{LoanPending, LoanActive, LoanOverdue, LoanReturned, LoanRejected, LoanLost}

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	for _, known := range LoanStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Library is the tenant boundary for books, users and loans.
type Library struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Library) TableName() string { return "libraries" }

func (l *Library) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// User is a library member or administrator.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LibraryID    uuid.UUID `gorm:"type:uuid;not null;index:idx_users_library" json:"library_id"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email" json:"email"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Role         Role      `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	PasswordSalt string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleMember
	}
	return nil
}

// IsAdmin reports whether the user may use the admin surface.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Book represents a title held by a library
type Book struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LibraryID uuid.UUID `gorm:"type:uuid;not null;index:idx_books_library" json:"library_id"`
	Title     string    `gorm:"type:varchar(255);not null;index:idx_books_title" json:"title"`
	Author    string    `gorm:"type:varchar(255);not null;index:idx_books_author" json:"author"`
	ISBN      string    `gorm:"column:isbn;type:varchar(13)" json:"isbn,omitempty"`
	Stock     int       `gorm:"not null;default:0" json:"stock"`
	Available int       `gorm:"not null;default:0" json:"available"`
	ImageURL  string    `gorm:"type:varchar(1024)" json:"image_url,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Book) TableName() string { return "books" }

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Loan is one borrowing of a book by a user.
type Loan struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BookID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_loans_book" json:"book_id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_loans_user" json:"user_id"`
	LibraryID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_loans_library" json:"library_id"`
	Status     LoanStatus `gorm:"type:varchar(20);not null;index:idx_loans_status" json:"status"`
	BorrowedAt *time.Time `json:"borrowed_at,omitempty"`
	DueDate    *time.Time `gorm:"index:idx_loans_due_date" json:"due_date,omitempty"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}

func (Loan) TableName() string { return "loans" }

func (l *Loan) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = LoanPending
	}
	return nil
}

// Session is an issued login token. Only the SHA-256 of the token is stored.
type Session struct {
	TokenHash string    `gorm:"type:varchar(64);primaryKey" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_sessions_user" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null;index:idx_sessions_expires" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Session) TableName() string { return "sessions" }

// NotificationKind names what a notification is about.
type NotificationKind string

const (
	NotificationLoanOverdue NotificationKind = "loan_overdue"
)

// Notification is an in-app message for a user. LoanID and Kind together
// identify a notification so repeated deliveries collapse into one row.
type Notification struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_user" json:"user_id"`
	LoanID    *uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_notifications_loan_kind" json:"loan_id,omitempty"`
	Kind      NotificationKind `gorm:"type:varchar(40);not null;uniqueIndex:idx_notifications_loan_kind" json:"kind"`
	Message   string           `gorm:"type:text;not null" json:"message"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `gorm:"not null" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
