package moodle

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Account result statuses
const (
	StatusExists  = "exists"
	StatusCreated = "created"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

const (
	AuthManual   = "manual"
	DefaultTZ    = "Asia/Kuala_Lumpur"
	DefaultLang  = "en"
	DefaultCntry = "MY"
)

const passwordChars = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Auth      string `json:"auth"`
	Confirmed bool   `json:"confirmed"`
	IDNumber  string `json:"idnumber,omitempty"`
}

type NewUser struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
}

// Fill derives the missing username, password and names of a new user.
func (nu *NewUser) Fill(now time.Time) error {
	nu.Email = NormalizeEmail(nu.Email)
	if nu.Username == "" {
		nu.Username = Username(nu.Email, now)
	}
	if nu.Password == "" {
		pwd, err := GeneratePassword(16)
		if err != nil {
			return err
		}
		nu.Password = pwd
	}
	if nu.FirstName == "" {
		nu.FirstName = nu.Username
	}
	if nu.LastName == "" {
		nu.LastName = "User"
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Username is the local part of the email followed by the last 4 digits of the unix time in milliseconds.
func Username(email string, now time.Time) string {
	local := NormalizeEmail(email)
	if i := strings.Index(local, "@"); i >= 0 {
		local = local[:i]
	}
	ms := fmt.Sprintf("%04d", now.UnixNano()/int64(time.Millisecond))
	return local + ms[len(ms)-4:]
}

// GeneratePassword returns a random password of n characters with at least one digit, one lower and one upper letter.
func GeneratePassword(n int) (string, error) {
	if n < 8 {
		n = 8
	}
	max := big.NewInt(int64(len(passwordChars)))
	for {
		buf := make([]byte, n)
		for i := range buf {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			buf[i] = passwordChars[idx.Int64()]
		}
		pwd := string(buf)
		if strings.ContainsAny(pwd, "0123456789") &&
			strings.ToUpper(pwd) != pwd &&
			strings.ToLower(pwd) != pwd {
			return pwd, nil
		}
	}
}

// AccountResult reports what happened to the Moodle account of one team member.
type AccountResult struct {
	ContestantID int    `json:"contestantId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Status       string `json:"status"`
	MoodleUserID int    `json:"moodleUserId,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	Error        string `json:"error,omitempty"`
}

type TeamAccounts struct {
	TeamID   int             `json:"teamId"`
	TeamName string          `json:"teamName"`
	Created  int             `json:"created"`
	Existing int             `json:"existing"`
	Failed   int             `json:"failed"`
	Skipped  int             `json:"skipped"`
	Results  []AccountResult `json:"results"`
}

func (ta *TeamAccounts) add(r AccountResult) {
	switch r.Status {
	case StatusCreated:
		ta.Created++
	case StatusExists:
		ta.Existing++
	case StatusError:
		ta.Failed++
	case StatusSkipped:
		ta.Skipped++
	}
	ta.Results = append(ta.Results, r)
}
