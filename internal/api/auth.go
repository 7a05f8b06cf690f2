package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/session"
)

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token  string `json:"token"`
	Name   string `json:"name"`
	UserID string `json:"userId"`
}

// Session converts the reply into the session that gets persisted.
func (a AuthResponse) Session() session.Session {
	return session.Session{Token: a.Token, UserName: a.Name, UserID: a.UserID}
}

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Password      string   `json:"password"`
	Location      string   `json:"location,omitempty"`
	SkillsOffered []string `json:"skillsOffered,omitempty"`
	SkillsWanted  []string `json:"skillsWanted,omitempty"`
}

// Profile is a user as shown in the marketplace.
type Profile struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Bio           string   `json:"bio,omitempty"`
	Location      string   `json:"location,omitempty"`
	City          string   `json:"city,omitempty"`
	Country       string   `json:"country,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Age           int      `json:"age,omitempty"`
	Availability  string   `json:"availability,omitempty"`
	SkillsOffered []string `json:"skillsOffered"`
	SkillsWanted  []string `json:"skillsWanted"`
	ProfilePic    string   `json:"profilePic,omitempty"`
}

// ProfileUpdate holds the editable fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name          *string
	Bio           *string
	Location      *string
	City          *string
	Country       *string
	Phone         *string
	Age           *int
	Availability  *string
	SkillsOffered []string
	SkillsWanted  []string
}

// Upload is an optional profile picture.
type Upload struct {
	Filename string
	Content  io.Reader
}

// Register creates an account and returns its first token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	req.Email = normalize.Email(req.Email)
	body, err := jsonBody(req)
	if err != nil {
		return AuthResponse{}, err
	}
	var out AuthResponse
	err = c.do(ctx, request{method: http.MethodPost, path: "/api/auth/register", body: body, public: true}, &out)
	return out, err
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	body, err := jsonBody(map[string]string{"email": normalize.Email(email), "password": password})
	if err != nil {
		return AuthResponse{}, err
	}
	var out AuthResponse
	err = c.do(ctx, request{method: http.MethodPost, path: "/api/auth/login", body: body, public: true}, &out)
	return out, err
}

// Profiles lists every profile.
func (c *Client) Profiles(ctx context.Context) ([]Profile, error) {
	return list[Profile](ctx, c, "/api/auth/profiles", "profiles", "users")
}

// Profile returns the caller's profile.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var out Profile
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/profile"}, &out)
	return out, err
}

// ProfileByID returns another user's profile.
func (c *Client) ProfileByID(ctx context.Context, id string) (Profile, error) {
	var out Profile
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/profile/" + url.PathEscape(id)}, &out)
	return out, err
}

// UpdateProfile sends a multipart form with the changed fields and an
// optional picture.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate, pic *Upload) (Profile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]*string{
		"name":         upd.Name,
		"bio":          upd.Bio,
		"location":     upd.Location,
		"city":         upd.City,
		"country":      upd.Country,
		"phone":        upd.Phone,
		"availability": upd.Availability,
	}
	for k, v := range fields {
		if v == nil {
			continue
		}
		if err := mw.WriteField(k, *v); err != nil {
			return Profile{}, err
		}
	}
	if upd.Age != nil {
		if err := mw.WriteField("age", strconv.Itoa(*upd.Age)); err != nil {
			return Profile{}, err
		}
	}
	if upd.SkillsOffered != nil {
		if err := mw.WriteField("skillsOffered", strings.Join(upd.SkillsOffered, ",")); err != nil {
			return Profile{}, err
		}
	}
	if upd.SkillsWanted != nil {
		if err := mw.WriteField("skillsWanted", strings.Join(upd.SkillsWanted, ",")); err != nil {
			return Profile{}, err
		}
	}
	if pic != nil {
		fw, err := mw.CreateFormFile("profilePic", pic.Filename)
		if err != nil {
			return Profile{}, err
		}
		if _, err := io.Copy(fw, pic.Content); err != nil {
			return Profile{}, fmt.Errorf("api: copy profile picture: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Profile{}, err
	}

	var out Profile
	err := c.do(ctx, request{
		method:      http.MethodPut,
		path:        "/api/auth/profile",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &out)
	return out, err
}
