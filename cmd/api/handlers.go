package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/api"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/auth"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/data"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/storage"
)

// errInvalidCredentials covers both an unknown email and a wrong password.
var errInvalidCredentials = errors.New("invalid email or password")

const minPasswordLen = 6

// register handles user registration: hashes password, stores user, returns JWT token
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalize.Email(req.Email)
	switch {
	case req.Name == "" || req.Email == "" || req.Password == "":
		respondError(w, r, badRequest("name, email and password are required"))
		return
	case !strings.Contains(req.Email, "@"):
		respondError(w, r, badRequest("invalid email"))
		return
	case len(req.Password) < minPasswordLen:
		respondError(w, r, badRequest("password must be at least 6 characters"))
		return
	}

	// a taken address skips the bcrypt cost; the unique index still settles races
	taken, err := s.users.UserExists(r.Context(), req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if taken {
		respondError(w, r, data.ErrUserExists)
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	user, err := s.users.CreateUser(r.Context(), &data.User{
		Name:          req.Name,
		Email:         req.Email,
		Password:      hashed,
		Location:      strings.TrimSpace(req.Location),
		SkillsOffered: normalize.Skills(strings.Join(req.SkillsOffered, ",")),
		SkillsWanted:  normalize.Skills(strings.Join(req.SkillsWanted, ",")),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp, err := s.issue(user)
	if err != nil {
		respondError(w, r, err)
		return
	}
	log := logging.Ctx(r.Context())
	log.Info().Str(logging.FieldUserID, resp.UserID).Msg("user registered")
	respondJSON(w, http.StatusCreated, resp)
}

// login authenticates a user and returns a JWT token
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	req.Email = normalize.Email(req.Email)
	if req.Email == "" || req.Password == "" {
		respondError(w, r, badRequest("email and password are required"))
		return
	}
	// per-account limit on top of the per-IP one
	if s.authLimiter != nil && !s.authLimiter.Allow("email:"+req.Email) {
		w.Header().Set("Retry-After", "60")
		respondJSON(w, http.StatusTooManyRequests, map[string]string{"message": "too many login attempts"})
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, data.ErrUserNotFound) {
		respondError(w, r, errInvalidCredentials)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		respondError(w, r, errInvalidCredentials)
		return
	}

	resp, err := s.issue(user)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) issue(user *data.User) (api.AuthResponse, error) {
	token, _, err := s.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		return api.AuthResponse{}, err
	}
	return api.AuthResponse{Token: token, Name: user.Name, UserID: user.ID.Hex()}, nil
}

// listProfiles returns every other user's profile.
func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	users, err := s.users.ListUsers(r.Context(), 500)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]api.Profile, 0, len(users))
	for _, u := range users {
		if u.ID == me {
			continue
		}
		out = append(out, profileFrom(u))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) ownProfile(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	user, err := s.users.GetUserByID(r.Context(), me)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profileFrom(user))
}

func (s *Server) profileByID(w http.ResponseWriter, r *http.Request) {
	id, err := data.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	user, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profileFrom(user))
}

// updateProfile accepts a multipart (or urlencoded) form. Only fields present
// in the form change; skills are comma separated; profilePic is an image.
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			respondError(w, r, badRequest("invalid form: "+err.Error()))
			return
		}
		if err := r.ParseForm(); err != nil {
			respondError(w, r, badRequest("invalid form"))
			return
		}
	}

	changes, err := profileChanges(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var oldPic string
	file, header, err := r.FormFile("profilePic")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		respondError(w, r, badRequest("invalid profilePic"))
		return
	default:
		defer file.Close()
		if s.files == nil {
			respondError(w, r, badRequest("uploads are disabled"))
			return
		}
		key, err := storage.ProfileKey(me.Hex(), header.Filename)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if current, err := s.users.GetUserByID(r.Context(), me); err == nil {
			oldPic = current.ProfilePic
		}
		if err := s.files.Put(r.Context(), key, file, header.Size, storage.ContentType(key)); err != nil {
			respondError(w, r, err)
			return
		}
		pic := uploadsPrefix + key
		changes.ProfilePic = &pic
	}

	user, err := s.users.UpdateProfile(r.Context(), me, changes)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if key, ok := strings.CutPrefix(oldPic, uploadsPrefix); ok && changes.ProfilePic != nil {
		if err := s.files.Delete(r.Context(), key); err != nil {
			log := logging.Ctx(r.Context())
			log.Warn().Err(err).Str("key", key).Msg("delete replaced profile picture")
		}
	}
	respondJSON(w, http.StatusOK, profileFrom(user))
}

func profileChanges(r *http.Request) (data.ProfileChanges, error) {
	var c data.ProfileChanges
	text := func(name string) *string {
		if _, ok := r.Form[name]; !ok {
			return nil
		}
		v := strings.TrimSpace(r.Form.Get(name))
		return &v
	}
	c.Name = text("name")
	c.Bio = text("bio")
	c.Location = text("location")
	c.City = text("city")
	c.Country = text("country")
	c.Phone = text("phone")
	c.Availability = text("availability")

	if c.Name != nil && *c.Name == "" {
		return c, badRequest("name cannot be empty")
	}
	if v := text("age"); v != nil && *v != "" {
		age, err := strconv.Atoi(*v)
		if err != nil || age < 0 || age > 150 {
			return c, badRequest("invalid age")
		}
		c.Age = &age
	}
	if v := text("skillsOffered"); v != nil {
		c.SkillsOffered = append([]string{}, normalize.Skills(*v)...)
	}
	if v := text("skillsWanted"); v != nil {
		c.SkillsWanted = append([]string{}, normalize.Skills(*v)...)
	}
	return c, nil
}

const uploadsPrefix = "/uploads/"

// serveUpload streams a stored picture. Pictures are public so they can be
// embedded without a token.
func (s *Server) serveUpload(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		http.NotFound(w, r)
		return
	}
	key := chi.URLParam(r, "*")
	rc, err := s.files.Open(r.Context(), key)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", storage.ContentType(key))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		log := logging.Ctx(r.Context())
		log.Debug().Err(err).Str("key", key).Msg("upload stream interrupted")
	}
}
