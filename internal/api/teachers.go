package api

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/querygrade/querygrade/internal/auth"
	"github.com/querygrade/querygrade/internal/catalog"
)

type teacherRegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (r teacherRegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
	)
}

// handleRegisterTeacher creates a teacher and issues the API key they use for every
// teacher route. The plaintext key is returned once and only its hash is stored.
func (s *server) handleRegisterTeacher(w http.ResponseWriter, r *http.Request) {
	var req teacherRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	teacher, err := s.deps.Catalog.CreateTeacher(r.Context(), catalog.CreateTeacherInput{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
	})
	if err != nil {
		writeCatalogError(r.Context(), w, err, "TEACHER_NOT_FOUND", "register teacher")
		return
	}

	apiKey, err := auth.NewAPIKey()
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "API_KEY_ERROR", err.Error(), true, nil)
		return
	}
	if _, err := s.deps.Catalog.CreateAPIKey(r.Context(), catalog.CreateAPIKeyInput{
		TeacherID: teacher.TeacherID,
		KeyHash:   auth.HashAPIKey(apiKey),
		Role:      auth.RoleTeacher,
	}); err != nil {
		writeCatalogError(r.Context(), w, err, "TEACHER_NOT_FOUND", "issue api key")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"teacher": teacher,
		"api_key": apiKey,
	})
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	teacherID, ok := requireTeacher(w, r)
	if !ok {
		return
	}
	response := map[string]any{"teacher_id": teacherID}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		response["roles"] = identity.Roles
	}
	// static keys name teachers that were never registered
	if teacher, err := s.deps.Catalog.GetTeacher(r.Context(), teacherID); err == nil {
		response["teacher"] = teacher
	}
	writeJSON(w, http.StatusOK, response)
}
