package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/querygrade/querygrade/internal/catalog"
)

const RoleTeacher = "teacher"

const apiKeyPrefix = "qg_"

type Identity struct {
	TeacherID string
	Roles     []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses comma separated key:teacher:role|role entries.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:teacher:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		teacher := strings.TrimSpace(parts[1])
		if key == "" || teacher == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/teacher", entry)
		}
		roles := make([]string, 0)
		for _, role := range strings.Split(strings.TrimSpace(parts[2]), "|") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		slices.Sort(roles)
		validator.keys[key] = Identity{TeacherID: teacher, Roles: roles}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

type apiKeyLookup interface {
	GetAPIKeyByHash(ctx context.Context, keyHash string) (catalog.APIKey, error)
}

// CatalogAPIKeyValidator resolves keys issued at teacher registration. Only the
// SHA-256 hash of a key is ever stored.
type CatalogAPIKeyValidator struct {
	repo   apiKeyLookup
	logger *slog.Logger
}

func NewCatalogAPIKeyValidator(repo apiKeyLookup, logger *slog.Logger) *CatalogAPIKeyValidator {
	return &CatalogAPIKeyValidator{repo: repo, logger: logger}
}

func (v *CatalogAPIKeyValidator) Validate(ctx context.Context, apiKey string) (Identity, bool) {
	if !strings.HasPrefix(apiKey, apiKeyPrefix) {
		return Identity{}, false
	}
	key, err := v.repo.GetAPIKeyByHash(ctx, HashAPIKey(apiKey))
	if err != nil {
		if v.logger != nil && !errors.Is(err, catalog.ErrNotFound) {
			v.logger.WarnContext(ctx, "api key lookup failed", slog.String("error", err.Error()))
		}
		return Identity{}, false
	}
	return Identity{TeacherID: key.TeacherID, Roles: []string{key.Role}}, true
}

// Validators tries each validator in order and accepts the first match.
type Validators []APIKeyValidator

func (vs Validators) Validate(ctx context.Context, apiKey string) (Identity, bool) {
	for _, v := range vs {
		if v == nil {
			continue
		}
		if identity, ok := v.Validate(ctx, apiKey); ok {
			return identity, true
		}
	}
	return Identity{}, false
}

func NewAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
