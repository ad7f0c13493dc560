package providers

import (
	"encoding/hex"

	"github.com/samber/do/v2"

	"github.com/seedhypermedia/wxr-importer/internal/auth"
	"github.com/seedhypermedia/wxr-importer/internal/config"
	"github.com/seedhypermedia/wxr-importer/internal/logger"
)

// AuthKey wraps the API token key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the API token key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Data.BasePath)
	if err != nil {
		return nil, err
	}

	cfg.Auth.TokenKey = key

	log.Info("API token key loaded", "token_duration", cfg.Auth.TokenDuration)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService(hex.EncodeToString(authKey), cfg.Auth.TokenDuration)
}
