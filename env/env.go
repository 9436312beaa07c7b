package env

import (
	"context"
	"sync"

	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validations = map[string][]string{}

var v = validator.New()

var validationsMu = &sync.Mutex{}

// RegisterValidation associates validator tags with an env var. Tags are
// checked lazily on read so packages can register in init().
func RegisterValidation(name string, tags ...string) {
	validationsMu.Lock()
	defer validationsMu.Unlock()
	validations[name] = dedupe(append(validations[name], tags...))
}

func GetString(ctx context.Context, name string) string {
	checkValidations(ctx, name)
	return viper.GetString(name)
}

func GetInt(ctx context.Context, name string) int {
	checkValidations(ctx, name)
	return viper.GetInt(name)
}

func GetFloat64(ctx context.Context, name string) float64 {
	checkValidations(ctx, name)
	return viper.GetFloat64(name)
}

func checkValidations(ctx context.Context, name string) {
	validationsMu.Lock()
	defer validationsMu.Unlock()
	for _, tag := range validations[name] {
		if err := v.Var(viper.GetString(name), tag); err != nil {
			logger.For(ctx).Errorf("invalid env var: %s, tag: %s, err: %s", name, tag, err.Error())
		}
	}
}

func dedupe(src []string) []string {
	result := src[:0]

	seen := make(map[string]bool)
	for _, x := range src {
		if !seen[x] {
			result = append(result, x)
			seen[x] = true
		}
	}
	return result
}
