package faucet

import (
	"os"
	"strings"

	"github.com/AGPFMiner/sepominer/fault"
)

const (
	CaptchaTokenEnv     = "HCAPTCHA_TOKEN"
	CaptchaTokenFileEnv = "HCAPTCHA_TOKEN_FILE"
)

//LoadCaptchaToken prefers the token itself over the file that holds it; both are trimmed
func LoadCaptchaToken(getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if token := strings.TrimSpace(getenv(CaptchaTokenEnv)); token != "" {
		return token, nil
	}
	if path := strings.TrimSpace(getenv(CaptchaTokenFileEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fault.Wrap(fault.Config, "read captcha token", err)
		}
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	}
	return "", fault.ErrMissingCaptchaToken
}
