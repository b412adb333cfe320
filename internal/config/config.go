package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	apperrors "github.com/pctF/ort/internal/domain/errors"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	defaultCommandTimeout = 10 * time.Minute
	keyringServiceName    = "ortdl"
)

type AppConfig struct {
	HgTool         string
	GitTool        string
	CommandTimeout time.Duration
	Verbose        bool
}

type StoredConfig struct {
	Hosts           map[string]StoredProfile `yaml:"hosts,omitempty"`
	InsecureSecrets map[string]StoredSecret  `yaml:"insecure_secrets,omitempty"`
}

type StoredProfile struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`
	AuthMode string `yaml:"auth_mode,omitempty"`
}

type StoredSecret struct {
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

type LoginInput struct {
	Host     string
	Username string
	Password string
	Token    string
}

type LoginResult struct {
	Host                string
	AuthMode            string
	UsedInsecureStorage bool
}

func LoadFromEnv() (AppConfig, error) {
	_ = godotenv.Load(".env")

	config := AppConfig{
		HgTool:         envOrDefault("ORT_HG_COMMAND", "hg"),
		GitTool:        envOrDefault("ORT_GIT_COMMAND", "git"),
		CommandTimeout: defaultCommandTimeout,
		Verbose:        os.Getenv("ORT_VERBOSE") == "1",
	}

	if raw := strings.TrimSpace(os.Getenv("ORT_COMMAND_TIMEOUT")); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return AppConfig{}, apperrors.New(
				apperrors.KindValidation,
				fmt.Sprintf("ORT_COMMAND_TIMEOUT is invalid: %q", raw),
				err,
			)
		}
		config.CommandTimeout = timeout
	}

	if err := config.Validate(); err != nil {
		return AppConfig{}, err
	}

	return config, nil
}

func (config AppConfig) Validate() error {
	if strings.TrimSpace(config.HgTool) == "" {
		return apperrors.New(apperrors.KindValidation, "ORT_HG_COMMAND cannot be empty", nil)
	}

	if strings.TrimSpace(config.GitTool) == "" {
		return apperrors.New(apperrors.KindValidation, "ORT_GIT_COMMAND cannot be empty", nil)
	}

	if config.CommandTimeout <= 0 {
		return apperrors.New(apperrors.KindValidation, "ORT_COMMAND_TIMEOUT must be positive", nil)
	}

	return nil
}

// SaveLogin stores credentials for a remote host, preferring the system
// keyring and falling back to the stored config file when no keyring is
// available.
func SaveLogin(input LoginInput) (LoginResult, error) {
	host := normalizeURL(strings.TrimSpace(input.Host))
	if host == "" {
		return LoginResult{}, apperrors.New(apperrors.KindValidation, "host is required", nil)
	}

	hasToken := strings.TrimSpace(input.Token) != ""
	hasBasic := strings.TrimSpace(input.Username) != "" || strings.TrimSpace(input.Password) != ""
	if hasToken == hasBasic {
		return LoginResult{}, apperrors.New(apperrors.KindValidation, "provide either token or username/password", nil)
	}
	if hasBasic && (strings.TrimSpace(input.Username) == "" || strings.TrimSpace(input.Password) == "") {
		return LoginResult{}, apperrors.New(apperrors.KindValidation, "username and password must be provided together", nil)
	}

	stored, _ := LoadStoredConfig()
	if stored.Hosts == nil {
		stored.Hosts = map[string]StoredProfile{}
	}
	if stored.InsecureSecrets == nil {
		stored.InsecureSecrets = map[string]StoredSecret{}
	}

	profile := StoredProfile{URL: host}
	result := LoginResult{Host: host}

	if hasToken {
		profile.AuthMode = "token"
		result.AuthMode = "token"
	} else {
		profile.AuthMode = "basic"
		profile.Username = strings.TrimSpace(input.Username)
		result.AuthMode = "basic"
	}

	key := hostKey(host)
	insecure := StoredSecret{}
	if hasToken {
		if err := keyring.Set(keyringServiceName, key+":token", strings.TrimSpace(input.Token)); err != nil {
			insecure.Token = strings.TrimSpace(input.Token)
			result.UsedInsecureStorage = true
		}
		_ = keyring.Delete(keyringServiceName, key+":password")
	} else {
		if err := keyring.Set(keyringServiceName, key+":password", strings.TrimSpace(input.Password)); err != nil {
			insecure.Password = strings.TrimSpace(input.Password)
			result.UsedInsecureStorage = true
		}
		_ = keyring.Delete(keyringServiceName, key+":token")
	}

	if insecure.Token != "" || insecure.Password != "" {
		stored.InsecureSecrets[key] = insecure
	} else {
		delete(stored.InsecureSecrets, key)
	}

	stored.Hosts[key] = profile

	if err := SaveStoredConfig(stored); err != nil {
		return LoginResult{}, err
	}

	return result, nil
}

func Logout(host string) error {
	stored, _ := LoadStoredConfig()
	hostURL := normalizeURL(strings.TrimSpace(host))
	if hostURL == "" {
		return apperrors.New(apperrors.KindValidation, "host is required", nil)
	}

	key := hostKey(hostURL)
	if _, ok := stored.Hosts[key]; !ok {
		return apperrors.New(apperrors.KindNotFound, fmt.Sprintf("no stored credentials for %q", hostURL), nil)
	}

	_ = keyring.Delete(keyringServiceName, key+":token")
	_ = keyring.Delete(keyringServiceName, key+":password")

	delete(stored.Hosts, key)
	delete(stored.InsecureSecrets, key)

	return SaveStoredConfig(stored)
}

// AuthenticatedURL injects stored credentials for the URL's host into an
// http(s) URL so the version control tools can clone private remotes. URLs
// with other schemes, unknown hosts, or existing userinfo pass through
// unchanged.
func AuthenticatedURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.User != nil {
		return rawURL
	}

	stored, err := LoadStoredConfig()
	if err != nil {
		return rawURL
	}

	key := hostKey(parsed.Scheme + "://" + parsed.Host)
	profile, ok := stored.Hosts[key]
	if !ok {
		return rawURL
	}

	token, password := resolveSecrets(stored, key)
	switch {
	case profile.AuthMode == "token" && token != "":
		// Git and Mercurial both accept a token as the basic-auth password.
		parsed.User = url.UserPassword("x-token-auth", token)
	case profile.Username != "" && password != "":
		parsed.User = url.UserPassword(profile.Username, password)
	default:
		return rawURL
	}

	return parsed.String()
}

// CredentialStatus reports which hosts have stored credentials and whether
// each secret lives in the keyring or the config file.
func CredentialStatus() (map[string]string, error) {
	stored, err := LoadStoredConfig()
	if err != nil {
		return nil, err
	}

	status := make(map[string]string, len(stored.Hosts))
	for key, profile := range stored.Hosts {
		storage := "keyring"
		if _, ok := stored.InsecureSecrets[key]; ok {
			storage = "insecure"
		}
		status[key] = profile.AuthMode + "/" + storage
	}

	return status, nil
}

func LoadStoredConfig() (StoredConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return StoredConfig{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StoredConfig{Hosts: map[string]StoredProfile{}, InsecureSecrets: map[string]StoredSecret{}}, nil
		}
		return StoredConfig{}, err
	}

	var stored StoredConfig
	if err := yaml.Unmarshal(raw, &stored); err != nil {
		return StoredConfig{}, err
	}
	if stored.Hosts == nil {
		stored.Hosts = map[string]StoredProfile{}
	}
	if stored.InsecureSecrets == nil {
		stored.InsecureSecrets = map[string]StoredSecret{}
	}

	return stored, nil
}

func SaveStoredConfig(stored StoredConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	encoded, err := yaml.Marshal(stored)
	if err != nil {
		return err
	}

	return os.WriteFile(path, encoded, 0o600)
}

func ConfigPath() (string, error) {
	if custom := strings.TrimSpace(os.Getenv("ORT_CONFIG_PATH")); custom != "" {
		return custom, nil
	}

	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(baseDir, "ortdl", "config.yaml"), nil
}

func resolveSecrets(stored StoredConfig, key string) (token string, password string) {
	if value, err := keyring.Get(keyringServiceName, key+":token"); err == nil && strings.TrimSpace(value) != "" {
		token = value
	}
	if value, err := keyring.Get(keyringServiceName, key+":password"); err == nil && strings.TrimSpace(value) != "" {
		password = value
	}

	if token == "" || password == "" {
		if insecure, ok := stored.InsecureSecrets[key]; ok {
			if token == "" {
				token = insecure.Token
			}
			if password == "" {
				password = insecure.Password
			}
		}
	}

	return token, password
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}

	return value
}

func normalizeURL(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return trimmed
	}

	if strings.Contains(trimmed, "://") {
		return trimmed
	}

	return "https://" + trimmed
}

func hostKey(hostURL string) string {
	parsed, err := url.Parse(normalizeURL(hostURL))
	if err != nil {
		return normalizeURL(hostURL)
	}

	return strings.ToLower(parsed.Scheme + "://" + parsed.Host)
}
