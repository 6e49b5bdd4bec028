package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
// Provider credentials are deliberately not part of the file; they come
// from the environment once at startup (see ApplyEnv).
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Metadata MetadataSettings `json:"metadata"`
	Catalog  CatalogSettings  `json:"catalog"`
	Cache    CacheSettings    `json:"cache"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type MetadataSettings struct {
	// TMDBToken is the provider-A bearer token. Required.
	TMDBToken string `json:"-"`
	// OMDBAPIKey is the provider-B key. Optional; without it every
	// rating resolves to an empty record.
	OMDBAPIKey string `json:"-"`
	Language   string `json:"language"`
}

type CatalogSettings struct {
	// PosterBaseURL fronts the poster store; entries link
	// <base>/<tmdbID>.jpg. The poster server itself is a separate
	// deployment.
	PosterBaseURL string `json:"posterBaseUrl"`
	LogoBaseURL   string `json:"logoBaseUrl"`
	MaxPages      int    `json:"maxPages"`
	// ManifestID/ManifestName identify the addon to discovery clients.
	ManifestID   string `json:"manifestId"`
	ManifestName string `json:"manifestName"`
}

type CacheSettings struct {
	// Directory holds ratings.json and the last built catalog.
	Directory string `json:"directory"`
}

type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 7777,
		},
		Metadata: MetadataSettings{
			Language: "en-US",
		},
		Catalog: CatalogSettings{
			PosterBaseURL: "https://pgcatalogs.duckdns.org/posters",
			LogoBaseURL:   "https://images.metahub.space/logo/medium",
			MaxPages:      50,
			ManifestID:    "community.pgcats",
			ManifestName:  "PG Catalogs",
		},
		Cache: CacheSettings{
			Directory: "cache",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    10,
			MaxAge:     14,
			MaxBackups: 3,
		},
	}
}

// Manager loads and saves the settings file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// Load reads the settings file, creating it with defaults when missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for settings introduced after the file was
	// first written.
	defaults := DefaultSettings()
	if strings.TrimSpace(s.Metadata.Language) == "" {
		s.Metadata.Language = defaults.Metadata.Language
	}
	if strings.TrimSpace(s.Catalog.PosterBaseURL) == "" {
		s.Catalog.PosterBaseURL = defaults.Catalog.PosterBaseURL
	}
	if strings.TrimSpace(s.Catalog.LogoBaseURL) == "" {
		s.Catalog.LogoBaseURL = defaults.Catalog.LogoBaseURL
	}
	if s.Catalog.MaxPages <= 0 {
		s.Catalog.MaxPages = defaults.Catalog.MaxPages
	}
	if strings.TrimSpace(s.Catalog.ManifestID) == "" {
		s.Catalog.ManifestID = defaults.Catalog.ManifestID
	}
	if strings.TrimSpace(s.Catalog.ManifestName) == "" {
		s.Catalog.ManifestName = defaults.Catalog.ManifestName
	}
	if strings.TrimSpace(s.Cache.Directory) == "" {
		s.Cache.Directory = defaults.Cache.Directory
	}
	return s, nil
}

// Save writes settings atomically next to the target path.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}

// ApplyEnv reads provider credentials from the environment. Credentials
// are process-lifetime values; there is no runtime reconfiguration.
func (s *Settings) ApplyEnv() {
	s.Metadata.TMDBToken = strings.TrimSpace(os.Getenv("TMDB_TOKEN"))
	s.Metadata.OMDBAPIKey = strings.TrimSpace(os.Getenv("OMDB_API_KEY"))
}
