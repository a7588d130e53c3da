package session

import (
	"errors"
	"fmt"
	"net/url"
)

// Settings are the backend endpoints and client identifiers shared by all
// users. They are stored once under a fixed key and never change during a
// session.
type Settings struct {
	BaseURL       string `toml:"base_url" json:"base_url"`
	TokenURL      string `toml:"token_url" json:"token_url"`
	Authorization string `toml:"authorization" json:"authorization"`
	AppIdentifier string `toml:"app_identifier" json:"app_identifier"`
	DeviceModel   string `toml:"device_model" json:"device_model"`
	DeviceName    string `toml:"device_name" json:"device_name"`
	Scope         string `toml:"scope" json:"scope"`
	UserPrefix    string `toml:"user_prefix" json:"user_prefix"`
	SyncURL       string `toml:"sync_url" json:"sync_url"`
	AppVersion    string `toml:"app_version" json:"app_version"`
	AppType       string `toml:"app_type" json:"app_type"`
	HomesDataURL  string `toml:"homesdata_url" json:"homesdata_url"`
	HomeStatusURL string `toml:"homestatus_url" json:"homestatus_url"`
}

// Validate checks the fields every request needs and returns all problems
// found.
func (s Settings) Validate() error {
	var errs []error

	if s.BaseURL == "" {
		errs = append(errs, errors.New("base_url: required"))
	} else if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url: not an absolute URL: %q", s.BaseURL))
	}

	if s.TokenURL == "" {
		errs = append(errs, errors.New("token_url: required"))
	}

	if s.Authorization == "" {
		errs = append(errs, errors.New("authorization: required"))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy with the shared client secret masked.
func (s Settings) Redacted() Settings {
	if s.Authorization != "" {
		s.Authorization = "[redacted]"
	}

	return s
}
