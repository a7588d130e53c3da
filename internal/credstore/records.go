package credstore

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/velux-go/internal/session"
	"github.com/tonimelisma/velux-go/internal/store"
)

// Key namespaces. Attribute names match the records written by the skill
// backends that share the table.
const (
	SettingsKey       = "settings"
	credentialsPrefix = "config-"
	tokenPrefix       = "token-"

	attrAccessToken  = "AccessToken"
	attrRefreshToken = "RefreshToken"
	attrExpiry       = "Expiry"
)

// CredentialsKey returns the credentials record key for a user id (Custom)
// or username (SmartHome). Identifiers are NFC-normalized so visually equal
// usernames typed on different platforms map to one record.
func CredentialsKey(id string) string {
	return credentialsPrefix + norm.NFC.String(id)
}

// TokenKey returns the per-user token record key (Custom skill).
func TokenKey(userID string) string {
	return tokenPrefix + norm.NFC.String(userID)
}

// credentialRecord is the stored shape of a credentials item. SmartHome
// records also carry the token and the owning user id.
type credentialRecord struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	HomeID       string `json:"home_id,omitempty"`
	Bridge       string `json:"bridge,omitempty"`
	UserID       string `json:"userId,omitempty"`
	AccessToken  string `json:"AccessToken,omitempty"`
	RefreshToken string `json:"RefreshToken,omitempty"`
	Expiry       string `json:"Expiry,omitempty"`
}

func (r credentialRecord) credentials() session.Credentials {
	return session.Credentials{
		Username: r.Username,
		Password: r.Password,
		HomeID:   r.HomeID,
		Bridge:   r.Bridge,
	}
}

// tokenFields returns the item attributes persisting tok.
func tokenFields(tok *oauth2.Token) map[string]string {
	fields := map[string]string{
		attrAccessToken:  tok.AccessToken,
		attrRefreshToken: tok.RefreshToken,
	}

	if !tok.Expiry.IsZero() {
		fields[attrExpiry] = tok.Expiry.UTC().Format(time.RFC3339)
	}

	return fields
}

// tokenFromItem reads token attributes. It returns nil when the item carries
// no access token.
func tokenFromItem(item store.Item) *oauth2.Token {
	access := item[attrAccessToken]
	if access == "" {
		return nil
	}

	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: item[attrRefreshToken],
		TokenType:    "Bearer",
	}

	if raw := item[attrExpiry]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			tok.Expiry = t
		}
	}

	return tok
}

// decodeItem maps an item's attributes onto a struct with json tags.
func decodeItem(item store.Item, v any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("credstore: encoding item %s: %w", item.Key(), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("credstore: decoding item %s: %w", item.Key(), err)
	}

	return nil
}

// encodeItem maps a struct of string fields to an item stored at key.
func encodeItem(key string, v any) (store.Item, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("credstore: encoding %s: %w", key, err)
	}

	item := store.Item{}
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("credstore: encoding %s: %w", key, err)
	}

	item[store.KeyAttribute] = key

	return item, nil
}
