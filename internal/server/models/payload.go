package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zecrypt/vault/internal/common"
)

// SecretType is the closed set of supported secret kinds.
type SecretType string

const (
	SecretTypeLogin           SecretType = "login"
	SecretTypeAPIKey          SecretType = "api_key"
	SecretTypeCard            SecretType = "card"
	SecretTypeIdentity        SecretType = "identity"
	SecretTypeWalletPhrase    SecretType = "wallet_phrase"
	SecretTypeWifi            SecretType = "wifi"
	SecretTypeSoftwareLicense SecretType = "software_license"
	SecretTypeNote            SecretType = "note"
	SecretTypeSSHKey          SecretType = "ssh_key"
	SecretTypeEmail           SecretType = "email"
)

// SecretTypes lists every member of the closed enum.
func SecretTypes() []SecretType {
	return []SecretType{
		SecretTypeLogin, SecretTypeAPIKey, SecretTypeCard, SecretTypeIdentity,
		SecretTypeWalletPhrase, SecretTypeWifi, SecretTypeSoftwareLicense,
		SecretTypeNote, SecretTypeSSHKey, SecretTypeEmail,
	}
}

// ParseSecretType validates a wire value against the closed enum.
func ParseSecretType(s string) (SecretType, error) {
	t := SecretType(s)
	switch t {
	case SecretTypeLogin, SecretTypeAPIKey, SecretTypeCard, SecretTypeIdentity,
		SecretTypeWalletPhrase, SecretTypeWifi, SecretTypeSoftwareLicense,
		SecretTypeNote, SecretTypeSSHKey, SecretTypeEmail:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown secret type %q", common.ErrValidation, s)
}

// Payload is one variant of the typed-payload union. Each variant
// declares its own field schema and the subset of fields that pass
// through the field cipher before persistence.
type Payload interface {
	SecretType() SecretType
	Validate() error
	// EncryptedFields returns the JSON keys whose values are stored
	// encrypted.
	EncryptedFields() []string
}

type LoginPayload struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	URL      string `json:"url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

func (LoginPayload) SecretType() SecretType { return SecretTypeLogin }
func (p LoginPayload) Validate() error {
	if p.Password == "" {
		return fmt.Errorf("%w: login requires a password", common.ErrValidation)
	}
	return nil
}
func (LoginPayload) EncryptedFields() []string { return []string{"password"} }

type APIKeyPayload struct {
	APIKey string `json:"api_key,omitempty"`
	Env    string `json:"env,omitempty"`
	URL    string `json:"url,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

func (APIKeyPayload) SecretType() SecretType { return SecretTypeAPIKey }
func (p APIKeyPayload) Validate() error {
	if p.APIKey == "" {
		return fmt.Errorf("%w: api_key is required", common.ErrValidation)
	}
	switch p.Env {
	case "", "Development", "Production", "Staging", "Testing", "Local", "UAT":
	default:
		return fmt.Errorf("%w: unknown env %q", common.ErrValidation, p.Env)
	}
	return nil
}
func (APIKeyPayload) EncryptedFields() []string { return []string{"api_key"} }

type CardPayload struct {
	CardHolder  string `json:"card_holder,omitempty"`
	CardNumber  string `json:"card_number,omitempty"`
	ExpiryMonth string `json:"expiry_month,omitempty"`
	ExpiryYear  string `json:"expiry_year,omitempty"`
	CVV         string `json:"cvv,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

func (CardPayload) SecretType() SecretType { return SecretTypeCard }
func (p CardPayload) Validate() error {
	if p.CardNumber == "" {
		return fmt.Errorf("%w: card_number is required", common.ErrValidation)
	}
	return nil
}
func (CardPayload) EncryptedFields() []string { return []string{"card_number", "cvv"} }

type IdentityPayload struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	NationalID string `json:"national_id,omitempty"`
	Address    string `json:"address,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (IdentityPayload) SecretType() SecretType { return SecretTypeIdentity }
func (p IdentityPayload) Validate() error {
	if p.FirstName == "" && p.LastName == "" {
		return fmt.Errorf("%w: identity requires a name", common.ErrValidation)
	}
	return nil
}
func (IdentityPayload) EncryptedFields() []string { return []string{"national_id"} }

type WalletPhrasePayload struct {
	WalletType    string `json:"wallet_type,omitempty"`
	Phrase        string `json:"phrase,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func (WalletPhrasePayload) SecretType() SecretType { return SecretTypeWalletPhrase }
func (p WalletPhrasePayload) Validate() error {
	if p.Phrase == "" {
		return fmt.Errorf("%w: phrase is required", common.ErrValidation)
	}
	return nil
}
func (WalletPhrasePayload) EncryptedFields() []string { return []string{"phrase", "wallet_address"} }

type WifiPayload struct {
	SSID     string `json:"ssid,omitempty"`
	Password string `json:"password,omitempty"`
	Security string `json:"security,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

func (WifiPayload) SecretType() SecretType { return SecretTypeWifi }
func (p WifiPayload) Validate() error {
	if p.SSID == "" {
		return fmt.Errorf("%w: ssid is required", common.ErrValidation)
	}
	return nil
}
func (WifiPayload) EncryptedFields() []string { return []string{"password"} }

type SoftwareLicensePayload struct {
	LicenseKey string `json:"license_key,omitempty"`
	Product    string `json:"product,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (SoftwareLicensePayload) SecretType() SecretType { return SecretTypeSoftwareLicense }
func (p SoftwareLicensePayload) Validate() error {
	if p.LicenseKey == "" {
		return fmt.Errorf("%w: license_key is required", common.ErrValidation)
	}
	return nil
}
func (SoftwareLicensePayload) EncryptedFields() []string { return []string{"license_key"} }

type NotePayload struct {
	Content string `json:"content,omitempty"`
}

func (NotePayload) SecretType() SecretType { return SecretTypeNote }
func (p NotePayload) Validate() error {
	if p.Content == "" {
		return fmt.Errorf("%w: content is required", common.ErrValidation)
	}
	return nil
}
func (NotePayload) EncryptedFields() []string { return []string{"content"} }

type SSHKeyPayload struct {
	PrivateKey string `json:"private_key,omitempty"`
	PublicKey  string `json:"public_key,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	Username   string `json:"username,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (SSHKeyPayload) SecretType() SecretType { return SecretTypeSSHKey }
func (p SSHKeyPayload) Validate() error {
	if p.PrivateKey == "" {
		return fmt.Errorf("%w: private_key is required", common.ErrValidation)
	}
	return nil
}
func (SSHKeyPayload) EncryptedFields() []string { return []string{"private_key", "passphrase"} }

type EmailPayload struct {
	Email      string `json:"email,omitempty"`
	Password   string `json:"password,omitempty"`
	IMAPServer string `json:"imap_server,omitempty"`
	SMTPServer string `json:"smtp_server,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (EmailPayload) SecretType() SecretType { return SecretTypeEmail }
func (p EmailPayload) Validate() error {
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", common.ErrValidation)
	}
	if p.Password == "" {
		return fmt.Errorf("%w: email requires a password", common.ErrValidation)
	}
	return nil
}
func (EmailPayload) EncryptedFields() []string { return []string{"password"} }

// newPayload returns an empty variant for t. The switch is exhaustive
// over the enum; ParseSecretType guards the default branch.
func newPayload(t SecretType) (Payload, error) {
	switch t {
	case SecretTypeLogin:
		return &LoginPayload{}, nil
	case SecretTypeAPIKey:
		return &APIKeyPayload{}, nil
	case SecretTypeCard:
		return &CardPayload{}, nil
	case SecretTypeIdentity:
		return &IdentityPayload{}, nil
	case SecretTypeWalletPhrase:
		return &WalletPhrasePayload{}, nil
	case SecretTypeWifi:
		return &WifiPayload{}, nil
	case SecretTypeSoftwareLicense:
		return &SoftwareLicensePayload{}, nil
	case SecretTypeNote:
		return &NotePayload{}, nil
	case SecretTypeSSHKey:
		return &SSHKeyPayload{}, nil
	case SecretTypeEmail:
		return &EmailPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown secret type %q", common.ErrValidation, t)
	}
}

// EncryptedFieldsFor returns the encrypted-field allow-list for t
// without decoding a payload; used when decrypting stored records.
func EncryptedFieldsFor(t SecretType) ([]string, error) {
	p, err := newPayload(t)
	if err != nil {
		return nil, err
	}
	return p.EncryptedFields(), nil
}

// DecodePayload converts a raw wire payload into the typed variant for t,
// rejecting unknown fields and validating required ones.
func DecodePayload(t SecretType, raw map[string]any) (Payload, error) {
	p, err := newPayload(t)
	if err != nil {
		return nil, err
	}

	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// PayloadFields flattens a typed payload back into the field map stored
// in the document.
func PayloadFields(p Payload) (map[string]any, error) {
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(buf, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
