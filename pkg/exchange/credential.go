package exchange

import (
	"encoding/json"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// ServiceCredential is the parsed form of the key material handed out by the
// credential broker. Field names follow the service-account key JSON format.
type ServiceCredential struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceCredential decodes raw key material into a ServiceCredential
func ParseServiceCredential(raw []byte) (*ServiceCredential, error) {
	var cred ServiceCredential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, clinicerr.Wrap(err, clinicerr.ErrCodeBadKeyMaterial, "credential is not valid JSON")
	}
	if cred.ClientEmail == "" {
		return nil, clinicerr.New(clinicerr.ErrCodeBadKeyMaterial, "credential has no client_email")
	}
	if cred.PrivateKey == "" {
		return nil, clinicerr.New(clinicerr.ErrCodeBadKeyMaterial, "credential has no private_key")
	}
	return &cred, nil
}
